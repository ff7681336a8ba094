// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_entity

import "time"

const (
	ConversationStatusActive     = "active"
	ConversationStatusEnded      = "ended"
	ConversationStatusEndedError = "ended_error"
	ConversationStatusSummarized = "summarized"
)

// DefaultPatientLanguage seeds a new conversation before the first patient
// utterance has been heard.
const DefaultPatientLanguage = "es"

// Conversation is one interpreter session between a clinician and a patient.
// Status only ever moves forward: active → {ended, ended_error, summarized}.
type Conversation struct {
	Id              uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId          uint64     `gorm:"index;not null" json:"userId"`
	PatientId       uint64     `gorm:"index;not null" json:"patientId"`
	Status          string     `gorm:"not null;default:active" json:"status"`
	PatientLanguage string     `gorm:"not null" json:"patientLanguage"`
	StartTime       time.Time  `gorm:"not null" json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	CreatedDate     time.Time  `gorm:"autoCreateTime" json:"-"`
	UpdatedDate     time.Time  `gorm:"autoUpdateTime" json:"-"`
}

// IsTerminal reports whether the conversation can no longer accept messages.
func (c *Conversation) IsTerminal() bool {
	switch c.Status {
	case ConversationStatusEnded, ConversationStatusEndedError, ConversationStatusSummarized:
		return true
	}
	return false
}
