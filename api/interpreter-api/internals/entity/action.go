// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_entity

import "time"

const (
	ActionStatusPending = "pending"

	ActionTypeNote         = "note"
	ActionTypeFollowUp     = "followup"
	ActionTypePrescription = "prescription"
)

// Note is a free-text clinical note captured from a clinician utterance.
type Note struct {
	Id             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId uint64    `gorm:"index;not null" json:"conversationId"`
	Content        string    `gorm:"not null" json:"content"`
	Status         string    `gorm:"not null;default:pending" json:"status"`
	CreatedDate    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedDate    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// FollowUp schedules a future appointment relative to the moment the command
// was executed.
type FollowUp struct {
	Id             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId uint64    `gorm:"index;not null" json:"conversationId"`
	ScheduledFor   time.Time `gorm:"not null" json:"scheduledFor"`
	Details        string    `json:"details,omitempty"`
	Status         string    `gorm:"not null;default:pending" json:"status"`
	CreatedDate    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedDate    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type Prescription struct {
	Id             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId uint64    `gorm:"index;not null" json:"conversationId"`
	MedicationName string    `gorm:"not null" json:"medicationName"`
	Dosage         string    `gorm:"not null" json:"dosage"`
	Frequency      string    `gorm:"not null" json:"frequency"`
	Details        string    `json:"details,omitempty"`
	Status         string    `gorm:"not null;default:pending" json:"status"`
	CreatedDate    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedDate    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// AggregatedAction is the uniform projection of Note/FollowUp/Prescription
// used for transport and display. It is derived, never persisted.
type AggregatedAction struct {
	Id             uint64      `json:"id"`
	ConversationId uint64      `json:"conversationId"`
	Type           string      `json:"type"`
	Status         string      `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	Data           interface{} `json:"data"`
}

// AggregateNote projects a note into the uniform action shape.
func AggregateNote(n *Note) *AggregatedAction {
	return &AggregatedAction{
		Id:             n.Id,
		ConversationId: n.ConversationId,
		Type:           ActionTypeNote,
		Status:         n.Status,
		CreatedAt:      n.CreatedDate,
		UpdatedAt:      n.UpdatedDate,
		Data:           n,
	}
}

func AggregateFollowUp(f *FollowUp) *AggregatedAction {
	return &AggregatedAction{
		Id:             f.Id,
		ConversationId: f.ConversationId,
		Type:           ActionTypeFollowUp,
		Status:         f.Status,
		CreatedAt:      f.CreatedDate,
		UpdatedAt:      f.UpdatedDate,
		Data:           f,
	}
}

func AggregatePrescription(p *Prescription) *AggregatedAction {
	return &AggregatedAction{
		Id:             p.Id,
		ConversationId: p.ConversationId,
		Type:           ActionTypePrescription,
		Status:         p.Status,
		CreatedAt:      p.CreatedDate,
		UpdatedAt:      p.UpdatedDate,
		Data:           p,
	}
}
