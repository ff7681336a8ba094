// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_entity

import "time"

const (
	SenderTypeUser        = "user"
	SenderTypePatient     = "patient"
	SenderTypeTranslation = "translation"
)

// LanguageUnknown marks a transcript whose detected language was not a valid
// ISO 639-1 code.
const LanguageUnknown = "unknown"

// Message is an append-only transcript record. A translation message carries
// senderType "translation" and points back at its source via
// OriginalMessageId; it is never the root of another translation.
type Message struct {
	Id                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId    uint64    `gorm:"index;not null" json:"conversationId"`
	SenderType        string    `gorm:"not null" json:"senderType"`
	Language          string    `gorm:"not null" json:"language"`
	OriginalText      string    `gorm:"not null" json:"originalText"`
	TranslatedText    *string   `json:"translatedText,omitempty"`
	OriginalMessageId *uint64   `gorm:"index" json:"originalMessageId,omitempty"`
	CreatedDate       time.Time `gorm:"autoCreateTime" json:"timestamp"`
}
