// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_entity

import "time"

// Summary is the 1:1 end-of-session summary for a conversation.
type Summary struct {
	Id             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId uint64    `gorm:"uniqueIndex;not null" json:"conversationId"`
	Content        string    `gorm:"not null" json:"content"`
	CreatedDate    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedDate    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// MedicalHistory is the 1:1 generated history shown to the clinician when a
// session starts.
type MedicalHistory struct {
	Id             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId uint64    `gorm:"uniqueIndex;not null" json:"conversationId"`
	Content        string    `gorm:"not null" json:"content"`
	CreatedDate    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedDate    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
