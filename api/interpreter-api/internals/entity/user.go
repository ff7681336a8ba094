// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_entity

import "time"

// User is a clinician account. Only the auth surface reads PasswordHash.
type User struct {
	Id           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedDate  time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedDate  time.Time `gorm:"autoUpdateTime" json:"-"`
}
