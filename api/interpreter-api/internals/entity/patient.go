// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_entity

import "time"

// Patient identity is matched on (firstName, lastName, dateOfBirth); the
// date of birth is stored as a UTC date with no time component.
type Patient struct {
	Id          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName   string    `gorm:"not null;index:idx_patient_identity" json:"firstName"`
	LastName    string    `gorm:"not null;index:idx_patient_identity" json:"lastName"`
	DateOfBirth time.Time `gorm:"not null;index:idx_patient_identity" json:"dateOfBirth"`
	CreatedDate time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedDate time.Time `gorm:"autoUpdateTime" json:"-"`
}
