// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

// PatientRepository resolves patients by identity on session start.
type PatientRepository interface {
	// FindOrCreate resolves a patient by (firstName, lastName, dateOfBirth).
	// The date of birth is normalized to a UTC date before matching, so the
	// same patient entered at different local times resolves to one row.
	FindOrCreate(ctx context.Context, firstName, lastName string, dateOfBirth time.Time) (*internal_entity.Patient, error)

	Get(ctx context.Context, patientId uint64) (*internal_entity.Patient, error)
}

type patientRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

func NewPatientRepository(postgres connectors.PostgresConnector, logger commons.Logger) PatientRepository {
	return &patientRepository{postgres: postgres, logger: logger}
}

// NormalizeDateOfBirth truncates a timestamp to a UTC calendar date.
func NormalizeDateOfBirth(dob time.Time) time.Time {
	utc := dob.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *patientRepository) FindOrCreate(ctx context.Context, firstName, lastName string, dateOfBirth time.Time) (*internal_entity.Patient, error) {
	dob := NormalizeDateOfBirth(dateOfBirth)
	db := r.postgres.DB(ctx)

	var patient internal_entity.Patient
	err := db.Where("first_name = ? AND last_name = ? AND date_of_birth = ?", firstName, lastName, dob).
		First(&patient).Error
	if err == nil {
		return &patient, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to look up patient: %w", err)
	}

	patient = internal_entity.Patient{
		FirstName:   firstName,
		LastName:    lastName,
		DateOfBirth: dob,
	}
	if err := db.Create(&patient).Error; err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	r.logger.Infof("created patient: id=%d, name=%s %s", patient.Id, firstName, lastName)
	return &patient, nil
}

func (r *patientRepository) Get(ctx context.Context, patientId uint64) (*internal_entity.Patient, error) {
	db := r.postgres.DB(ctx)
	var patient internal_entity.Patient
	if err := db.Where("id = ?", patientId).First(&patient).Error; err != nil {
		return nil, fmt.Errorf("patient not found: %d: %w", patientId, err)
	}
	return &patient, nil
}
