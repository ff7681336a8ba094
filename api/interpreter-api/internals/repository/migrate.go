// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_repository

import (
	"context"
	"fmt"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

// Migrate creates or updates the schema for every persisted entity.
func Migrate(ctx context.Context, postgres connectors.PostgresConnector) error {
	if err := postgres.DB(ctx).AutoMigrate(
		&internal_entity.User{},
		&internal_entity.Patient{},
		&internal_entity.Conversation{},
		&internal_entity.Message{},
		&internal_entity.Note{},
		&internal_entity.FollowUp{},
		&internal_entity.Prescription{},
		&internal_entity.Summary{},
		&internal_entity.MedicalHistory{},
	); err != nil {
		return fmt.Errorf("failed to run schema migration: %w", err)
	}
	return nil
}
