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
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

// UserRepository backs the auth surface.
type UserRepository interface {
	Create(ctx context.Context, user *internal_entity.User) error
	GetByUsername(ctx context.Context, username string) (*internal_entity.User, error)
	Get(ctx context.Context, userId uint64) (*internal_entity.User, error)
}

type userRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

func NewUserRepository(postgres connectors.PostgresConnector, logger commons.Logger) UserRepository {
	return &userRepository{postgres: postgres, logger: logger}
}

func (r *userRepository) Create(ctx context.Context, user *internal_entity.User) error {
	db := r.postgres.DB(ctx)
	if err := db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user %q: %w", user.Username, err)
	}
	r.logger.Infof("created user: id=%d, username=%s", user.Id, user.Username)
	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*internal_entity.User, error) {
	db := r.postgres.DB(ctx)
	var user internal_entity.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %s: %w", username, err)
	}
	return &user, nil
}

func (r *userRepository) Get(ctx context.Context, userId uint64) (*internal_entity.User, error) {
	db := r.postgres.DB(ctx)
	var user internal_entity.User
	if err := db.Where("id = ?", userId).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %d: %w", userId, err)
	}
	return &user, nil
}
