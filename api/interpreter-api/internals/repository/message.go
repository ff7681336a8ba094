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

// MessageRepository is append-only; messages are never updated or deleted.
type MessageRepository interface {
	Create(ctx context.Context, message *internal_entity.Message) error

	// GetByConversation returns the transcript in chronological order.
	GetByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Message, error)
}

type messageRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

func NewMessageRepository(postgres connectors.PostgresConnector, logger commons.Logger) MessageRepository {
	return &messageRepository{postgres: postgres, logger: logger}
}

func (r *messageRepository) Create(ctx context.Context, message *internal_entity.Message) error {
	db := r.postgres.DB(ctx)
	if err := db.Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message for conversation %d: %w", message.ConversationId, err)
	}

	r.logger.Debugf("created message: id=%d, conversation=%d, sender=%s, language=%s",
		message.Id, message.ConversationId, message.SenderType, message.Language)
	return nil
}

func (r *messageRepository) GetByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Message, error) {
	db := r.postgres.DB(ctx)
	var messages []*internal_entity.Message
	if err := db.Where("conversation_id = ?", conversationId).
		Order("created_date ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages for conversation %d: %w", conversationId, err)
	}
	return messages, nil
}
