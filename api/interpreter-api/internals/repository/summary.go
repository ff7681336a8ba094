// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

// SummaryRepository reads the 1:1 session summary. Writes go through
// ConversationRepository.Summarize so summary and status stay consistent.
type SummaryRepository interface {
	GetByConversation(ctx context.Context, conversationId uint64) (*internal_entity.Summary, error)
}

type summaryRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

func NewSummaryRepository(postgres connectors.PostgresConnector, logger commons.Logger) SummaryRepository {
	return &summaryRepository{postgres: postgres, logger: logger}
}

// GetByConversation returns nil without error when no summary exists yet;
// an active conversation legitimately has none.
func (r *summaryRepository) GetByConversation(ctx context.Context, conversationId uint64) (*internal_entity.Summary, error) {
	db := r.postgres.DB(ctx)
	var summary internal_entity.Summary
	err := db.Where("conversation_id = ?", conversationId).First(&summary).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up summary for conversation %d: %w", conversationId, err)
	}
	return &summary, nil
}

// MedicalHistoryRepository upserts and reads the generated patient history.
type MedicalHistoryRepository interface {
	Upsert(ctx context.Context, conversationId uint64, content string) (*internal_entity.MedicalHistory, error)
	GetByConversation(ctx context.Context, conversationId uint64) (*internal_entity.MedicalHistory, error)
}

type medicalHistoryRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

func NewMedicalHistoryRepository(postgres connectors.PostgresConnector, logger commons.Logger) MedicalHistoryRepository {
	return &medicalHistoryRepository{postgres: postgres, logger: logger}
}

func (r *medicalHistoryRepository) Upsert(ctx context.Context, conversationId uint64, content string) (*internal_entity.MedicalHistory, error) {
	db := r.postgres.DB(ctx)

	var history internal_entity.MedicalHistory
	err := db.Where("conversation_id = ?", conversationId).First(&history).Error
	switch {
	case err == nil:
		if err := db.Model(&history).Update("content", content).Error; err != nil {
			return nil, fmt.Errorf("failed to update medical history for conversation %d: %w", conversationId, err)
		}
		history.Content = content
	case err == gorm.ErrRecordNotFound:
		history = internal_entity.MedicalHistory{ConversationId: conversationId, Content: content}
		if err := db.Create(&history).Error; err != nil {
			return nil, fmt.Errorf("failed to create medical history for conversation %d: %w", conversationId, err)
		}
	default:
		return nil, fmt.Errorf("failed to look up medical history for conversation %d: %w", conversationId, err)
	}

	r.logger.Debugf("upserted medical history: conversation=%d", conversationId)
	return &history, nil
}

func (r *medicalHistoryRepository) GetByConversation(ctx context.Context, conversationId uint64) (*internal_entity.MedicalHistory, error) {
	db := r.postgres.DB(ctx)
	var history internal_entity.MedicalHistory
	err := db.Where("conversation_id = ?", conversationId).First(&history).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up medical history for conversation %d: %w", conversationId, err)
	}
	return &history, nil
}
