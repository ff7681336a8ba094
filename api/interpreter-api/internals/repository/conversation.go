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

// ConversationRepository persists interpreter sessions. Status transitions
// are guarded: a conversation that has reached a terminal status (ended,
// ended_error, summarized) can never be finalized again or made active.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *internal_entity.Conversation) error

	Get(ctx context.Context, conversationId uint64) (*internal_entity.Conversation, error)

	// GetForUser lists a clinician's conversations, most recent first.
	GetForUser(ctx context.Context, userId uint64) ([]*internal_entity.Conversation, error)

	// UpdatePatientLanguage records the most recently detected non-English
	// patient language. Callers must never pass "en".
	UpdatePatientLanguage(ctx context.Context, conversationId uint64, language string) error

	// Finalize moves an active conversation to the given terminal status and
	// stamps endTime. It fails if the conversation is not active anymore.
	Finalize(ctx context.Context, conversationId uint64, status string, endTime time.Time) (*internal_entity.Conversation, error)

	// Summarize atomically upserts the summary and moves the conversation to
	// "summarized" in a single transaction. Either both happen or neither.
	Summarize(ctx context.Context, conversationId uint64, content string, endTime time.Time) (*internal_entity.Conversation, error)
}

type conversationRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewConversationRepository creates a gorm-backed conversation repository.
func NewConversationRepository(postgres connectors.PostgresConnector, logger commons.Logger) ConversationRepository {
	return &conversationRepository{postgres: postgres, logger: logger}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *internal_entity.Conversation) error {
	if conversation.Status == "" {
		conversation.Status = internal_entity.ConversationStatusActive
	}
	if conversation.PatientLanguage == "" {
		conversation.PatientLanguage = internal_entity.DefaultPatientLanguage
	}

	db := r.postgres.DB(ctx)
	if err := db.Create(conversation).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	r.logger.Infof("created conversation: id=%d, user=%d, patient=%d",
		conversation.Id, conversation.UserId, conversation.PatientId)
	return nil
}

func (r *conversationRepository) Get(ctx context.Context, conversationId uint64) (*internal_entity.Conversation, error) {
	db := r.postgres.DB(ctx)
	var conversation internal_entity.Conversation
	if err := db.Where("id = ?", conversationId).First(&conversation).Error; err != nil {
		return nil, fmt.Errorf("conversation not found: %d: %w", conversationId, err)
	}
	return &conversation, nil
}

func (r *conversationRepository) GetForUser(ctx context.Context, userId uint64) ([]*internal_entity.Conversation, error) {
	db := r.postgres.DB(ctx)
	var conversations []*internal_entity.Conversation
	if err := db.Where("user_id = ?", userId).
		Order("start_time DESC").
		Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations for user %d: %w", userId, err)
	}
	return conversations, nil
}

func (r *conversationRepository) UpdatePatientLanguage(ctx context.Context, conversationId uint64, language string) error {
	db := r.postgres.DB(ctx)
	result := db.Model(&internal_entity.Conversation{}).
		Where("id = ?", conversationId).
		Updates(map[string]interface{}{
			"patient_language": language,
			"updated_date":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update patient language on conversation %d: %w", conversationId, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conversation %d not found", conversationId)
	}

	r.logger.Debugf("updated patient language: conversation=%d, language=%s", conversationId, language)
	return nil
}

// Finalize uses an atomic UPDATE ... WHERE status = 'active' so a terminal
// conversation can never be re-finalized by a racing caller.
func (r *conversationRepository) Finalize(ctx context.Context, conversationId uint64, status string, endTime time.Time) (*internal_entity.Conversation, error) {
	db := r.postgres.DB(ctx)
	result := db.Model(&internal_entity.Conversation{}).
		Where("id = ? AND status = ?", conversationId, internal_entity.ConversationStatusActive).
		Updates(map[string]interface{}{
			"status":       status,
			"end_time":     endTime,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to finalize conversation %d: %w", conversationId, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("conversation %d not found or not active", conversationId)
	}

	r.logger.Infof("finalized conversation: id=%d, status=%s", conversationId, status)
	return r.Get(ctx, conversationId)
}

func (r *conversationRepository) Summarize(ctx context.Context, conversationId uint64, content string, endTime time.Time) (*internal_entity.Conversation, error) {
	db := r.postgres.DB(ctx)

	err := db.Transaction(func(tx *gorm.DB) error {
		var existing internal_entity.Summary
		lookup := tx.Where("conversation_id = ?", conversationId).First(&existing)
		switch {
		case lookup.Error == nil:
			if err := tx.Model(&existing).Update("content", content).Error; err != nil {
				return fmt.Errorf("failed to update summary: %w", err)
			}
		case lookup.Error == gorm.ErrRecordNotFound:
			if err := tx.Create(&internal_entity.Summary{
				ConversationId: conversationId,
				Content:        content,
			}).Error; err != nil {
				return fmt.Errorf("failed to create summary: %w", err)
			}
		default:
			return fmt.Errorf("failed to look up summary: %w", lookup.Error)
		}

		result := tx.Model(&internal_entity.Conversation{}).
			Where("id = ? AND status = ?", conversationId, internal_entity.ConversationStatusActive).
			Updates(map[string]interface{}{
				"status":       internal_entity.ConversationStatusSummarized,
				"end_time":     endTime,
				"updated_date": time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark conversation summarized: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("conversation %d not found or not active", conversationId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Infof("summarized conversation: id=%d", conversationId)
	return r.Get(ctx, conversationId)
}
