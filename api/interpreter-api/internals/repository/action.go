// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_repository

import (
	"context"
	"fmt"
	"sort"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

// ActionRepository persists the structured clinical actions produced by
// command execution and serves the aggregated view behind get_actions.
type ActionRepository interface {
	CreateNote(ctx context.Context, note *internal_entity.Note) error
	CreateFollowUp(ctx context.Context, followUp *internal_entity.FollowUp) error
	CreatePrescription(ctx context.Context, prescription *internal_entity.Prescription) error

	NotesByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Note, error)
	FollowUpsByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.FollowUp, error)
	PrescriptionsByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Prescription, error)

	// AggregatedByConversation merges all three action kinds into the uniform
	// projection, sorted by creation time.
	AggregatedByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.AggregatedAction, error)
}

type actionRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

func NewActionRepository(postgres connectors.PostgresConnector, logger commons.Logger) ActionRepository {
	return &actionRepository{postgres: postgres, logger: logger}
}

func (r *actionRepository) CreateNote(ctx context.Context, note *internal_entity.Note) error {
	if note.Status == "" {
		note.Status = internal_entity.ActionStatusPending
	}
	if err := r.postgres.DB(ctx).Create(note).Error; err != nil {
		return fmt.Errorf("failed to create note for conversation %d: %w", note.ConversationId, err)
	}
	r.logger.Infof("created note: id=%d, conversation=%d", note.Id, note.ConversationId)
	return nil
}

func (r *actionRepository) CreateFollowUp(ctx context.Context, followUp *internal_entity.FollowUp) error {
	if followUp.Status == "" {
		followUp.Status = internal_entity.ActionStatusPending
	}
	if err := r.postgres.DB(ctx).Create(followUp).Error; err != nil {
		return fmt.Errorf("failed to create follow-up for conversation %d: %w", followUp.ConversationId, err)
	}
	r.logger.Infof("created follow-up: id=%d, conversation=%d, scheduledFor=%s",
		followUp.Id, followUp.ConversationId, followUp.ScheduledFor)
	return nil
}

func (r *actionRepository) CreatePrescription(ctx context.Context, prescription *internal_entity.Prescription) error {
	if prescription.Status == "" {
		prescription.Status = internal_entity.ActionStatusPending
	}
	if err := r.postgres.DB(ctx).Create(prescription).Error; err != nil {
		return fmt.Errorf("failed to create prescription for conversation %d: %w", prescription.ConversationId, err)
	}
	r.logger.Infof("created prescription: id=%d, conversation=%d, medication=%s",
		prescription.Id, prescription.ConversationId, prescription.MedicationName)
	return nil
}

func (r *actionRepository) NotesByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Note, error) {
	var notes []*internal_entity.Note
	if err := r.postgres.DB(ctx).
		Where("conversation_id = ?", conversationId).
		Order("created_date ASC").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list notes for conversation %d: %w", conversationId, err)
	}
	return notes, nil
}

func (r *actionRepository) FollowUpsByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.FollowUp, error) {
	var followUps []*internal_entity.FollowUp
	if err := r.postgres.DB(ctx).
		Where("conversation_id = ?", conversationId).
		Order("created_date ASC").
		Find(&followUps).Error; err != nil {
		return nil, fmt.Errorf("failed to list follow-ups for conversation %d: %w", conversationId, err)
	}
	return followUps, nil
}

func (r *actionRepository) PrescriptionsByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Prescription, error) {
	var prescriptions []*internal_entity.Prescription
	if err := r.postgres.DB(ctx).
		Where("conversation_id = ?", conversationId).
		Order("created_date ASC").
		Find(&prescriptions).Error; err != nil {
		return nil, fmt.Errorf("failed to list prescriptions for conversation %d: %w", conversationId, err)
	}
	return prescriptions, nil
}

func (r *actionRepository) AggregatedByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.AggregatedAction, error) {
	notes, err := r.NotesByConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	followUps, err := r.FollowUpsByConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	prescriptions, err := r.PrescriptionsByConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	actions := make([]*internal_entity.AggregatedAction, 0, len(notes)+len(followUps)+len(prescriptions))
	for _, n := range notes {
		actions = append(actions, internal_entity.AggregateNote(n))
	}
	for _, f := range followUps {
		actions = append(actions, internal_entity.AggregateFollowUp(f))
	}
	for _, p := range prescriptions {
		actions = append(actions, internal_entity.AggregatePrescription(p))
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})
	return actions, nil
}
