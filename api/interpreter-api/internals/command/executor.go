// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_command

import (
	"context"
	"fmt"
	"time"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
	internal_intelligence "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/intelligence"
	internal_repository "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/repository"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

// ExecutionResult is the typed outcome of one command dispatch, broadcast to
// clients as the command_executed payload.
type ExecutionResult struct {
	Status  string      `json:"status"`
	Name    string      `json:"name"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Executor turns a detected tool invocation into a repository effect and
// notifies the hub about any created action.
type Executor interface {
	Execute(ctx context.Context, conversationId uint64, invocation *internal_intelligence.CommandInvocation) *ExecutionResult
}

type commandExecutor struct {
	actions internal_repository.ActionRepository
	hub     internal_hub.Hub
	logger  commons.Logger
	// now is injectable for follow-up scheduling tests.
	now func() time.Time
}

func NewCommandExecutor(actions internal_repository.ActionRepository, hub internal_hub.Hub, logger commons.Logger) Executor {
	return &commandExecutor{
		actions: actions,
		hub:     hub,
		logger:  logger,
		now:     time.Now,
	}
}

func (e *commandExecutor) Execute(ctx context.Context, conversationId uint64, invocation *internal_intelligence.CommandInvocation) *ExecutionResult {
	var result *ExecutionResult
	switch invocation.ToolName {
	case internal_intelligence.ToolTakeNote:
		result = e.takeNote(ctx, conversationId, invocation.Arguments)
	case internal_intelligence.ToolScheduleFollowUp:
		result = e.scheduleFollowUp(ctx, conversationId, invocation.Arguments)
	case internal_intelligence.ToolWritePrescription:
		result = e.writePrescription(ctx, conversationId, invocation.Arguments)
	case internal_intelligence.ToolRequestSummary:
		result = &ExecutionResult{
			Status:  StatusSuccess,
			Name:    invocation.ToolName,
			Message: "summary request acknowledged",
		}
	case internal_intelligence.ToolRequestMedicalHistory:
		result = &ExecutionResult{
			Status:  StatusSuccess,
			Name:    invocation.ToolName,
			Message: "medical history request acknowledged",
		}
	default:
		result = &ExecutionResult{
			Status:  StatusNotFound,
			Name:    invocation.ToolName,
			Message: fmt.Sprintf("unknown tool: %s", invocation.ToolName),
		}
	}

	e.logger.Infof("executed command: conversation=%d, tool=%s, status=%s",
		conversationId, invocation.ToolName, result.Status)
	return result
}

func (e *commandExecutor) takeNote(ctx context.Context, conversationId uint64, args map[string]interface{}) *ExecutionResult {
	content, ok := stringArg(args, "note_content")
	if !ok {
		return argumentError(internal_intelligence.ToolTakeNote, "note_content is required")
	}

	note := &internal_entity.Note{
		ConversationId: conversationId,
		Content:        content,
	}
	if err := e.actions.CreateNote(ctx, note); err != nil {
		return executionError(internal_intelligence.ToolTakeNote, err)
	}

	e.hub.NotifyActionCreated(conversationId, internal_entity.AggregateNote(note))
	return &ExecutionResult{
		Status:  StatusSuccess,
		Name:    internal_intelligence.ToolTakeNote,
		Message: "note recorded",
		Data:    map[string]interface{}{"note": note},
	}
}

func (e *commandExecutor) scheduleFollowUp(ctx context.Context, conversationId uint64, args map[string]interface{}) *ExecutionResult {
	duration, ok := numberArg(args, "duration")
	if !ok || duration <= 0 {
		return argumentError(internal_intelligence.ToolScheduleFollowUp, "duration must be a number greater than zero")
	}
	unit, ok := stringArg(args, "unit")
	if !ok {
		return argumentError(internal_intelligence.ToolScheduleFollowUp, "unit is required")
	}
	unitDuration, err := followUpUnit(unit)
	if err != nil {
		return argumentError(internal_intelligence.ToolScheduleFollowUp, err.Error())
	}
	details, _ := stringArg(args, "details")

	followUp := &internal_entity.FollowUp{
		ConversationId: conversationId,
		ScheduledFor:   e.now().Add(time.Duration(duration * float64(unitDuration))),
		Details:        details,
	}
	if err := e.actions.CreateFollowUp(ctx, followUp); err != nil {
		return executionError(internal_intelligence.ToolScheduleFollowUp, err)
	}

	e.hub.NotifyActionCreated(conversationId, internal_entity.AggregateFollowUp(followUp))
	return &ExecutionResult{
		Status:  StatusSuccess,
		Name:    internal_intelligence.ToolScheduleFollowUp,
		Message: "follow-up scheduled",
		Data:    map[string]interface{}{"followUp": followUp},
	}
}

func (e *commandExecutor) writePrescription(ctx context.Context, conversationId uint64, args map[string]interface{}) *ExecutionResult {
	medication, ok := stringArg(args, "medication_name")
	if !ok {
		return argumentError(internal_intelligence.ToolWritePrescription, "medication_name is required")
	}
	dosage, ok := stringArg(args, "dosage")
	if !ok {
		return argumentError(internal_intelligence.ToolWritePrescription, "dosage is required")
	}
	frequency, ok := stringArg(args, "frequency")
	if !ok {
		return argumentError(internal_intelligence.ToolWritePrescription, "frequency is required")
	}
	details, _ := stringArg(args, "details")

	prescription := &internal_entity.Prescription{
		ConversationId: conversationId,
		MedicationName: medication,
		Dosage:         dosage,
		Frequency:      frequency,
		Details:        details,
	}
	if err := e.actions.CreatePrescription(ctx, prescription); err != nil {
		return executionError(internal_intelligence.ToolWritePrescription, err)
	}

	e.hub.NotifyActionCreated(conversationId, internal_entity.AggregatePrescription(prescription))
	return &ExecutionResult{
		Status:  StatusSuccess,
		Name:    internal_intelligence.ToolWritePrescription,
		Message: "prescription recorded",
		Data:    map[string]interface{}{"prescription": prescription},
	}
}

func followUpUnit(unit string) (time.Duration, error) {
	switch unit {
	case "day":
		return 24 * time.Hour, nil
	case "week":
		return 7 * 24 * time.Hour, nil
	case "month":
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unit must be one of day, week, month")
	}
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	raw, ok := args[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok || utils.IsEmpty(value) {
		return "", false
	}
	return value, true
}

func numberArg(args map[string]interface{}, key string) (float64, bool) {
	raw, ok := args[key]
	if !ok {
		return 0, false
	}
	value, ok := raw.(float64)
	if !ok {
		return 0, false
	}
	return value, true
}

func argumentError(name, message string) *ExecutionResult {
	return &ExecutionResult{Status: StatusError, Name: name, Message: message}
}

func executionError(name string, err error) *ExecutionResult {
	return &ExecutionResult{Status: StatusError, Name: name, Message: err.Error()}
}
