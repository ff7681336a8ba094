// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_intelligence

import (
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const (
	ToolTakeNote              = "take_note"
	ToolScheduleFollowUp      = "schedule_follow_up"
	ToolWritePrescription     = "write_prescription"
	ToolRequestSummary        = "request_summary"
	ToolRequestMedicalHistory = "request_medical_history"
)

const commandSystemPrompt = `You are the command detector of a medical interpreter.
The user text is a clinician utterance. If it instructs the assistant to take a note,
schedule a follow-up, write a prescription, request a visit summary or request the
patient's medical history, call the matching tool. Plain conversation directed at
the patient is not a command; in that case do not call any tool.`

// commandTools returns the tool definitions offered on every command
// detection call.
func commandTools() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Function: shared.FunctionDefinitionParam{
				Name:        ToolTakeNote,
				Description: param.NewOpt("Record a free-text clinical note for this conversation."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"note_content": map[string]interface{}{
							"type":        "string",
							"description": "The content of the note to record.",
						},
					},
					"required": []string{"note_content"},
				},
			},
		},
		{
			Function: shared.FunctionDefinitionParam{
				Name:        ToolScheduleFollowUp,
				Description: param.NewOpt("Schedule a follow-up appointment relative to now."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"duration": map[string]interface{}{
							"type":        "number",
							"description": "How many units from now, greater than zero.",
						},
						"unit": map[string]interface{}{
							"type": "string",
							"enum": []string{"day", "week", "month"},
						},
						"details": map[string]interface{}{
							"type":        "string",
							"description": "Optional free-text reason for the follow-up.",
						},
					},
					"required": []string{"duration", "unit"},
				},
			},
		},
		{
			Function: shared.FunctionDefinitionParam{
				Name:        ToolWritePrescription,
				Description: param.NewOpt("Record a prescription for this conversation."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"medication_name": map[string]interface{}{"type": "string"},
						"dosage":          map[string]interface{}{"type": "string"},
						"frequency":       map[string]interface{}{"type": "string"},
						"details": map[string]interface{}{
							"type":        "string",
							"description": "Optional additional instructions.",
						},
					},
					"required": []string{"medication_name", "dosage", "frequency"},
				},
			},
		},
		{
			Function: shared.FunctionDefinitionParam{
				Name:        ToolRequestSummary,
				Description: param.NewOpt("The clinician asked for a summary of the visit so far."),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		},
		{
			Function: shared.FunctionDefinitionParam{
				Name:        ToolRequestMedicalHistory,
				Description: param.NewOpt("The clinician asked for the patient's medical history."),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		},
	}
}
