// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

// CommandInvocation is a detected tool call extracted from a clinician
// utterance. Arguments carry the raw decoded JSON object.
type CommandInvocation struct {
	ToolName  string
	Arguments map[string]interface{}
}

// Intelligence is the language-model surface used by the pipeline and the
// coordinator. Every method degrades gracefully: a transient upstream failure
// is returned as an error and the caller decides whether it is fatal.
type Intelligence interface {
	// DetectLanguage returns the ISO 639-1 code of the predominant language
	// of text, or "unknown" when the model answer is not a two-letter code.
	DetectLanguage(ctx context.Context, text string) (string, error)

	// Translate renders text from sourceLanguage into targetLanguage.
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)

	// DetectCommand returns the tool invocation embedded in a clinician
	// utterance, or nil when the utterance is plain conversation.
	DetectCommand(ctx context.Context, text string) (*CommandInvocation, error)

	// Summarize produces a clinical visit summary from the combined
	// transcript and recorded-actions context.
	Summarize(ctx context.Context, transcriptContext string) (string, error)

	// GenerateMedicalHistory produces a brief plausible medical history
	// for a patient identified by name and date of birth.
	GenerateMedicalHistory(ctx context.Context, firstName, lastName, dob string) (string, error)
}

type openAIIntelligence struct {
	client openai.Client
	model  string
	logger commons.Logger
}

func NewOpenAIIntelligence(cfg *config.AppConfig, logger commons.Logger) (Intelligence, error) {
	if utils.IsEmpty(cfg.OpenAIConfig.ApiKey) {
		return nil, fmt.Errorf("openai api key is not configured")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.OpenAIConfig.ApiKey))
	return &openAIIntelligence{
		client: client,
		model:  cfg.OpenAIConfig.LlmModel,
		logger: logger,
	}, nil
}

// complete issues a single-turn chat completion and returns the first
// choice's text content.
func (ai *openAIIntelligence) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := ai.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(ai.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (ai *openAIIntelligence) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, err := ai.complete(ctx,
		"You are a language identifier. Reply with only the ISO 639-1 two-letter lowercase code of the predominant language of the user text. Reply with exactly two letters and nothing else.",
		text)
	if err != nil {
		return "", err
	}
	return NormalizeLanguageCode(out), nil
}

// NormalizeLanguageCode trims and lowercases a model answer and collapses
// anything that is not a bare ISO 639-1 code to "unknown".
func NormalizeLanguageCode(raw string) string {
	code := strings.ToLower(strings.TrimSpace(raw))
	code = strings.Trim(code, ".\"'`")
	if !utils.IsLanguageCode(code) {
		return "unknown"
	}
	return code
}

func (ai *openAIIntelligence) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	system := fmt.Sprintf(
		"You are a medical interpreter. Translate the user text from %s to %s. Preserve clinical meaning and register. Reply with only the translation.",
		sourceLanguage, targetLanguage)
	out, err := ai.complete(ctx, system, text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (ai *openAIIntelligence) DetectCommand(ctx context.Context, text string) (*CommandInvocation, error) {
	resp, err := ai.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(ai.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(commandSystemPrompt),
			openai.UserMessage(text),
		},
		Tools: commandTools(),
	})
	if err != nil {
		return nil, fmt.Errorf("command detection failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("command detection returned no choices")
	}

	toolCalls := resp.Choices[0].Message.ToolCalls
	if len(toolCalls) == 0 {
		return nil, nil
	}

	call := toolCalls[0]
	arguments := map[string]interface{}{}
	if !utils.IsEmpty(call.Function.Arguments) {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &arguments); err != nil {
			return nil, fmt.Errorf("failed to decode arguments for tool %s: %w", call.Function.Name, err)
		}
	}
	ai.logger.Debugf("detected command: tool=%s", call.Function.Name)
	return &CommandInvocation{
		ToolName:  call.Function.Name,
		Arguments: arguments,
	}, nil
}

func (ai *openAIIntelligence) Summarize(ctx context.Context, transcriptContext string) (string, error) {
	out, err := ai.complete(ctx,
		"You are a clinical scribe. Write a concise visit summary of the following interpreted clinician-patient conversation. Cover chief complaint, findings discussed, and any recorded notes, prescriptions or follow-ups. Use plain prose.",
		transcriptContext)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (ai *openAIIntelligence) GenerateMedicalHistory(ctx context.Context, firstName, lastName, dob string) (string, error) {
	prompt := fmt.Sprintf("Patient: %s %s, date of birth %s.", firstName, lastName, dob)
	out, err := ai.complete(ctx,
		"You are a medical records assistant. Produce a brief mock medical history for the given patient: known conditions, current medications, allergies. Keep it under 150 words.",
		prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
