// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_intelligence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

// SpeechSynthesizer renders text into playable audio. The returned bytes are
// an encoded audio/mpeg payload; an empty slice means synthesis was skipped.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

type openAISynthesizer struct {
	client       *resty.Client
	host         string
	model        string
	defaultVoice string
	logger       commons.Logger
}

func NewOpenAISynthesizer(cfg *config.AppConfig, logger commons.Logger) (SpeechSynthesizer, error) {
	if utils.IsEmpty(cfg.OpenAIConfig.ApiKey) {
		return nil, fmt.Errorf("openai api key is not configured")
	}
	client := resty.New().
		SetAuthToken(cfg.OpenAIConfig.ApiKey).
		SetTimeout(30 * time.Second)
	return &openAISynthesizer{
		client:       client,
		host:         cfg.OpenAIConfig.TtsHost,
		model:        cfg.OpenAIConfig.TtsModel,
		defaultVoice: cfg.OpenAIConfig.TtsVoice,
		logger:       logger,
	}, nil
}

func (s *openAISynthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if utils.IsEmpty(text) {
		return nil, nil
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(speechRequest{
			Model:          s.model,
			Input:          text,
			Voice:          s.voiceFor(language),
			ResponseFormat: "mp3",
		}).
		Post(s.host)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("speech synthesis returned status %d: %s", resp.StatusCode(), resp.String())
	}

	audio := resp.Body()
	s.logger.Debugf("synthesized speech: language=%s, bytes=%d", language, len(audio))
	return audio, nil
}

// voiceFor picks a voice per target language. The upstream voices are
// multilingual, so this is a hint rather than a hard mapping.
func (s *openAISynthesizer) voiceFor(language string) string {
	switch language {
	case "es", "pt", "it":
		return "nova"
	case "fr", "de":
		return "shimmer"
	default:
		return s.defaultVoice
	}
}
