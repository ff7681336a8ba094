// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_pipeline

import (
	"context"
	"encoding/base64"
	"strings"

	internal_command "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/command"
	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
	internal_intelligence "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/intelligence"
	internal_repository "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/repository"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

const englishLanguage = "en"

// Pipeline processes one completed utterance end to end: language detection,
// sender classification, persistence, translation, speech synthesis and
// client broadcasts. Command detection runs concurrently for clinician
// utterances and never blocks the main path.
type Pipeline interface {
	// ProcessTranscript handles a single completed utterance. Callers must
	// invoke it serially per conversation, in upstream arrival order.
	ProcessTranscript(ctx context.Context, conversationId uint64, transcript string)
}

type transcriptPipeline struct {
	intelligence  internal_intelligence.Intelligence
	synthesizer   internal_intelligence.SpeechSynthesizer
	conversations internal_repository.ConversationRepository
	messages      internal_repository.MessageRepository
	executor      internal_command.Executor
	hub           internal_hub.Hub
	logger        commons.Logger
}

func NewTranscriptPipeline(
	intelligence internal_intelligence.Intelligence,
	synthesizer internal_intelligence.SpeechSynthesizer,
	conversations internal_repository.ConversationRepository,
	messages internal_repository.MessageRepository,
	executor internal_command.Executor,
	hub internal_hub.Hub,
	logger commons.Logger,
) Pipeline {
	return &transcriptPipeline{
		intelligence:  intelligence,
		synthesizer:   synthesizer,
		conversations: conversations,
		messages:      messages,
		executor:      executor,
		hub:           hub,
		logger:        logger,
	}
}

func (p *transcriptPipeline) ProcessTranscript(ctx context.Context, conversationId uint64, transcript string) {
	transcript = strings.TrimSpace(transcript)
	if utils.IsEmpty(transcript) {
		return
	}

	conversation, err := p.conversations.Get(ctx, conversationId)
	if err != nil {
		p.logger.Errorf("pipeline: conversation %d not found, dropping utterance: %v", conversationId, err)
		return
	}
	// Upstream audio can outlive the conversation; nothing is persisted or
	// broadcast once it went terminal.
	if conversation.IsTerminal() {
		p.logger.Warnf("pipeline: conversation %d is %s, dropping utterance", conversationId, conversation.Status)
		return
	}

	language, err := p.intelligence.DetectLanguage(ctx, transcript)
	if err != nil {
		p.logger.Warnf("pipeline: language detection failed for conversation %d: %v", conversationId, err)
		language = internal_entity.LanguageUnknown
	}

	senderType := internal_entity.SenderTypePatient
	if language == englishLanguage || language == internal_entity.LanguageUnknown {
		senderType = internal_entity.SenderTypeUser
	}

	if senderType == internal_entity.SenderTypeUser {
		utils.Go(p.logger, func() {
			p.detectAndExecuteCommand(ctx, conversationId, transcript)
		})
	}

	p.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventTranscriptionStarted, nil))

	message := &internal_entity.Message{
		ConversationId: conversationId,
		SenderType:     senderType,
		Language:       language,
		OriginalText:   transcript,
	}
	if err := p.messages.Create(ctx, message); err != nil {
		p.logger.Errorf("pipeline: failed to persist utterance for conversation %d: %v", conversationId, err)
		p.hub.BroadcastMessage(conversationId, internal_hub.NewErrorEvent("failed to save message"))
		return
	}
	p.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventNewMessage, message))

	ttsText := transcript
	ttsLanguage := language
	translated, target := p.translate(ctx, conversation, senderType, language, transcript)
	if !utils.IsEmpty(translated) {
		if saved := p.persistTranslation(ctx, conversationId, message.Id, transcript, translated, target); saved != nil {
			p.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventNewMessage, saved))
		}
		ttsText = translated
		ttsLanguage = target
	}

	p.synthesizeAndBroadcast(ctx, conversationId, message.Id, ttsText, ttsLanguage)
	p.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventProcessingCompleted, nil))
}

func (p *transcriptPipeline) detectAndExecuteCommand(ctx context.Context, conversationId uint64, transcript string) {
	invocation, err := p.intelligence.DetectCommand(ctx, transcript)
	if err != nil {
		p.logger.Warnf("pipeline: command detection failed for conversation %d: %v", conversationId, err)
		return
	}
	if invocation == nil {
		return
	}
	result := p.executor.Execute(ctx, conversationId, invocation)
	p.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventCommandExecuted, result))
}

// translate decides whether the utterance needs rendering into the other
// party's language, updates the stored patient language on change, and
// returns the translation and its target language. An empty translation
// means none is needed or the model failed.
func (p *transcriptPipeline) translate(
	ctx context.Context,
	conversation *internal_entity.Conversation,
	senderType, language, transcript string,
) (string, string) {
	switch {
	case senderType == internal_entity.SenderTypePatient &&
		language != englishLanguage && language != internal_entity.LanguageUnknown:
		if language != conversation.PatientLanguage {
			if err := p.conversations.UpdatePatientLanguage(ctx, conversation.Id, language); err != nil {
				p.logger.Warnf("pipeline: failed to update patient language for conversation %d: %v",
					conversation.Id, err)
			}
		}
		return p.requestTranslation(ctx, conversation.Id, transcript, language, englishLanguage)

	case senderType == internal_entity.SenderTypeUser &&
		!utils.IsEmpty(conversation.PatientLanguage) && conversation.PatientLanguage != englishLanguage:
		return p.requestTranslation(ctx, conversation.Id, transcript, englishLanguage, conversation.PatientLanguage)

	default:
		return "", ""
	}
}

func (p *transcriptPipeline) requestTranslation(ctx context.Context, conversationId uint64, transcript, source, target string) (string, string) {
	p.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventTranslationStarted, nil))

	translated, err := p.intelligence.Translate(ctx, transcript, source, target)
	if err != nil {
		p.logger.Warnf("pipeline: translation %s->%s failed for conversation %d: %v",
			source, target, conversationId, err)
		return "", ""
	}
	return translated, target
}

func (p *transcriptPipeline) persistTranslation(
	ctx context.Context,
	conversationId, originalMessageId uint64,
	original, translated, target string,
) *internal_entity.Message {
	message := &internal_entity.Message{
		ConversationId:    conversationId,
		SenderType:        internal_entity.SenderTypeTranslation,
		Language:          target,
		OriginalText:      original,
		TranslatedText:    &translated,
		OriginalMessageId: &originalMessageId,
	}
	if err := p.messages.Create(ctx, message); err != nil {
		// TTS still proceeds from the in-memory translation.
		p.logger.Errorf("pipeline: failed to persist translation for conversation %d: %v", conversationId, err)
		p.hub.BroadcastMessage(conversationId, internal_hub.NewErrorEvent("failed to save translation"))
		return nil
	}
	return message
}

func (p *transcriptPipeline) synthesizeAndBroadcast(ctx context.Context, conversationId, originalMessageId uint64, text, language string) {
	audio, err := p.synthesizer.Synthesize(ctx, text, language)
	if err != nil {
		p.logger.Warnf("pipeline: speech synthesis failed for conversation %d: %v", conversationId, err)
		return
	}
	if len(audio) == 0 {
		return
	}
	p.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventTtsAudio, &internal_hub.TtsAudioPayload{
		AudioBase64:       base64.StdEncoding.EncodeToString(audio),
		Format:            "audio/mpeg",
		OriginalMessageId: originalMessageId,
	}))
}
