// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
	internal_intelligence "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/intelligence"
	internal_pipeline "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/pipeline"
	internal_repository "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/repository"
	internal_stt "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/stt"
	internal_transcoder "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/transcoder"
	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"

	"github.com/gorilla/websocket"
)

// SessionFactory dials one upstream transcription connection.
type SessionFactory func(cb internal_stt.Callbacks) (internal_stt.Session, error)

// TranscoderFactory launches one audio decoder.
type TranscoderFactory func(cb internal_transcoder.Callbacks) (internal_transcoder.Transcoder, error)

// SessionStart is the session_started payload.
type SessionStart struct {
	ConversationId uint64    `json:"conversationId"`
	PatientId      uint64    `json:"patientId"`
	StartTime      time.Time `json:"startTime"`
}

// Selection is the conversation_selected payload.
type Selection struct {
	ConversationId  uint64  `json:"conversationId"`
	IsActive        bool    `json:"isActive"`
	Status          string  `json:"status"`
	Summary         *string `json:"summary"`
	PatientLanguage string  `json:"patientLanguage"`
}

// Coordinator is the per-conversation state machine. It owns the upstream
// STT session and the transcoder for every live conversation, drives
// reconnection, and serializes utterance processing per conversation.
type Coordinator interface {
	StartSession(ctx context.Context, userId uint64, firstName, lastName string, dob time.Time) (*SessionStart, error)
	SelectConversation(ctx context.Context, client internal_hub.Client, userId, conversationId uint64) (*Selection, error)
	EndAndSummarize(ctx context.Context, userId, conversationId uint64) (*internal_entity.Conversation, *string, error)

	// EnsureUpstream lazily connects the upstream session for a conversation
	// and returns the current client-visible connection status.
	EnsureUpstream(conversationId uint64) string

	// AppendAudio feeds one compressed client chunk to the transcoder.
	AppendAudio(conversationId uint64, chunk []byte) error

	// FinalizeAudio ends the client stream; the transcoder flushes and the
	// buffered upstream audio is committed exactly once.
	FinalizeAudio(conversationId uint64) error

	Pause(conversationId uint64)
	Resume(conversationId uint64)

	// ReleaseClient drops a control client; when it was the last subscriber
	// of its conversation the upstream resources are torn down.
	ReleaseClient(client internal_hub.Client, conversationId uint64)

	// Shutdown tears down every live conversation.
	Shutdown()
}

type conversationCoordinator struct {
	cfg          *config.AppConfig
	logger       commons.Logger
	hub          internal_hub.Hub
	pipeline     internal_pipeline.Pipeline
	intelligence internal_intelligence.Intelligence

	patients      internal_repository.PatientRepository
	conversations internal_repository.ConversationRepository
	messages      internal_repository.MessageRepository
	actions       internal_repository.ActionRepository
	summaries     internal_repository.SummaryRepository
	histories     internal_repository.MedicalHistoryRepository

	newSession    SessionFactory
	newTranscoder TranscoderFactory
	// afterFunc is injectable so reconnect scheduling is testable.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu     sync.Mutex
	states map[uint64]*conversationState
}

func NewConversationCoordinator(
	cfg *config.AppConfig,
	logger commons.Logger,
	hub internal_hub.Hub,
	pipeline internal_pipeline.Pipeline,
	intelligence internal_intelligence.Intelligence,
	patients internal_repository.PatientRepository,
	conversations internal_repository.ConversationRepository,
	messages internal_repository.MessageRepository,
	actions internal_repository.ActionRepository,
	summaries internal_repository.SummaryRepository,
	histories internal_repository.MedicalHistoryRepository,
) Coordinator {
	c := &conversationCoordinator{
		cfg:           cfg,
		logger:        logger,
		hub:           hub,
		pipeline:      pipeline,
		intelligence:  intelligence,
		patients:      patients,
		conversations: conversations,
		messages:      messages,
		actions:       actions,
		summaries:     summaries,
		histories:     histories,
		afterFunc:     time.AfterFunc,
		states:        map[uint64]*conversationState{},
	}
	c.newSession = func(cb internal_stt.Callbacks) (internal_stt.Session, error) {
		return internal_stt.Connect(cfg, logger, cb)
	}
	c.newTranscoder = func(cb internal_transcoder.Callbacks) (internal_transcoder.Transcoder, error) {
		return internal_transcoder.NewFfmpegTranscoder(context.Background(), logger, cfg.FfmpegPath, cb)
	}
	return c
}

func (c *conversationCoordinator) StartSession(ctx context.Context, userId uint64, firstName, lastName string, dob time.Time) (*SessionStart, error) {
	patient, err := c.patients.FindOrCreate(ctx, firstName, lastName, dob)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve patient: %w", err)
	}

	conversation := &internal_entity.Conversation{
		UserId:    userId,
		PatientId: patient.Id,
		StartTime: time.Now(),
	}
	if err := c.conversations.Create(ctx, conversation); err != nil {
		return nil, err
	}

	utils.Go(c.logger, func() {
		c.generateMedicalHistory(conversation.Id, patient)
	})

	return &SessionStart{
		ConversationId: conversation.Id,
		PatientId:      patient.Id,
		StartTime:      conversation.StartTime,
	}, nil
}

func (c *conversationCoordinator) generateMedicalHistory(conversationId uint64, patient *internal_entity.Patient) {
	ctx := context.Background()
	content, err := c.intelligence.GenerateMedicalHistory(ctx,
		patient.FirstName, patient.LastName, patient.DateOfBirth.Format("2006-01-02"))
	if err != nil {
		c.logger.Warnf("coordinator: medical history generation failed for conversation %d: %v", conversationId, err)
		return
	}
	if _, err := c.histories.Upsert(ctx, conversationId, content); err != nil {
		c.logger.Errorf("coordinator: failed to persist medical history for conversation %d: %v", conversationId, err)
		return
	}
	c.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventMedicalHistoryData,
		&internal_hub.MedicalHistoryPayload{
			ConversationId: conversationId,
			MedicalHistory: &content,
		}))
}

func (c *conversationCoordinator) SelectConversation(ctx context.Context, client internal_hub.Client, userId, conversationId uint64) (*Selection, error) {
	conversation, err := c.conversations.Get(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if conversation.UserId != userId {
		return nil, fmt.Errorf("conversation %d does not belong to user %d", conversationId, userId)
	}

	c.hub.RegisterClient(client, conversationId)

	var summaryContent *string
	summary, err := c.summaries.GetByConversation(ctx, conversationId)
	if err != nil {
		c.logger.Warnf("coordinator: failed to load summary for conversation %d: %v", conversationId, err)
	} else if summary != nil {
		summaryContent = &summary.Content
	}

	return &Selection{
		ConversationId:  conversationId,
		IsActive:        conversation.Status == internal_entity.ConversationStatusActive,
		Status:          conversation.Status,
		Summary:         summaryContent,
		PatientLanguage: conversation.PatientLanguage,
	}, nil
}

// state returns the live state for a conversation, creating it on first use.
func (c *conversationCoordinator) state(conversationId uint64) *conversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[conversationId]; ok {
		return s
	}
	s := newConversationState(conversationId)
	c.states[conversationId] = s
	s.workerOnce.Do(func() {
		utils.Go(c.logger, func() {
			c.transcriptWorker(s)
		})
	})
	return s
}

// transcriptWorker drains the per-conversation queue, keeping utterances in
// arrival order through the pipeline.
func (c *conversationCoordinator) transcriptWorker(s *conversationState) {
	for transcript := range s.transcripts {
		c.pipeline.ProcessTranscript(context.Background(), s.conversationId, transcript)
	}
}

func (c *conversationCoordinator) EnsureUpstream(conversationId uint64) string {
	s := c.state(conversationId)

	s.mu.Lock()
	if s.state == stateIdle || s.state == stateTerminal {
		s.state = stateConnecting
		s.mu.Unlock()
		c.connect(s)
	} else {
		s.mu.Unlock()
	}
	return s.connectionStatus()
}

// connect performs one dial attempt: fresh transcoder, fresh session. On
// failure it schedules a backoff retry.
func (c *conversationCoordinator) connect(s *conversationState) {
	if utils.IsEmpty(c.cfg.OpenAIConfig.ApiKey) {
		c.logger.Errorf("coordinator: upstream api key missing, conversation %d cannot connect", s.conversationId)
		c.hub.BroadcastMessage(s.conversationId, internal_hub.NewErrorEvent("transcription is not configured"))
		s.mu.Lock()
		s.state = stateTerminal
		s.mu.Unlock()
		return
	}

	transcoder, err := c.launchTranscoder(s)
	if err != nil {
		c.logger.Errorf("coordinator: failed to start transcoder for conversation %d: %v", s.conversationId, err)
		c.scheduleReconnect(s)
		return
	}

	session, err := c.newSession(internal_stt.Callbacks{
		OnTranscript: func(transcript string) {
			s.mu.Lock()
			s.upstreamErrors = 0
			s.mu.Unlock()
			if !s.enqueueTranscript(transcript) {
				c.logger.Warnf("coordinator: transcript queue full for conversation %d, dropping utterance", s.conversationId)
			}
		},
		OnClose: func(code int, reason string) { c.handleUpstreamClose(s, code, reason) },
		OnError: func(err error) { c.handleUpstreamError(s, err) },
	})
	if err != nil {
		c.logger.Errorf("coordinator: failed to dial upstream for conversation %d: %v", s.conversationId, err)
		transcoder.Stop()
		c.scheduleReconnect(s)
		return
	}

	s.mu.Lock()
	if old := s.transcoder; old != nil {
		old.Stop()
	}
	s.transcoder = transcoder
	s.session = session
	s.state = stateOpen
	s.attempts = 0
	s.committed = false
	s.upstreamErrors = 0
	s.mu.Unlock()

	c.logger.Infof("coordinator: upstream connected for conversation %d", s.conversationId)
	c.hub.BroadcastMessage(s.conversationId, internal_hub.NewEvent(internal_hub.EventOpenAIConnected, nil))
}

// launchTranscoder starts one decode cycle. The decoder process exits when a
// client stream is finalized, so every cycle gets a fresh instance.
func (c *conversationCoordinator) launchTranscoder(s *conversationState) (internal_transcoder.Transcoder, error) {
	return c.newTranscoder(internal_transcoder.Callbacks{
		OnData:     func(pcm []byte) { c.forwardPCM(s, pcm) },
		OnFinished: func() { c.finishCycle(s) },
		OnError: func(err error) {
			c.logger.Errorf("coordinator: transcoder failed for conversation %d: %v", s.conversationId, err)
			c.hub.BroadcastMessage(s.conversationId, internal_hub.NewErrorEvent("audio decoding failed"))
			c.teardown(s.conversationId)
		},
	})
}

// finishCycle commits the flushed audio and retires the spent decoder; the
// next client chunk starts a new cycle.
func (c *conversationCoordinator) finishCycle(s *conversationState) {
	c.commitUpstream(s)
	s.mu.Lock()
	s.transcoder = nil
	s.mu.Unlock()
}

// forwardPCM relays decoded audio upstream unless the conversation is paused
// or the session is not open. Dropped audio is never buffered for replay.
func (c *conversationCoordinator) forwardPCM(s *conversationState, pcm []byte) {
	s.mu.Lock()
	session := s.session
	open := s.state == stateOpen && !s.isPaused
	s.mu.Unlock()
	if !open || session == nil {
		return
	}
	if err := session.AppendAudio(pcm); err != nil {
		c.logger.Warnf("coordinator: failed to forward audio for conversation %d: %v", s.conversationId, err)
	}
}

// commitUpstream sends the commit frame at most once per finalize cycle.
func (c *conversationCoordinator) commitUpstream(s *conversationState) {
	s.mu.Lock()
	session := s.session
	already := s.committed
	s.committed = true
	s.mu.Unlock()
	if already || session == nil {
		return
	}
	if err := session.Commit(); err != nil {
		c.logger.Warnf("coordinator: failed to commit audio for conversation %d: %v", s.conversationId, err)
	}
}

// handleUpstreamError counts error frames arriving on an otherwise live
// connection. An upstream that streams errors without ever closing is
// recycled through the usual backoff once the run gets long enough.
func (c *conversationCoordinator) handleUpstreamError(s *conversationState, err error) {
	c.logger.Warnf("coordinator: upstream error for conversation %d: %v", s.conversationId, err)

	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return
	}
	s.upstreamErrors++
	if s.upstreamErrors < maxConsecutiveUpstreamErrors {
		s.mu.Unlock()
		return
	}
	s.upstreamErrors = 0
	session := s.session
	s.session = nil
	s.mu.Unlock()

	c.logger.Warnf("coordinator: upstream keeps erroring for conversation %d, recycling connection", s.conversationId)
	if session != nil {
		session.Close()
	}
	c.scheduleReconnect(s)
}

func (c *conversationCoordinator) handleUpstreamClose(s *conversationState, code int, reason string) {
	s.mu.Lock()
	// Cooling means a reconnect is already scheduled for this connection.
	if s.state == stateTerminal || s.state == stateCooling {
		s.mu.Unlock()
		return
	}
	s.session = nil
	s.mu.Unlock()

	if code == websocket.CloseNormalClosure {
		c.logger.Infof("coordinator: upstream closed normally for conversation %d", s.conversationId)
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
		c.hub.BroadcastMessage(s.conversationId, internal_hub.NewEvent(internal_hub.EventOpenAIDisconnected, nil))
		return
	}

	c.logger.Warnf("coordinator: upstream closed for conversation %d: code=%d, reason=%s",
		s.conversationId, code, reason)
	c.scheduleReconnect(s)
}

func (c *conversationCoordinator) scheduleReconnect(s *conversationState) {
	s.mu.Lock()
	if s.state == stateTerminal {
		s.mu.Unlock()
		return
	}
	s.attempts++
	delay := utils.ReconnectDelay(s.attempts)
	s.cooldownUntil = time.Now().Add(delay)
	s.state = stateCooling
	attempts := s.attempts
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = c.afterFunc(delay, func() {
		c.reconnect(s)
	})
	s.mu.Unlock()

	c.logger.Warnf("coordinator: reconnecting conversation %d in %s (attempt %d)",
		s.conversationId, delay, attempts)
	c.hub.BroadcastMessage(s.conversationId, internal_hub.NewErrorEvent("transcription connection lost, retrying"))
}

// reconnect fires when a cooldown elapses. With no subscribed clients left
// the conversation goes terminal instead of redialing.
func (c *conversationCoordinator) reconnect(s *conversationState) {
	if c.hub.ClientCount(s.conversationId) == 0 {
		c.logger.Infof("coordinator: no clients left for conversation %d, not reconnecting", s.conversationId)
		c.teardown(s.conversationId)
		return
	}

	s.mu.Lock()
	if s.state != stateCooling {
		s.mu.Unlock()
		return
	}
	s.state = stateConnecting
	s.mu.Unlock()
	c.connect(s)
}

func (c *conversationCoordinator) AppendAudio(conversationId uint64, chunk []byte) error {
	c.mu.Lock()
	s, ok := c.states[conversationId]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("conversation %d has no live session", conversationId)
	}

	s.mu.Lock()
	transcoder := s.transcoder
	paused := s.isPaused
	open := s.state == stateOpen
	s.mu.Unlock()
	if paused {
		return nil
	}
	if transcoder == nil {
		if !open {
			return fmt.Errorf("conversation %d has no transcoder", conversationId)
		}
		// The previous decode cycle finished; start the next one.
		fresh, err := c.launchTranscoder(s)
		if err != nil {
			return fmt.Errorf("failed to start decoder for conversation %d: %w", conversationId, err)
		}
		s.mu.Lock()
		if s.transcoder == nil && s.state == stateOpen {
			s.transcoder = fresh
			s.committed = false
		}
		transcoder = s.transcoder
		s.mu.Unlock()
		if transcoder != fresh {
			fresh.Stop()
		}
		if transcoder == nil {
			return fmt.Errorf("conversation %d has no transcoder", conversationId)
		}
	}
	return transcoder.Write(chunk)
}

func (c *conversationCoordinator) FinalizeAudio(conversationId uint64) error {
	c.mu.Lock()
	s, ok := c.states[conversationId]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("conversation %d has no live session", conversationId)
	}

	s.mu.Lock()
	transcoder := s.transcoder
	s.committed = false
	s.mu.Unlock()
	if transcoder == nil {
		// No open decode cycle, nothing to flush.
		return nil
	}
	return transcoder.Finalize()
}

func (c *conversationCoordinator) Pause(conversationId uint64) {
	c.setPaused(conversationId, true)
}

func (c *conversationCoordinator) Resume(conversationId uint64) {
	c.setPaused(conversationId, false)
}

func (c *conversationCoordinator) setPaused(conversationId uint64, paused bool) {
	c.mu.Lock()
	s, ok := c.states[conversationId]
	c.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.isPaused = paused
	s.mu.Unlock()
	c.logger.Debugf("coordinator: conversation %d paused=%t", conversationId, paused)
}

func (c *conversationCoordinator) ReleaseClient(client internal_hub.Client, conversationId uint64) {
	c.hub.RemoveClient(client)
	if conversationId == 0 {
		return
	}
	if c.hub.ClientCount(conversationId) == 0 {
		c.teardown(conversationId)
	}
}

// teardown releases the upstream resources of one conversation and deletes
// its in-memory state. In-flight pipeline work observes send failures and is
// swallowed; nothing is retried afterwards.
func (c *conversationCoordinator) teardown(conversationId uint64) {
	c.mu.Lock()
	s, ok := c.states[conversationId]
	delete(c.states, conversationId)
	c.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.state = stateTerminal
	session := s.session
	transcoder := s.transcoder
	timer := s.reconnectTimer
	s.session = nil
	s.transcoder = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if transcoder != nil {
		transcoder.Stop()
	}
	if session != nil {
		session.Close()
	}
	s.closeQueue()
	c.logger.Infof("coordinator: tore down conversation %d", conversationId)
}

func (c *conversationCoordinator) Shutdown() {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.states))
	for id := range c.states {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.teardown(id)
	}
}
