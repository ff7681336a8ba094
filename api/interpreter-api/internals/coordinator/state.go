// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_coordinator

import (
	"sync"
	"time"

	internal_stt "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/stt"
	internal_transcoder "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/transcoder"
)

// Upstream connection lifecycle for one conversation.
const (
	stateIdle       = "idle"
	stateConnecting = "connecting"
	stateOpen       = "open"
	stateCooling    = "cooling"
	stateTerminal   = "terminal"
)

// Statuses reported to audio-channel clients on open.
const (
	StatusConnected    = "openai_connected"
	StatusConnecting   = "openai_connecting"
	StatusDisconnected = "openai_disconnected"
)

const transcriptQueueSize = 64

// maxConsecutiveUpstreamErrors is how many error frames in a row, with no
// transcript in between, the upstream may send before the connection is
// recycled through backoff.
const maxConsecutiveUpstreamErrors = 3

// conversationState owns the upstream resources of one live conversation.
// The session and transcoder are exclusive to it; every field mutation goes
// through mu. Completed utterances are queued on transcripts and consumed by
// a single worker so the pipeline sees them in arrival order.
type conversationState struct {
	conversationId uint64

	mu            sync.Mutex
	state         string
	session       internal_stt.Session
	transcoder    internal_transcoder.Transcoder
	isPaused      bool
	attempts      int
	cooldownUntil time.Time
	// committed guards the one commit allowed per finalize cycle.
	committed      bool
	upstreamErrors int
	reconnectTimer *time.Timer

	transcripts chan string
	workerOnce  sync.Once
	closeOnce   sync.Once
}

func newConversationState(conversationId uint64) *conversationState {
	return &conversationState{
		conversationId: conversationId,
		state:          stateIdle,
		transcripts:    make(chan string, transcriptQueueSize),
	}
}

// enqueueTranscript hands a completed utterance to the ordered worker. A full
// queue drops the utterance rather than blocking the session reader.
func (s *conversationState) enqueueTranscript(transcript string) bool {
	select {
	case s.transcripts <- transcript:
		return true
	default:
		return false
	}
}

// closeQueue stops the transcript worker after it drains the queue.
func (s *conversationState) closeQueue() {
	s.closeOnce.Do(func() {
		close(s.transcripts)
	})
}

// connectionStatus maps the internal lifecycle to the client-visible status.
func (s *conversationState) connectionStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateOpen:
		return StatusConnected
	case stateConnecting, stateCooling:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}
