// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_stt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

// Callbacks receives upstream transcription events. OnTranscript fires once
// per completed utterance, in upstream order, from the session's single
// reader goroutine. OnClose fires exactly once after Connect succeeds, with
// the upstream close code (or 1006 when the transport failed without one).
type Callbacks struct {
	OnTranscript func(transcript string)
	OnClose      func(code int, reason string)
	OnError      func(err error)
}

// Session is one connection attempt to the upstream realtime transcription
// service. Reconnection policy lives with the caller; a Session that closed
// is never redialed.
type Session interface {
	// AppendAudio forwards one PCM fragment to the upstream buffer.
	AppendAudio(pcm []byte) error

	// Commit asks upstream to finalize whatever audio is buffered.
	Commit() error

	// Close tears the connection down. The pending OnClose fires with a
	// normal close code.
	Close()
}

type realtimeSession struct {
	logger     commons.Logger
	connection *websocket.Conn

	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

// Connect dials the upstream service, applies the transcription session
// configuration and starts the reader. The returned Session is live until
// OnClose fires.
func Connect(cfg *config.AppConfig, logger commons.Logger, cb Callbacks) (Session, error) {
	if utils.IsEmpty(cfg.OpenAIConfig.ApiKey) {
		return nil, fmt.Errorf("openai api key is not configured")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.OpenAIConfig.ApiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	endpoint := cfg.OpenAIConfig.RealtimeHost + "?intent=transcription"
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial upstream transcription service: %w", err)
	}

	s := &realtimeSession{
		logger:     logger,
		connection: conn,
	}

	if err := s.writeJSON(transcriptionConfigFrame(cfg)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to configure transcription session: %w", err)
	}

	utils.Go(logger, func() {
		s.readLoop(cb)
	})
	return s, nil
}

// transcriptionConfigFrame builds the session configuration sent right after
// the dial. prompt and include are always present; upstream treats a missing
// key differently from an empty value.
func transcriptionConfigFrame(cfg *config.AppConfig) sessionUpdateEvent {
	return sessionUpdateEvent{
		Type: eventSessionUpdate,
		Session: transcriptionSessionConfig{
			InputAudioFormat: "pcm16",
			InputAudioTranscription: inputAudioTranscriptionConfig{
				Model:  cfg.OpenAIConfig.TranscribeModel,
				Prompt: "",
			},
			TurnDetection: &turnDetectionConfig{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 500,
			},
			Include: []string{},
		},
	}
}

func (s *realtimeSession) readLoop(cb Callbacks) {
	for {
		_, msg, err := s.connection.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			s.closeMu.Lock()
			wasClosed := s.closed
			s.closed = true
			s.closeMu.Unlock()
			if wasClosed {
				// Local Close already happened; report a normal close.
				code, reason = websocket.CloseNormalClosure, "closed by client"
			}
			if cb.OnClose != nil {
				cb.OnClose(code, reason)
			}
			return
		}
		dispatch(s.logger, msg, cb)
	}
}

// dispatch routes one inbound frame to the matching callback. Unknown frame
// types are ignored; the upstream protocol adds event kinds over time.
func dispatch(logger commons.Logger, msg []byte, cb Callbacks) {
	var event serverEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		logger.Warnf("stt: dropping malformed upstream frame: %v", err)
		return
	}

	switch event.Type {
	case eventTranscriptCompleted:
		var completed transcriptCompletedEvent
		if err := json.Unmarshal(msg, &completed); err != nil {
			logger.Warnf("stt: malformed transcript frame: %v", err)
			return
		}
		logger.Debugf("stt: completed utterance: item=%s, chars=%d", completed.ItemId, len(completed.Transcript))
		if cb.OnTranscript != nil {
			cb.OnTranscript(completed.Transcript)
		}

	case eventTranscriptFailed, eventError:
		var upstreamErr upstreamErrorEvent
		if err := json.Unmarshal(msg, &upstreamErr); err != nil {
			logger.Warnf("stt: malformed error frame: %v", err)
			return
		}
		if cb.OnError != nil {
			cb.OnError(fmt.Errorf("upstream transcription error: %s: %s",
				upstreamErr.Error.Code, upstreamErr.Error.Message))
		}
	}
}

// closeDetails extracts the close code from a read error. Abnormal transport
// failures without a close frame map to 1006.
func closeDetails(err error) (int, string) {
	if closeErr, ok := err.(*websocket.CloseError); ok {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

func (s *realtimeSession) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.connection.WriteJSON(v)
}

func (s *realtimeSession) AppendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := s.writeJSON(bufferAppendEvent{
		Type:  eventBufferAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}); err != nil {
		return fmt.Errorf("failed to append audio upstream: %w", err)
	}
	return nil
}

func (s *realtimeSession) Commit() error {
	if err := s.writeJSON(bufferCommitEvent{Type: eventBufferCommit}); err != nil {
		return fmt.Errorf("failed to commit audio buffer upstream: %w", err)
	}
	return nil
}

func (s *realtimeSession) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	s.writeMu.Lock()
	_ = s.connection.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	_ = s.connection.Close()
}
