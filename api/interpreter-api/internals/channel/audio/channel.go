// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_audio

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_coordinator "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/coordinator"
	"github.com/rapidaai/interpreter-api/pkg/commons"
)

// Frame types exchanged on the audio channel. The inbound vocabulary mirrors
// the upstream buffer protocol so browser clients can reuse one encoder.
const (
	frameAppend   = "input_audio_buffer.append"
	frameFinalize = "input_audio_buffer.finalize"
	framePause    = "input_audio_buffer.pause"
	frameResume   = "input_audio_buffer.resume"

	frameBackendConnected = "backend_connected"
)

type audioFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type backendConnectedFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// AudioChannel serves the unauthenticated audio ingest WebSocket. Each
// connection streams compressed chunks for exactly one conversation.
type AudioChannel interface {
	Handle(ctx *gin.Context)
}

type audioChannel struct {
	logger      commons.Logger
	coordinator internal_coordinator.Coordinator
	upgrader    websocket.Upgrader
}

func NewAudioChannel(logger commons.Logger, coordinator internal_coordinator.Coordinator) AudioChannel {
	return &audioChannel{
		logger:      logger,
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (ch *audioChannel) Handle(ctx *gin.Context) {
	connection, err := ch.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ch.logger.Warnf("audio: upgrade failed: %v", err)
		return
	}

	conversationId, err := strconv.ParseUint(ctx.Query("conversationId"), 10, 64)
	if err != nil || conversationId == 0 {
		deadline := time.Now().Add(time.Second)
		_ = connection.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "conversationId is required"), deadline)
		_ = connection.Close()
		return
	}

	status := ch.coordinator.EnsureUpstream(conversationId)

	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return connection.WriteJSON(v)
	}
	if err := writeJSON(backendConnectedFrame{Type: frameBackendConnected, Status: status}); err != nil {
		ch.logger.Warnf("audio: failed to greet conversation %d: %v", conversationId, err)
		_ = connection.Close()
		return
	}

	ch.logger.Infof("audio: stream opened for conversation %d (upstream %s)", conversationId, status)
	defer func() {
		_ = connection.Close()
		ch.logger.Infof("audio: stream closed for conversation %d", conversationId)
	}()

	for {
		_, raw, err := connection.ReadMessage()
		if err != nil {
			return
		}
		ch.dispatch(conversationId, raw)
	}
}

func (ch *audioChannel) dispatch(conversationId uint64, raw []byte) {
	var frame audioFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		ch.logger.Warnf("audio: dropping malformed frame for conversation %d: %v", conversationId, err)
		return
	}

	switch frame.Type {
	case frameAppend:
		chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			ch.logger.Warnf("audio: dropping undecodable chunk for conversation %d: %v", conversationId, err)
			return
		}
		if err := ch.coordinator.AppendAudio(conversationId, chunk); err != nil {
			ch.logger.Warnf("audio: append failed for conversation %d: %v", conversationId, err)
		}
	case frameFinalize:
		if err := ch.coordinator.FinalizeAudio(conversationId); err != nil {
			ch.logger.Warnf("audio: finalize failed for conversation %d: %v", conversationId, err)
		}
	case framePause:
		ch.coordinator.Pause(conversationId)
	case frameResume:
		ch.coordinator.Resume(conversationId)
	default:
		ch.logger.Debugf("audio: ignoring unknown frame type %q for conversation %d", frame.Type, conversationId)
	}
}
