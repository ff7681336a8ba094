// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_stt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/configs"
)

func testLogger(t *testing.T) commons.Logger {
	t.Helper()
	return commons.NewApplicationLogger("stt-test", "error", "")
}

func TestTranscriptionConfigFrameShape(t *testing.T) {
	cfg := &config.AppConfig{
		OpenAIConfig: configs.OpenAIConfig{TranscribeModel: "gpt-4o-transcribe"},
	}

	raw, err := json.Marshal(transcriptionConfigFrame(cfg))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "transcription_session.update", decoded["type"])

	session, ok := decoded["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pcm16", session["input_audio_format"])
	assert.Contains(t, session, "include")
	assert.Contains(t, session, "turn_detection")

	transcription, ok := session["input_audio_transcription"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-transcribe", transcription["model"])
	assert.Contains(t, transcription, "prompt")
}

func TestDispatchCompletedTranscript(t *testing.T) {
	var transcripts []string
	cb := Callbacks{
		OnTranscript: func(transcript string) { transcripts = append(transcripts, transcript) },
		OnError:      func(err error) { t.Errorf("unexpected error callback: %v", err) },
	}

	frame := []byte(`{
		"type": "conversation.item.input_audio_transcription.completed",
		"item_id": "item_001",
		"transcript": "Me duele la cabeza"
	}`)
	dispatch(testLogger(t), frame, cb)

	assert.Equal(t, []string{"Me duele la cabeza"}, transcripts)
}

func TestDispatchUpstreamError(t *testing.T) {
	var errs []error
	cb := Callbacks{
		OnTranscript: func(string) { t.Error("unexpected transcript callback") },
		OnError:      func(err error) { errs = append(errs, err) },
	}

	frame := []byte(`{
		"type": "error",
		"error": {"type": "invalid_request_error", "code": "bad_audio", "message": "unsupported format"}
	}`)
	dispatch(testLogger(t), frame, cb)

	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "bad_audio")
}

func TestDispatchIgnoresUnknownAndMalformedFrames(t *testing.T) {
	cb := Callbacks{
		OnTranscript: func(string) { t.Error("unexpected transcript callback") },
		OnError:      func(err error) { t.Errorf("unexpected error callback: %v", err) },
	}
	dispatch(testLogger(t), []byte(`{"type": "transcription_session.updated"}`), cb)
	dispatch(testLogger(t), []byte(`not json at all`), cb)
}

func TestCloseDetails(t *testing.T) {
	code, reason := closeDetails(&websocket.CloseError{Code: 1011, Text: "server restart"})
	assert.Equal(t, 1011, code)
	assert.Equal(t, "server restart", reason)

	code, _ = closeDetails(errors.New("connection reset"))
	assert.Equal(t, websocket.CloseAbnormalClosure, code)
}
