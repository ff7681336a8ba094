// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_stt

// Outbound frame types.
const (
	eventSessionUpdate = "transcription_session.update"
	eventBufferAppend  = "input_audio_buffer.append"
	eventBufferCommit  = "input_audio_buffer.commit"
)

// Inbound frame types.
const (
	eventTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	eventTranscriptFailed    = "conversation.item.input_audio_transcription.failed"
	eventError               = "error"
)

type turnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type inputAudioTranscriptionConfig struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type transcriptionSessionConfig struct {
	InputAudioFormat        string                        `json:"input_audio_format"`
	InputAudioTranscription inputAudioTranscriptionConfig `json:"input_audio_transcription"`
	TurnDetection           *turnDetectionConfig          `json:"turn_detection,omitempty"`
	Include                 []string                      `json:"include"`
}

type sessionUpdateEvent struct {
	Type    string                     `json:"type"`
	Session transcriptionSessionConfig `json:"session"`
}

type bufferAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type bufferCommitEvent struct {
	Type string `json:"type"`
}

type transcriptCompletedEvent struct {
	Type       string `json:"type"`
	ItemId     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type upstreamErrorEvent struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// serverEvent carries just enough to route an inbound frame.
type serverEvent struct {
	Type string `json:"type"`
}
