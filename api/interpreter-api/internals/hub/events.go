// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_hub

// Event types broadcast to control-channel clients.
const (
	EventSessionStarted            = "session_started"
	EventSessionEndedAndSummarized = "session_ended_and_summarized"
	EventConversationSelected      = "conversation_selected"
	EventConversationList          = "conversation_list"
	EventMessageList               = "message_list"
	EventActionList                = "action_list"
	EventSummaryData               = "summary_data"
	EventMedicalHistoryData        = "medical_history_data"
	EventMessageReceived           = "message_received"

	EventNewMessage           = "new_message"
	EventTranscriptionStarted = "transcription_started"
	EventTranslationStarted   = "translation_started"
	EventProcessingCompleted  = "processing_completed"
	EventTtsAudio             = "tts_audio"
	EventActionCreated        = "action_created"
	EventCommandExecuted      = "command_executed"
	EventOpenAIConnected      = "openai_connected"
	EventOpenAIDisconnected   = "openai_disconnected"
	EventError                = "error"
)

// Event is the uniform envelope written to control-channel clients. Payload
// carries the typed body; Text is used by bare error responses.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Text    string      `json:"text,omitempty"`
}

// TtsAudioPayload carries one synthesized utterance.
type TtsAudioPayload struct {
	AudioBase64       string `json:"audioBase64"`
	Format            string `json:"format"`
	OriginalMessageId uint64 `json:"originalMessageId"`
}

// ErrorPayload is a client-visible failure notice.
type ErrorPayload struct {
	Message string `json:"message"`
}

// SummaryDataPayload answers get_summary and follows a successful
// end-and-summarize. Summary is null while the conversation is active.
type SummaryDataPayload struct {
	ConversationId uint64  `json:"conversationId"`
	Summary        *string `json:"summary"`
}

// MedicalHistoryPayload carries the generated patient history.
type MedicalHistoryPayload struct {
	ConversationId uint64  `json:"conversationId"`
	MedicalHistory *string `json:"medicalHistory"`
}

func NewEvent(eventType string, payload interface{}) *Event {
	return &Event{Type: eventType, Payload: payload}
}

func NewErrorEvent(message string) *Event {
	return &Event{Type: EventError, Payload: &ErrorPayload{Message: message}}
}
