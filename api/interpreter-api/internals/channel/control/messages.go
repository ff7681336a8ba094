// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_control

import (
	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
)

// Inbound control message types.
const (
	messageStartNewSession    = "start_new_session"
	messageSelectConversation = "select_conversation"
	messageGetConversations   = "get_conversations"
	messageGetMessages        = "get_messages"
	messageGetActions         = "get_actions"
	messageGetSummary         = "get_summary"
	messageGetMedicalHistory  = "get_medical_history"
	messageEndSession         = "end_session"
	messageChatMessage        = "chat_message"
)

// inboundMessage is the flat envelope read from a control client. Fields are
// a union across all message types; dispatch validates per type.
type inboundMessage struct {
	Type           string `json:"type"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Dob            string `json:"dob"`
	ConversationId uint64 `json:"conversationId"`
	Text           string `json:"text"`
}

// ConversationListPayload answers get_conversations and follows
// session_started.
type ConversationListPayload struct {
	Conversations []*internal_entity.Conversation `json:"conversations"`
}

// MessageListPayload answers get_messages.
type MessageListPayload struct {
	ConversationId uint64                     `json:"conversationId"`
	Messages       []*internal_entity.Message `json:"messages"`
}

// ActionListPayload answers get_actions.
type ActionListPayload struct {
	ConversationId uint64                              `json:"conversationId"`
	Actions        []*internal_entity.AggregatedAction `json:"actions"`
}

// SessionEndedPayload follows a successful end_session.
type SessionEndedPayload struct {
	ConversationId uint64  `json:"conversationId"`
	Status         string  `json:"status"`
	Summary        *string `json:"summary"`
}

// MessageReceivedPayload acknowledges chat_message.
type MessageReceivedPayload struct {
	ConversationId uint64 `json:"conversationId"`
	Text           string `json:"text"`
}
