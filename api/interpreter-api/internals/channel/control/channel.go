// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	auth_api "github.com/rapidaai/interpreter-api/api/interpreter-api/auth"
	internal_coordinator "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/coordinator"
	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
	internal_pipeline "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/pipeline"
	internal_repository "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/repository"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

// Close codes used by the control channel on authentication failure.
const (
	closeCodeUnauthorized  = 4001
	closeCodeInternalError = 5000
)

// ControlChannel serves the authenticated JSON WebSocket that clients drive
// sessions through.
type ControlChannel interface {
	Handle(ctx *gin.Context)
}

type controlChannel struct {
	logger      commons.Logger
	auth        auth_api.AuthService
	coordinator internal_coordinator.Coordinator
	hub         internal_hub.Hub
	pipeline    internal_pipeline.Pipeline

	conversations internal_repository.ConversationRepository
	messages      internal_repository.MessageRepository
	actions       internal_repository.ActionRepository
	summaries     internal_repository.SummaryRepository
	histories     internal_repository.MedicalHistoryRepository

	upgrader websocket.Upgrader
}

func NewControlChannel(
	logger commons.Logger,
	auth auth_api.AuthService,
	coordinator internal_coordinator.Coordinator,
	hub internal_hub.Hub,
	pipeline internal_pipeline.Pipeline,
	conversations internal_repository.ConversationRepository,
	messages internal_repository.MessageRepository,
	actions internal_repository.ActionRepository,
	summaries internal_repository.SummaryRepository,
	histories internal_repository.MedicalHistoryRepository,
) ControlChannel {
	return &controlChannel{
		logger:        logger,
		auth:          auth,
		coordinator:   coordinator,
		hub:           hub,
		pipeline:      pipeline,
		conversations: conversations,
		messages:      messages,
		actions:       actions,
		summaries:     summaries,
		histories:     histories,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection, authenticates the ?token query parameter
// and runs the client read loop until disconnect.
func (ch *controlChannel) Handle(ctx *gin.Context) {
	connection, err := ch.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ch.logger.Warnf("control: upgrade failed: %v", err)
		return
	}

	token := ctx.Query("token")
	if utils.IsEmpty(token) {
		ch.closeWith(connection, closeCodeUnauthorized, "missing token")
		return
	}
	claims, err := ch.auth.VerifyAccessToken(token)
	if err != nil {
		ch.logger.Warnf("control: rejected token: %v", err)
		ch.closeWith(connection, closeCodeUnauthorized, "invalid token")
		return
	}
	if claims.Id == 0 {
		ch.closeWith(connection, closeCodeInternalError, "verification failed")
		return
	}

	client := newWsClient(connection, claims.Id, claims.Username)
	ch.logger.Infof("control: client connected: id=%s, user=%s", client.Id(), claims.Username)
	ch.readLoop(client)
}

func (ch *controlChannel) closeWith(connection *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = connection.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = connection.Close()
}

func (ch *controlChannel) readLoop(client *wsClient) {
	defer func() {
		client.markClosed()
		ch.coordinator.ReleaseClient(client, client.conversation())
		_ = client.connection.Close()
		ch.logger.Infof("control: client disconnected: id=%s", client.Id())
	}()

	for {
		_, raw, err := client.connection.ReadMessage()
		if err != nil {
			return
		}
		ch.dispatch(client, raw)
	}
}

// dispatch routes one inbound frame. Malformed JSON and unknown types answer
// with an error event; the connection stays open.
func (ch *controlChannel) dispatch(client *wsClient, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		ch.sendError(client, "invalid message format")
		return
	}

	ctx := context.Background()
	switch msg.Type {
	case messageStartNewSession:
		ch.handleStartNewSession(ctx, client, &msg)
	case messageSelectConversation:
		ch.handleSelectConversation(ctx, client, &msg)
	case messageGetConversations:
		ch.handleGetConversations(ctx, client)
	case messageGetMessages:
		ch.handleGetMessages(ctx, client, &msg)
	case messageGetActions:
		ch.handleGetActions(ctx, client, &msg)
	case messageGetSummary:
		ch.handleGetSummary(ctx, client, &msg)
	case messageGetMedicalHistory:
		ch.handleGetMedicalHistory(ctx, client, &msg)
	case messageEndSession:
		ch.handleEndSession(ctx, client, &msg)
	case messageChatMessage:
		ch.handleChatMessage(client, &msg)
	default:
		ch.sendError(client, fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (ch *controlChannel) handleStartNewSession(ctx context.Context, client *wsClient, msg *inboundMessage) {
	if utils.IsEmpty(msg.FirstName) || utils.IsEmpty(msg.LastName) {
		ch.sendError(client, "firstName and lastName are required")
		return
	}
	dob, err := time.Parse("2006-01-02", msg.Dob)
	if err != nil {
		ch.sendError(client, "dob must be an ISO date (YYYY-MM-DD)")
		return
	}

	started, err := ch.coordinator.StartSession(ctx, client.userId, msg.FirstName, msg.LastName, dob)
	if err != nil {
		ch.logger.Errorf("control: start_new_session failed for user %d: %v", client.userId, err)
		ch.sendError(client, "failed to start session")
		return
	}

	ch.moveClient(client, started.ConversationId)
	ch.send(client, internal_hub.NewEvent(internal_hub.EventSessionStarted, started))
	ch.sendConversationList(ctx, client)
}

func (ch *controlChannel) handleSelectConversation(ctx context.Context, client *wsClient, msg *inboundMessage) {
	if msg.ConversationId == 0 {
		ch.sendError(client, "conversationId is required")
		return
	}
	// Release the previous subscription first so an abandoned conversation
	// can tear down its upstream resources.
	if previous := client.conversation(); previous != 0 && previous != msg.ConversationId {
		ch.coordinator.ReleaseClient(client, previous)
	}

	selection, err := ch.coordinator.SelectConversation(ctx, client, client.userId, msg.ConversationId)
	if err != nil {
		ch.logger.Warnf("control: select_conversation failed for user %d: %v", client.userId, err)
		ch.sendError(client, "conversation not found")
		return
	}
	client.setConversation(msg.ConversationId)
	ch.send(client, internal_hub.NewEvent(internal_hub.EventConversationSelected, selection))
}

func (ch *controlChannel) handleGetConversations(ctx context.Context, client *wsClient) {
	ch.sendConversationList(ctx, client)
}

func (ch *controlChannel) sendConversationList(ctx context.Context, client *wsClient) {
	conversations, err := ch.conversations.GetForUser(ctx, client.userId)
	if err != nil {
		ch.logger.Errorf("control: failed to list conversations for user %d: %v", client.userId, err)
		ch.sendError(client, "failed to load conversations")
		return
	}
	ch.send(client, internal_hub.NewEvent(internal_hub.EventConversationList,
		&ConversationListPayload{Conversations: conversations}))
}

func (ch *controlChannel) handleGetMessages(ctx context.Context, client *wsClient, msg *inboundMessage) {
	if !ch.authorizeConversation(ctx, client, msg.ConversationId) {
		return
	}
	messages, err := ch.messages.GetByConversation(ctx, msg.ConversationId)
	if err != nil {
		ch.logger.Errorf("control: failed to list messages for conversation %d: %v", msg.ConversationId, err)
		ch.sendError(client, "failed to load messages")
		return
	}
	ch.send(client, internal_hub.NewEvent(internal_hub.EventMessageList,
		&MessageListPayload{ConversationId: msg.ConversationId, Messages: messages}))
}

func (ch *controlChannel) handleGetActions(ctx context.Context, client *wsClient, msg *inboundMessage) {
	if !ch.authorizeConversation(ctx, client, msg.ConversationId) {
		return
	}
	actions, err := ch.actions.AggregatedByConversation(ctx, msg.ConversationId)
	if err != nil {
		ch.logger.Errorf("control: failed to list actions for conversation %d: %v", msg.ConversationId, err)
		ch.sendError(client, "failed to load actions")
		return
	}
	ch.send(client, internal_hub.NewEvent(internal_hub.EventActionList,
		&ActionListPayload{ConversationId: msg.ConversationId, Actions: actions}))
}

// handleGetSummary answers with a null summary while the conversation is
// still active.
func (ch *controlChannel) handleGetSummary(ctx context.Context, client *wsClient, msg *inboundMessage) {
	if !ch.authorizeConversation(ctx, client, msg.ConversationId) {
		return
	}
	var content *string
	summary, err := ch.summaries.GetByConversation(ctx, msg.ConversationId)
	if err != nil {
		ch.logger.Errorf("control: failed to load summary for conversation %d: %v", msg.ConversationId, err)
		ch.sendError(client, "failed to load summary")
		return
	}
	if summary != nil {
		content = &summary.Content
	}
	ch.send(client, internal_hub.NewEvent(internal_hub.EventSummaryData,
		&internal_hub.SummaryDataPayload{ConversationId: msg.ConversationId, Summary: content}))
}

func (ch *controlChannel) handleGetMedicalHistory(ctx context.Context, client *wsClient, msg *inboundMessage) {
	if !ch.authorizeConversation(ctx, client, msg.ConversationId) {
		return
	}
	var content *string
	history, err := ch.histories.GetByConversation(ctx, msg.ConversationId)
	if err != nil {
		ch.logger.Errorf("control: failed to load medical history for conversation %d: %v", msg.ConversationId, err)
		ch.sendError(client, "failed to load medical history")
		return
	}
	if history != nil {
		content = &history.Content
	}
	ch.send(client, internal_hub.NewEvent(internal_hub.EventMedicalHistoryData,
		&internal_hub.MedicalHistoryPayload{ConversationId: msg.ConversationId, MedicalHistory: content}))
}

func (ch *controlChannel) handleEndSession(ctx context.Context, client *wsClient, msg *inboundMessage) {
	if msg.ConversationId == 0 {
		ch.sendError(client, "conversationId is required")
		return
	}
	conversation, summary, err := ch.coordinator.EndAndSummarize(ctx, client.userId, msg.ConversationId)
	if err != nil {
		ch.logger.Errorf("control: end_session failed for conversation %d: %v", msg.ConversationId, err)
		ch.sendError(client, "failed to end session")
		return
	}
	ch.send(client, internal_hub.NewEvent(internal_hub.EventSessionEndedAndSummarized,
		&SessionEndedPayload{
			ConversationId: conversation.Id,
			Status:         conversation.Status,
			Summary:        summary,
		}))
}

// handleChatMessage feeds typed clinician text through the same utterance
// path spoken audio takes. The ack is immediate; processing is asynchronous.
func (ch *controlChannel) handleChatMessage(client *wsClient, msg *inboundMessage) {
	conversationId := client.conversation()
	if conversationId == 0 {
		ch.sendError(client, "no conversation selected")
		return
	}
	if utils.IsEmpty(msg.Text) {
		ch.sendError(client, "text is required")
		return
	}

	ch.send(client, internal_hub.NewEvent(internal_hub.EventMessageReceived,
		&MessageReceivedPayload{ConversationId: conversationId, Text: msg.Text}))

	text := msg.Text
	utils.Go(ch.logger, func() {
		ch.pipeline.ProcessTranscript(context.Background(), conversationId, text)
	})
}

// authorizeConversation checks the conversation exists and belongs to the
// client's user, answering with an error event when it does not.
func (ch *controlChannel) authorizeConversation(ctx context.Context, client *wsClient, conversationId uint64) bool {
	if conversationId == 0 {
		ch.sendError(client, "conversationId is required")
		return false
	}
	conversation, err := ch.conversations.Get(ctx, conversationId)
	if err != nil || conversation.UserId != client.userId {
		ch.sendError(client, "conversation not found")
		return false
	}
	return true
}

// moveClient re-registers the client on a new conversation, releasing the
// previous subscription so its upstream resources can be torn down.
func (ch *controlChannel) moveClient(client *wsClient, conversationId uint64) {
	if previous := client.conversation(); previous != 0 && previous != conversationId {
		ch.coordinator.ReleaseClient(client, previous)
	}
	client.setConversation(conversationId)
	ch.hub.RegisterClient(client, conversationId)
}

func (ch *controlChannel) send(client *wsClient, event *internal_hub.Event) {
	if err := client.Send(event); err != nil {
		ch.logger.Warnf("control: failed to send %s to client %s: %v", event.Type, client.Id(), err)
	}
}

func (ch *controlChannel) sendError(client *wsClient, text string) {
	ch.send(client, &internal_hub.Event{Type: internal_hub.EventError, Text: text})
}
