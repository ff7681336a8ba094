// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_hub

import (
	"sync"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	"github.com/rapidaai/interpreter-api/pkg/commons"
)

// Client is one subscribed control-channel transport. Send must be safe for
// concurrent use; IsOpen reports whether the transport still accepts writes.
type Client interface {
	Id() string
	Send(event *Event) error
	IsOpen() bool
}

// Hub maps conversations to their subscribed clients and fans events out to
// them. Delivery is best-effort: closed transports are skipped and send
// failures are logged, never propagated.
type Hub interface {
	// RegisterClient subscribes client to conversationId, removing it from
	// any prior conversation first.
	RegisterClient(client Client, conversationId uint64)

	// RemoveClient drops the client from its current conversation, if any.
	RemoveClient(client Client)

	// ClientCount reports the number of subscribed clients.
	ClientCount(conversationId uint64) int

	NotifyActionCreated(conversationId uint64, action *internal_entity.AggregatedAction)
	BroadcastMessage(conversationId uint64, event *Event)
}

type notificationHub struct {
	logger commons.Logger

	mu sync.RWMutex
	// conversation id → subscribed clients
	subscriptions map[uint64]map[Client]struct{}
	// client → its current conversation, for O(1) removal
	memberships map[Client]uint64
}

func NewNotificationHub(logger commons.Logger) Hub {
	return &notificationHub{
		logger:        logger,
		subscriptions: map[uint64]map[Client]struct{}{},
		memberships:   map[Client]uint64{},
	}
}

func (h *notificationHub) RegisterClient(client Client, conversationId uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(client)

	set, ok := h.subscriptions[conversationId]
	if !ok {
		set = map[Client]struct{}{}
		h.subscriptions[conversationId] = set
	}
	set[client] = struct{}{}
	h.memberships[client] = conversationId
	h.logger.Debugf("hub: registered client %s to conversation %d", client.Id(), conversationId)
}

func (h *notificationHub) RemoveClient(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *notificationHub) removeLocked(client Client) {
	conversationId, ok := h.memberships[client]
	if !ok {
		return
	}
	delete(h.memberships, client)
	if set, ok := h.subscriptions[conversationId]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subscriptions, conversationId)
		}
	}
	h.logger.Debugf("hub: removed client %s from conversation %d", client.Id(), conversationId)
}

func (h *notificationHub) ClientCount(conversationId uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[conversationId])
}

func (h *notificationHub) NotifyActionCreated(conversationId uint64, action *internal_entity.AggregatedAction) {
	h.BroadcastMessage(conversationId, NewEvent(EventActionCreated, action))
}

func (h *notificationHub) BroadcastMessage(conversationId uint64, event *Event) {
	h.mu.RLock()
	clients := make([]Client, 0, len(h.subscriptions[conversationId]))
	for client := range h.subscriptions[conversationId] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.IsOpen() {
			continue
		}
		if err := client.Send(event); err != nil {
			h.logger.Warnf("hub: failed to deliver %s to client %s: %v", event.Type, client.Id(), err)
		}
	}
}
