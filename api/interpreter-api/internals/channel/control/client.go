// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_control

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
)

// wsClient wraps one control-channel connection as a hub client. Writes are
// serialized through writeMu because the hub broadcasts from many goroutines.
type wsClient struct {
	id         string
	connection *websocket.Conn

	writeMu sync.Mutex

	mu             sync.Mutex
	open           bool
	userId         uint64
	username       string
	conversationId uint64
}

func newWsClient(connection *websocket.Conn, userId uint64, username string) *wsClient {
	return &wsClient{
		id:         uuid.New().String(),
		connection: connection,
		open:       true,
		userId:     userId,
		username:   username,
	}
}

func (c *wsClient) Id() string {
	return c.id
}

func (c *wsClient) Send(event *internal_hub.Event) error {
	if !c.IsOpen() {
		return fmt.Errorf("client %s is closed", c.id)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.connection.WriteJSON(event)
}

func (c *wsClient) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *wsClient) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// setConversation records the client's active conversation, returning the
// previous one so the caller can release it.
func (c *wsClient) setConversation(conversationId uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.conversationId
	c.conversationId = conversationId
	return previous
}

func (c *wsClient) conversation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationId
}
