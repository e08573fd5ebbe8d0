package realtime

import (
	"sync"

	"golang.org/x/time/rate"
)

// wsConn is the part of a websocket connection the server writes to
type wsConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Connection represents a WebSocket client attached to one session
type Connection struct {
	ID        string
	SessionID string
	Conn      wsConn

	limiter *rate.Limiter
	mu      sync.Mutex
}

// NewConnection creates a new connection. A nil limiter accepts every message.
func NewConnection(id, sessionID string, conn wsConn, limiter *rate.Limiter) *Connection {
	return &Connection{
		ID:        id,
		SessionID: sessionID,
		Conn:      conn,
		limiter:   limiter,
	}
}

// SendMessage writes msg as JSON; writes are serialized per connection
func (c *Connection) SendMessage(msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(msg)
}

// Allow reports whether another inbound message may be processed now
func (c *Connection) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// Close closes the WebSocket connection
func (c *Connection) Close() error {
	return c.Conn.Close()
}
