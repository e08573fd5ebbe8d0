package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/debai-app/debai/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockWebSocketConn is a mock WebSocket connection for testing
type MockWebSocketConn struct {
	messages []interface{}
	closed   bool
	mu       sync.Mutex
}

func (m *MockWebSocketConn) WriteJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, v)
	return nil
}

func (m *MockWebSocketConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockWebSocketConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Events decodes everything written so far, relayed or direct
func (m *MockWebSocketConn) Events(t *testing.T) []chat.Event {
	t.Helper()
	m.mu.Lock()
	msgs := append([]interface{}{}, m.messages...)
	m.mu.Unlock()

	out := make([]chat.Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		require.NoError(t, err)
		var e chat.Event
		require.NoError(t, json.Unmarshal(raw, &e))
		out = append(out, e)
	}
	return out
}

func (m *MockWebSocketConn) Has(t *testing.T, typ chat.EventType) bool {
	for _, e := range m.Events(t) {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestNewConnection(t *testing.T) {
	mock := &MockWebSocketConn{}
	conn := NewConnection("conn1", "session1", mock, nil)

	assert.Equal(t, "conn1", conn.ID)
	assert.Equal(t, "session1", conn.SessionID)
	assert.True(t, conn.Allow())
}

func TestConnection_SendMessage(t *testing.T) {
	mock := &MockWebSocketConn{}
	conn := NewConnection("conn1", "session1", mock, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.SendMessage(chat.Event{Type: chat.EventPong}))
		}()
	}
	wg.Wait()

	assert.Len(t, mock.Events(t), 20)
}

func TestConnection_Allow(t *testing.T) {
	conn := NewConnection("conn1", "session1", &MockWebSocketConn{}, rate.NewLimiter(rate.Limit(0.001), 2))

	assert.True(t, conn.Allow())
	assert.True(t, conn.Allow())
	assert.False(t, conn.Allow())
}

func TestConnection_Close(t *testing.T) {
	mock := &MockWebSocketConn{}
	conn := NewConnection("conn1", "session1", mock, nil)

	require.NoError(t, conn.Close())
	assert.True(t, mock.IsClosed())
}
