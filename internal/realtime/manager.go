package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/debai-app/debai/internal/pubsub"
	"github.com/rs/zerolog/log"
)

// Recorder receives websocket metrics
type Recorder interface {
	RealtimeConnected()
	RealtimeDisconnected()
	RecordRealtimeMessage(direction, msgType string)
}

type registration struct {
	conn   *Connection
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager tracks live connections and relays each session's events to them.
// Events arrive through pub/sub so a session can be watched from any instance.
type Manager struct {
	connections map[string]*registration // connection ID -> registration
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	ps          pubsub.PubSub
	recorder    Recorder
}

// NewManager creates a connection manager relaying events from ps
func NewManager(ctx context.Context, ps pubsub.PubSub) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		connections: make(map[string]*registration),
		ctx:         ctx,
		cancel:      cancel,
		ps:          ps,
	}
}

// SetRecorder sets the metrics recorder
func (m *Manager) SetRecorder(recorder Recorder) {
	m.recorder = recorder
}

// Register adds a connection and starts relaying its session's events
func (m *Manager) Register(conn *Connection) error {
	if m.ps == nil {
		return errors.New("realtime: no pub/sub backend configured")
	}

	ctx, cancel := context.WithCancel(m.ctx)
	events, err := m.ps.Subscribe(ctx, pubsub.SessionChannel(conn.SessionID))
	if err != nil {
		cancel()
		return err
	}

	reg := &registration{conn: conn, cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.connections[conn.ID] = reg
	m.mu.Unlock()

	go m.relay(ctx, reg, events)

	if m.recorder != nil {
		m.recorder.RealtimeConnected()
	}
	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Msg("WebSocket connection registered")
	return nil
}

func (m *Manager) relay(ctx context.Context, reg *registration, events <-chan pubsub.Message) {
	defer close(reg.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := m.Send(reg.conn, json.RawMessage(msg.Payload)); err != nil {
				log.Debug().Err(err).Str("connection_id", reg.conn.ID).Msg("Failed to relay session event")
			}
		}
	}
}

// Send writes msg to conn and records it as an outbound message
func (m *Manager) Send(conn *Connection, msg interface{}) error {
	if m.recorder != nil {
		m.recorder.RecordRealtimeMessage("outbound", messageType(msg))
	}
	return conn.SendMessage(msg)
}

// Unregister stops relaying to a connection and forgets it
func (m *Manager) Unregister(connID string) {
	m.mu.Lock()
	reg, ok := m.connections[connID]
	delete(m.connections, connID)
	m.mu.Unlock()

	if !ok {
		return
	}
	reg.cancel()
	<-reg.done

	if m.recorder != nil {
		m.recorder.RealtimeDisconnected()
	}
	log.Info().
		Str("connection_id", connID).
		Str("session_id", reg.conn.SessionID).
		Msg("WebSocket connection unregistered")
}

// Count returns the number of live connections
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// SessionCount returns the number of connections watching a session
func (m *Manager) SessionCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, reg := range m.connections {
		if reg.conn.SessionID == sessionID {
			n++
		}
	}
	return n
}

// Shutdown stops all relays and closes every connection
func (m *Manager) Shutdown() {
	m.mu.Lock()
	regs := make([]*registration, 0, len(m.connections))
	for id, reg := range m.connections {
		regs = append(regs, reg)
		delete(m.connections, id)
	}
	m.mu.Unlock()

	m.cancel()
	for _, reg := range regs {
		<-reg.done
		_ = reg.conn.Close()
	}
	log.Info().Int("connections", len(regs)).Msg("Realtime manager shut down")
}

// messageType extracts the "type" field for metrics labels
func messageType(msg interface{}) string {
	var raw []byte
	switch v := msg.(type) {
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "unknown"
		}
		raw = b
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.Type == "" {
		return "unknown"
	}
	return head.Type
}
