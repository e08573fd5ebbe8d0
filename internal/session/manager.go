package session

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Options configure a Manager
type Options struct {
	// TTL is how long an idle session is kept; zero keeps sessions until ended
	TTL      time.Duration
	MaxChats int
	Defaults Settings
}

// Summary is the listing view of a session
type Summary struct {
	ID           string    `json:"id"`
	Chats        int       `json:"chats"`
	ActiveChat   string    `json:"active_chat"`
	IsGenerating bool      `json:"is_generating"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccess   time.Time `json:"last_access"`
}

// Manager owns the live sessions of the process. Nothing is persisted:
// ending a session or restarting the process discards its transcripts.
type Manager struct {
	opts     Options
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a session manager
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create starts a new session with the default settings
func (m *Manager) Create() *Session {
	s := newSession(m.opts.Defaults, m.opts.MaxChats, m.now())

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Debug().Str("session_id", s.ID).Msg("Created session")
	return s
}

// Get returns a session and marks it as accessed
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// List returns summaries of all sessions, most recently used first
func (m *Manager) List() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Summarize(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccess.After(out[j].LastAccess)
	})
	return out
}

// Summarize returns the listing view of one session
func Summarize(s *Session) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:           s.ID,
		Chats:        len(s.chats),
		ActiveChat:   s.activeID,
		IsGenerating: s.state.IsGenerating,
		CreatedAt:    s.CreatedAt,
		LastAccess:   s.lastAccess,
	}
}

// End discards a session and all its chats
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	log.Debug().Str("session_id", id).Msg("Ended session")
	return nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends sessions idle for longer than the TTL. Sessions with a running
// generation are kept. It returns the number of sessions removed.
func (m *Manager) Sweep(now time.Time) int {
	if m.opts.TTL <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastAccess) > m.opts.TTL && !s.state.IsGenerating
		s.mu.Unlock()

		if idle {
			delete(m.sessions, id)
			removed++
			log.Debug().Str("session_id", id).Msg("Removed idle session")
		}
	}
	return removed
}
