package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/debai-app/debai/internal/ai"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrChatNotFound         = errors.New("chat not found")
	ErrTooManyChats         = errors.New("chat limit reached for session")
	ErrInvalidTitle         = errors.New("chat title must not be empty")
	ErrGenerationInProgress = errors.New("a generation is already running for this session")
	ErrNoOCR                = errors.New("no OCR text to send")
)

// Settings are the per-session user preferences
type Settings struct {
	AutoSendOCR  bool   `json:"auto_send_ocr"`
	SystemPrompt string `json:"system_prompt"`
}

// SettingsUpdate carries the settings fields to change; nil fields are left as they are
type SettingsUpdate struct {
	AutoSendOCR  *bool   `json:"auto_send_ocr,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
}

// ChatInfo describes one chat of a session
type ChatInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     int       `json:"turns"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type chat struct {
	id         string
	title      string
	transcript *Transcript
	createdAt  time.Time
	updatedAt  time.Time
}

// Generation is a started generation cycle, bound to the chat that was active when it began
type Generation struct {
	ChatID     string
	Transcript []ai.Message
}

// FinishResult reports what the caller still has to do after a cycle ends
type FinishResult struct {
	// NeedsTitle is set when the chat just completed its first exchange under the default title
	NeedsTitle    bool
	FirstUserText string
}

// Session is the context object of one conversation surface.
// All methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	chats      map[string]*chat
	order      []string
	activeID   string
	settings   Settings
	state      GenerationState
	lastAccess time.Time
	maxChats   int
}

func newSession(settings Settings, maxChats int, now time.Time) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		chats:      make(map[string]*chat),
		settings:   settings,
		lastAccess: now,
		maxChats:   maxChats,
	}
	s.addChatLocked(now)
	return s
}

func (s *Session) addChatLocked(now time.Time) *chat {
	c := &chat{
		id:         uuid.New().String(),
		title:      ai.DefaultChatTitle,
		transcript: NewTranscript(s.settings.SystemPrompt),
		createdAt:  now,
		updatedAt:  now,
	}
	s.chats[c.id] = c
	s.order = append(s.order, c.id)
	s.activeID = c.id
	return c
}

func (s *Session) infoLocked(c *chat) ChatInfo {
	return ChatInfo{
		ID:        c.id,
		Title:     c.title,
		Turns:     c.transcript.Len(),
		Active:    c.id == s.activeID,
		CreatedAt: c.createdAt,
		UpdatedAt: c.updatedAt,
	}
}

func (s *Session) chatLocked(chatID string) (*chat, error) {
	if chatID == "" {
		chatID = s.activeID
	}
	c, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return c, nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// LastAccess returns the last time the session was used
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Settings returns the current settings
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies u. A new system prompt overwrites the system turn of every chat.
func (s *Session) UpdateSettings(u SettingsUpdate) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.AutoSendOCR != nil {
		s.settings.AutoSendOCR = *u.AutoSendOCR
	}
	if u.SystemPrompt != nil && *u.SystemPrompt != s.settings.SystemPrompt {
		s.settings.SystemPrompt = *u.SystemPrompt
		for _, c := range s.chats {
			c.transcript.SetSystem(*u.SystemPrompt)
		}
	}
	return s.settings
}

// State returns a copy of the generation state
func (s *Session) State() GenerationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Chats lists chats in creation order
func (s *Session) Chats() []ChatInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChatInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.infoLocked(s.chats[id]))
	}
	return out
}

// ActiveChat describes the active chat
func (s *Session) ActiveChat() ChatInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked(s.chats[s.activeID])
}

// Chat describes one chat; an empty id means the active chat
func (s *Session) Chat(chatID string) (ChatInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.chatLocked(chatID)
	if err != nil {
		return ChatInfo{}, err
	}
	return s.infoLocked(c), nil
}

// Transcript returns a copy of a chat's turns; an empty id means the active chat
func (s *Session) Transcript(chatID string) ([]ai.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.chatLocked(chatID)
	if err != nil {
		return nil, err
	}
	return c.transcript.Messages(), nil
}

// NewChat creates a chat and makes it active
func (s *Session) NewChat() (ChatInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxChats > 0 && len(s.chats) >= s.maxChats {
		return ChatInfo{}, ErrTooManyChats
	}
	c := s.addChatLocked(time.Now())
	return s.infoLocked(c), nil
}

// SwitchChat makes chatID the active chat
func (s *Session) SwitchChat(chatID string) (ChatInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return ChatInfo{}, ErrChatNotFound
	}
	s.activeID = c.id
	return s.infoLocked(c), nil
}

// RenameChat sets a chat's title
func (s *Session) RenameChat(chatID, title string) (ChatInfo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return ChatInfo{}, ErrInvalidTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return ChatInfo{}, ErrChatNotFound
	}
	c.title = title
	c.updatedAt = time.Now()
	return s.infoLocked(c), nil
}

// DeleteChat removes a chat. Deleting the active chat activates the oldest
// remaining one, or a fresh chat when none remain.
func (s *Session) DeleteChat(chatID string) (ChatInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return ChatInfo{}, ErrChatNotFound
	}
	delete(s.chats, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.activeID == chatID {
		if len(s.order) > 0 {
			s.activeID = s.order[0]
		} else {
			s.addChatLocked(time.Now())
		}
	}
	return s.infoLocked(s.chats[s.activeID]), nil
}

// Begin starts a generation cycle on the active chat, first appending
// userText as a user turn when it is not empty
func (s *Session) Begin(userText string) (*Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsGenerating {
		return nil, ErrGenerationInProgress
	}
	c := s.chats[s.activeID]
	if userText != "" {
		s.appendLocked(c, ai.RoleUser, userText)
	}
	return s.beginLocked(c), nil
}

// RecordOCR appends OCR text as a user turn and remembers it, with the kind
// of upload it came from, as the last OCR result. When generate is set a
// generation cycle is started as well.
func (s *Session) RecordOCR(text, source string, generate bool) (*Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsGenerating {
		return nil, ErrGenerationInProgress
	}
	c := s.chats[s.activeID]
	s.appendLocked(c, ai.RoleUser, text)
	s.state.LastOCRText = text
	s.state.LastOCRSource = source

	if !generate {
		return nil, nil
	}
	return s.beginLocked(c), nil
}

// BeginLastOCR starts a generation for the last OCR result. The OCR text is
// appended again only when it is not already the final user turn.
func (s *Session) BeginLastOCR() (*Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsGenerating {
		return nil, ErrGenerationInProgress
	}
	if !s.state.HasOCR() {
		return nil, ErrNoOCR
	}

	c := s.chats[s.activeID]
	last, ok := c.transcript.Last()
	if !ok || last.Role != ai.RoleUser || last.Content != s.state.LastOCRText {
		s.appendLocked(c, ai.RoleUser, s.state.LastOCRText)
	}
	return s.beginLocked(c), nil
}

func (s *Session) appendLocked(c *chat, role ai.Role, content string) {
	// Only the first turn can be a system turn and role is never system here.
	_ = c.transcript.Append(role, content)
	c.updatedAt = time.Now()
}

func (s *Session) beginLocked(c *chat) *Generation {
	s.state.IsGenerating = true
	s.state.PartialOutput = ""
	return &Generation{ChatID: c.id, Transcript: c.transcript.Messages()}
}

// Publish records the latest cumulative output of the running generation
func (s *Session) Publish(partial string) {
	s.mu.Lock()
	s.state.PartialOutput = partial
	s.mu.Unlock()
}

// Finish appends the final reply as one assistant turn to the generation's
// chat and resets the generation state
func (s *Session) Finish(gen *Generation, reply string) FinishResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.IsGenerating = false
	s.state.PartialOutput = ""

	c, ok := s.chats[gen.ChatID]
	if !ok {
		return FinishResult{}
	}
	s.appendLocked(c, ai.RoleAssistant, reply)

	var res FinishResult
	if c.title == ai.DefaultChatTitle && c.transcript.CountRole(ai.RoleAssistant) == 1 {
		res.FirstUserText, res.NeedsTitle = c.transcript.FirstUser()
	}
	return res
}

// Abort resets the generation state without touching any transcript
func (s *Session) Abort() {
	s.mu.Lock()
	s.state.IsGenerating = false
	s.state.PartialOutput = ""
	s.mu.Unlock()
}

// SetTitleIfDefault sets a chat's title unless it was renamed meanwhile
func (s *Session) SetTitleIfDefault(chatID, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok || c.title != ai.DefaultChatTitle || strings.TrimSpace(title) == "" {
		return false
	}
	c.title = title
	c.updatedAt = time.Now()
	return true
}
