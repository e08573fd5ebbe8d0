package chat

import (
	"errors"

	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/session"
)

// EventType names a server-to-client event
type EventType string

const (
	EventConnected EventType = "connected"
	EventProgress  EventType = "progress"
	EventContent   EventType = "content"
	EventDone      EventType = "done"
	EventTitle     EventType = "title"
	EventChat      EventType = "chat"
	EventOCR       EventType = "ocr"
	EventWarning   EventType = "warning"
	EventError     EventType = "error"
	EventPong      EventType = "pong"
)

// Event is one server-to-client notification. Content events carry the
// cumulative reply so far; done carries the final reply.
type Event struct {
	Type      EventType          `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	ChatID    string             `json:"chat_id,omitempty"`
	Content   string             `json:"content,omitempty"`
	Backend   string             `json:"backend,omitempty"`
	Outcome   string             `json:"outcome,omitempty"`
	Title     string             `json:"title,omitempty"`
	Message   string             `json:"message,omitempty"`
	Code      string             `json:"code,omitempty"`
	Error     string             `json:"error,omitempty"`
	Chat      *session.ChatInfo  `json:"chat,omitempty"`
	Chats     []session.ChatInfo `json:"chats,omitempty"`
}

// Observer receives the events of one generation as they happen
type Observer func(Event)

var (
	ErrEmptyMessage = errors.New("message must not be empty")
	ErrNoText       = errors.New("OCR produced no text")
)

// NoTextWarning is shown when an upload yields no text
const NoTextWarning = "No text could be extracted from the upload. Nothing was added to the chat."

// ErrorCode maps service errors to the stable codes used on the wire
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrGenerationInProgress):
		return "generation_in_progress"
	case errors.Is(err, session.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, session.ErrChatNotFound):
		return "chat_not_found"
	case errors.Is(err, session.ErrTooManyChats):
		return "too_many_chats"
	case errors.Is(err, session.ErrNoOCR):
		return "no_ocr"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, ErrNoText):
		return "no_text"
	case errors.Is(err, ai.ErrInvalidTranscript):
		return "invalid_transcript"
	default:
		return "internal"
	}
}

func errorEvent(sessionID string, err error) Event {
	return Event{Type: EventError, SessionID: sessionID, Code: ErrorCode(err), Error: err.Error()}
}

// Published reports whether the service already emitted an event for err,
// so callers relaying events do not report it twice
func Published(err error) bool {
	return errors.Is(err, ErrNoText) || errors.Is(err, ai.ErrInvalidTranscript)
}
