// Package chat runs generation cycles against a session: it appends the user
// turn, routes the transcript, publishes the streamed reply and records the
// assistant turn.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/observability"
	"github.com/debai-app/debai/internal/pubsub"
	"github.com/debai-app/debai/internal/session"
	"github.com/rs/zerolog/log"
)

// Result summarises a finished generation cycle
type Result struct {
	SessionID string     `json:"session_id"`
	ChatID    string     `json:"chat_id"`
	Reply     string     `json:"reply"`
	Backend   string     `json:"backend,omitempty"`
	Outcome   ai.Outcome `json:"outcome"`
	Title     string     `json:"title,omitempty"`
}

// Service drives generation cycles for the sessions of a Manager
type Service struct {
	sessions  *session.Manager
	router    *ai.Router
	events    pubsub.PubSub
	autoTitle bool
}

// Option configures a Service
type Option func(*Service)

// WithPubSub publishes every event on the session's channel as well
func WithPubSub(ps pubsub.PubSub) Option {
	return func(s *Service) {
		s.events = ps
	}
}

// WithAutoTitle controls naming a chat after its first exchange
func WithAutoTitle(enabled bool) Option {
	return func(s *Service) {
		s.autoTitle = enabled
	}
}

// NewService creates a chat service
func NewService(sessions *session.Manager, router *ai.Router, opts ...Option) *Service {
	s := &Service{sessions: sessions, router: router, autoTitle: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions returns the session manager the service works on
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Cycle is a generation that has started but not yet run. Until Run is
// called the session reports a generation in progress.
type Cycle struct {
	svc  *Service
	sess *session.Session
	gen  *session.Generation
}

// ChatID returns the chat the cycle will answer in
func (c *Cycle) ChatID() string {
	return c.gen.ChatID
}

// Run streams the reply to observe and records it
func (c *Cycle) Run(ctx context.Context, observe Observer) (*Result, error) {
	return c.svc.generate(ctx, c.sess, c.gen, observe)
}

// StartSend appends text as a user turn to the active chat and starts a cycle
func (s *Service) StartSend(sessionID, text string) (*Cycle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	gen, err := sess.Begin(text)
	if err != nil {
		return nil, err
	}
	return &Cycle{svc: s, sess: sess, gen: gen}, nil
}

// Send appends text as a user turn to the active chat and generates the reply
func (s *Service) Send(ctx context.Context, sessionID, text string, observe Observer) (*Result, error) {
	cycle, err := s.StartSend(sessionID, text)
	if err != nil {
		return nil, err
	}
	return cycle.Run(ctx, observe)
}

// StartOCR adds extracted text to the active chat as a user turn and starts a
// cycle when the session auto-sends OCR output. Blank text is reported as a
// warning and leaves the chat untouched. The cycle is nil when nothing was started.
func (s *Service) StartOCR(ctx context.Context, sessionID, text, source string, observe Observer) (*Cycle, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.emit(ctx, sess.ID, observe, Event{
			Type:      EventWarning,
			SessionID: sess.ID,
			Code:      ErrorCode(ErrNoText),
			Message:   NoTextWarning,
		})
		return nil, ErrNoText
	}

	gen, err := sess.RecordOCR(text, source, sess.Settings().AutoSendOCR)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		log.Debug().Str("session_id", sess.ID).Msg("OCR text recorded without auto-send")
		return nil, nil
	}
	return &Cycle{svc: s, sess: sess, gen: gen}, nil
}

// IngestOCR records OCR text and generates a reply when the session
// auto-sends OCR output. The result is nil when no generation was started.
func (s *Service) IngestOCR(ctx context.Context, sessionID, text string, observe Observer) (*Result, error) {
	cycle, err := s.StartOCR(ctx, sessionID, text, "", observe)
	if err != nil || cycle == nil {
		return nil, err
	}
	return cycle.Run(ctx, observe)
}

// StartLastOCR starts a cycle for the most recent OCR text
func (s *Service) StartLastOCR(sessionID string) (*Cycle, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	gen, err := sess.BeginLastOCR()
	if err != nil {
		return nil, err
	}
	return &Cycle{svc: s, sess: sess, gen: gen}, nil
}

// SendLastOCR generates a reply for the most recent OCR text
func (s *Service) SendLastOCR(ctx context.Context, sessionID string, observe Observer) (*Result, error) {
	cycle, err := s.StartLastOCR(sessionID)
	if err != nil {
		return nil, err
	}
	return cycle.Run(ctx, observe)
}

// generate runs one started cycle to completion. Once started a cycle is
// not cancelled by the caller going away; backends enforce their own timeouts.
func (s *Service) generate(ctx context.Context, sess *session.Session, gen *session.Generation, observe Observer) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := observability.StartGenerationSpan(ctx, sess.ID, gen.ChatID)

	s.emit(ctx, sess.ID, observe, Event{
		Type:      EventProgress,
		SessionID: sess.ID,
		ChatID:    gen.ChatID,
		Message:   "generating",
	})

	reply, err := s.router.RouteAndGenerate(ctx, gen.Transcript)
	if err != nil {
		sess.Abort()
		observability.EndSpan(span, err)
		s.emit(ctx, sess.ID, observe, errorEvent(sess.ID, err))
		return nil, err
	}

	for text := range reply.Chunks() {
		sess.Publish(text)
		s.emit(ctx, sess.ID, observe, Event{
			Type:      EventContent,
			SessionID: sess.ID,
			ChatID:    gen.ChatID,
			Content:   text,
		})
	}

	final := reply.Text()
	finished := sess.Finish(gen, final)

	result := &Result{
		SessionID: sess.ID,
		ChatID:    gen.ChatID,
		Reply:     final,
		Backend:   string(reply.Backend()),
		Outcome:   reply.Outcome(),
	}

	s.emit(ctx, sess.ID, observe, Event{
		Type:      EventDone,
		SessionID: sess.ID,
		ChatID:    gen.ChatID,
		Content:   final,
		Backend:   result.Backend,
		Outcome:   string(result.Outcome),
	})

	log.Info().
		Str("session_id", sess.ID).
		Str("chat_id", gen.ChatID).
		Str("backend", result.Backend).
		Str("outcome", string(result.Outcome)).
		Int("reply_length", len(final)).
		Msg("Generation finished")

	if finished.NeedsTitle && s.autoTitle {
		title := s.router.GenerateTitle(ctx, finished.FirstUserText)
		if sess.SetTitleIfDefault(gen.ChatID, title) {
			result.Title = title
			s.emit(ctx, sess.ID, observe, Event{
				Type:      EventTitle,
				SessionID: sess.ID,
				ChatID:    gen.ChatID,
				Title:     title,
			})
		}
	}

	observability.EndSpan(span, nil)
	return result, nil
}

// emit hands e to the observer and to the session's pub/sub channel
func (s *Service) emit(ctx context.Context, sessionID string, observe Observer, e Event) {
	if observe != nil {
		observe(e)
	}
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode chat event")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.events.Publish(pubCtx, pubsub.SessionChannel(sessionID), payload); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to publish chat event")
	}
}

// Notify publishes an event that did not come from a generation cycle,
// such as a chat switch made through the HTTP API
func (s *Service) Notify(ctx context.Context, sessionID string, e Event) {
	e.SessionID = sessionID
	s.emit(ctx, sessionID, nil, e)
}
