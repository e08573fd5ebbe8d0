package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// NoBackendMessage is the reply when no backend is available
	NoBackendMessage = "Assistant unavailable: no supported model client found (ollama or google-generativeai).\n\n" +
		"Use Ollama locally or set GEMINI_API_KEY for cloud-model fallback."

	// MissingCredentialMessage is the reply when the cloud backend has no API key
	MissingCredentialMessage = "Assistant unavailable: Gemini API key not set (GEMINI_API_KEY).\n\n" +
		"Set the environment variable to enable cloud-model fallback."
)

// ErrInvalidTranscript is returned when a transcript is empty or does not end with a user turn
var ErrInvalidTranscript = errors.New("transcript must be non-empty and end with a user turn")

var errConsumerStopped = errors.New("consumer stopped reading")

// Outcome classifies how a generation ended
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeFailed            Outcome = "failed"
	OutcomeNoBackend         Outcome = "no_backend"
	OutcomeMissingCredential Outcome = "missing_credential"
	OutcomeAbandoned         Outcome = "abandoned"
)

// GenerationRecorder receives one record per finished generation
type GenerationRecorder interface {
	RecordGeneration(backend string, outcome string, duration time.Duration, firstChunk time.Duration)
}

// Router picks a backend for a transcript, shapes the request and streams the reply
type Router struct {
	backends          []Backend
	caps              Capabilities
	languageDirective bool
	recorder          GenerationRecorder
	tracer            trace.Tracer
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithLanguageDirective toggles the response-language directive
func WithLanguageDirective(enabled bool) RouterOption {
	return func(r *Router) {
		r.languageDirective = enabled
	}
}

// WithRecorder sets the generation metrics recorder
func WithRecorder(recorder GenerationRecorder) RouterOption {
	return func(r *Router) {
		r.recorder = recorder
	}
}

// NewRouter creates a router over backends in preference order
func NewRouter(backends []Backend, caps Capabilities, opts ...RouterOption) *Router {
	r := &Router{
		backends:          backends,
		caps:              caps,
		languageDirective: true,
		tracer:            otel.Tracer("debai/ai"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capabilities returns a copy of the capability table
func (r *Router) Capabilities() Capabilities {
	out := make(Capabilities, len(r.caps))
	for k, v := range r.caps {
		out[k] = v
	}
	return out
}

// Backends returns the preference order
func (r *Router) Backends() []Backend {
	return r.backends
}

// Select returns the first available backend in preference order
func (r *Router) Select() (Backend, bool) {
	for _, b := range r.backends {
		if r.caps.Available(b.Name) && b.Provider != nil {
			return b, true
		}
	}
	return Backend{}, false
}

// Close closes all backend providers
func (r *Router) Close() error {
	var errs []error
	for _, b := range r.backends {
		if b.Provider != nil {
			if err := b.Provider.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RouteAndGenerate produces the assistant reply for transcript.
// The transcript is only read; decorated text never leaves the outbound request.
func (r *Router) RouteAndGenerate(ctx context.Context, transcript []Message) (*Reply, error) {
	if len(transcript) == 0 || transcript[len(transcript)-1].Role != RoleUser {
		return nil, ErrInvalidTranscript
	}

	last := transcript[len(transcript)-1].Content
	decorated := last
	if r.languageDirective {
		decorated = Decorate(last)
	}

	backend, ok := r.Select()
	if !ok {
		log.Warn().Msg("No LLM backend available")
		return r.staticReply("", NoBackendMessage, OutcomeNoBackend), nil
	}

	if c, ok := backend.Provider.(credentialed); ok && !c.HasCredential() {
		log.Warn().Str("backend", string(backend.Name)).Msg("Cloud backend selected without credential")
		return r.staticReply(backend.Name, MissingCredentialMessage, OutcomeMissingCredential), nil
	}

	var req *ChatRequest
	switch backend.Family {
	case FamilyCloud:
		req = shapeCloudRequest(transcript, decorated)
	default:
		req = shapeLocalRequest(transcript, decorated)
	}

	log.Debug().
		Str("backend", string(backend.Name)).
		Int("turns", len(transcript)).
		Msg("Routing turn")

	return r.streamReply(ctx, backend, req), nil
}

// shapeLocalRequest passes the whole transcript with the last user turn decorated
func shapeLocalRequest(transcript []Message, decorated string) *ChatRequest {
	messages := make([]Message, len(transcript))
	copy(messages, transcript)
	messages[len(messages)-1].Content = decorated
	return &ChatRequest{Messages: messages, Stream: true}
}

// shapeCloudRequest splits out the system turn and role-maps the history,
// then puts the decorated user turn on top as the new message
func shapeCloudRequest(transcript []Message, decorated string) *ChatRequest {
	req := &ChatRequest{Stream: true}
	history := make([]Message, 0, len(transcript))

	for _, m := range transcript[:len(transcript)-1] {
		switch m.Role {
		case RoleSystem:
			req.SystemInstruction = m.Content
		case RoleUser:
			history = append(history, Message{Role: RoleUser, Content: m.Content})
		default:
			history = append(history, Message{Role: RoleModel, Content: m.Content})
		}
	}

	req.Messages = append(history, Message{Role: RoleUser, Content: decorated})
	return req
}

func (r *Router) staticReply(backend BackendName, text string, outcome Outcome) *Reply {
	return &Reply{
		backend: backend,
		run: func(yield func(string) bool) (string, Outcome) {
			yield(text)
			return text, outcome
		},
		recorder: r.recorder,
	}
}

func (r *Router) streamReply(ctx context.Context, backend Backend, req *ChatRequest) *Reply {
	reply := &Reply{backend: backend.Name, recorder: r.recorder}

	reply.run = func(yield func(string) bool) (string, Outcome) {
		ctx, span := r.tracer.Start(ctx, "ai.route_and_generate",
			trace.WithAttributes(
				attribute.String("ai.backend", string(backend.Name)),
				attribute.Int("ai.messages", len(req.Messages)),
			),
		)
		defer span.End()

		var acc strings.Builder
		stopped := false
		err := backend.Provider.ChatStream(ctx, req, func(event StreamEvent) error {
			if event.Type != "content" || event.Delta == "" {
				return nil
			}
			acc.WriteString(event.Delta)
			if reply.firstChunk == 0 {
				reply.firstChunk = time.Since(reply.started)
			}
			if !yield(acc.String()) {
				stopped = true
				return errConsumerStopped
			}
			return nil
		})

		if stopped {
			return acc.String(), OutcomeAbandoned
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error().Err(err).Str("backend", string(backend.Name)).Msg("Streaming generation failed")

			msg := fmt.Sprintf("%s streaming failed: %v", backend.Label, err)
			yield(msg)
			return msg, OutcomeFailed
		}

		span.SetAttributes(attribute.Int("ai.reply_length", acc.Len()))
		return acc.String(), OutcomeSuccess
	}

	return reply
}

// Reply is the lazy, single-use output of one generation
type Reply struct {
	backend  BackendName
	run      func(yield func(string) bool) (string, Outcome)
	recorder GenerationRecorder

	used       atomic.Bool
	started    time.Time
	firstChunk time.Duration
	final      string
	outcome    Outcome
	finished   bool
}

// Backend returns the backend that produced the reply, empty when none was available
func (r *Reply) Backend() BackendName {
	return r.backend
}

// Chunks yields the cumulative reply text after every backend chunk.
// Each yielded value extends the previous one, except the single failure
// message which replaces it. A Reply can be iterated only once.
func (r *Reply) Chunks() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !r.used.CompareAndSwap(false, true) {
			return
		}
		r.started = time.Now()
		r.final, r.outcome = r.run(yield)
		r.finished = true

		if r.recorder != nil {
			backend := string(r.backend)
			if backend == "" {
				backend = "none"
			}
			r.recorder.RecordGeneration(backend, string(r.outcome), time.Since(r.started), r.firstChunk)
		}
	}
}

// Text returns the final reply, valid once Chunks has been drained
func (r *Reply) Text() string {
	return r.final
}

// Outcome returns how the generation ended, valid once Chunks has been drained
func (r *Reply) Outcome() Outcome {
	return r.outcome
}

// Failed reports whether the reply is a failure or unavailability message
func (r *Reply) Failed() bool {
	return r.finished && r.outcome != OutcomeSuccess && r.outcome != OutcomeAbandoned
}

// Collect drains the reply and returns the final text
func (r *Reply) Collect() string {
	for range r.Chunks() {
	}
	return r.final
}
