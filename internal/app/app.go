// Package app wires configuration into a running DebAI server. The server
// binary and the CLI serve command share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/api"
	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/config"
	"github.com/debai-app/debai/internal/observability"
	"github.com/debai-app/debai/internal/ocr"
	"github.com/debai-app/debai/internal/pubsub"
	"github.com/debai-app/debai/internal/ratelimit"
	"github.com/debai-app/debai/internal/realtime"
	"github.com/debai-app/debai/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

// App holds every long-lived component of a server process
type App struct {
	Config   *config.Config
	Server   *api.Server
	Sessions *session.Manager
	Chat     *chat.Service
	Router   *ai.Router
	OCR      *ocr.Service
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer

	sweeper  *session.Sweeper
	realtime *realtime.Manager
	events   pubsub.PubSub
	redis    *redis.Client
	cancel   context.CancelFunc
}

// New builds the server and everything it depends on. Backend capabilities
// are probed here, once.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &App{Config: cfg, cancel: cancel}

	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.Tracer = tracer

	if cfg.Metrics.Enabled {
		a.Metrics = observability.NewMetrics()
	}

	if needsRedis(cfg) {
		client, err := pubsub.DialRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
	}

	a.events, err = pubsub.NewPubSub(cfg.PubSub, a.redis)
	if err != nil {
		return fmt.Errorf("failed to initialize pub/sub: %w", err)
	}

	var limits ratelimit.Store
	if cfg.RateLimit.Enabled {
		limits, err = ratelimit.NewStore(cfg.RateLimit, a.redis)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limit store: %w", err)
		}
	}

	var (
		generations ai.GenerationRecorder
		extractions ocr.Recorder
	)
	if a.Metrics != nil {
		generations, extractions = a.Metrics, a.Metrics
	}

	a.OCR, err = NewOCR(cfg.OCR, extractions)
	if err != nil {
		return err
	}

	a.Router, err = NewRouter(ctx, cfg.AI, generations)
	if err != nil {
		return err
	}

	a.Sessions = session.NewManager(SessionOptions(cfg))
	if cfg.Session.TTL > 0 {
		a.sweeper, err = session.NewSweeper(a.Sessions, cfg.Session.CleanupSchedule)
		if err != nil {
			return err
		}
	}
	if a.Metrics != nil {
		a.Metrics.RegisterSessionGauge(a.Sessions.Count)
	}

	a.Chat = chat.NewService(a.Sessions, a.Router,
		chat.WithPubSub(a.events),
		chat.WithAutoTitle(cfg.Session.AutoTitle),
	)

	var ws *realtime.Handler
	if cfg.Realtime.Enabled {
		a.realtime = realtime.NewManager(ctx, a.events)
		if a.Metrics != nil {
			a.realtime.SetRecorder(a.Metrics)
		}
		ws = realtime.NewHandler(a.realtime, a.Chat, cfg.Realtime)
	}

	a.Server = api.NewServer(cfg, api.Dependencies{
		Chat:           a.Chat,
		Router:         a.Router,
		OCR:            a.OCR,
		Metrics:        a.Metrics,
		Tracer:         a.Tracer,
		RateLimitStore: limits,
		Realtime:       ws,
	})
	return nil
}

// needsRedis reports whether any configured backend uses the Redis client
func needsRedis(cfg *config.Config) bool {
	return cfg.PubSub.Backend == "redis" ||
		(cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis")
}

// SessionOptions derives the session manager options from configuration
func SessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		TTL:      cfg.Session.TTL,
		MaxChats: cfg.Session.MaxChats,
		Defaults: session.Settings{
			AutoSendOCR:  cfg.OCR.AutoSend,
			SystemPrompt: cfg.AI.SystemPrompt,
		},
	}
}

// Backends builds the static preference order: the local backend first,
// then the cloud one. A disabled backend keeps its slot without a provider.
func Backends(cfg config.AIConfig) ([]ai.Backend, error) {
	local := ai.Backend{Name: ai.BackendOllama, Label: "Ollama", Family: ai.FamilyLocal}
	if cfg.Ollama.Enabled {
		p, err := ai.NewProvider(ai.ProviderConfig{
			Name:    string(ai.BackendOllama),
			Type:    ai.ProviderTypeOllama,
			Model:   cfg.Ollama.Model,
			Config:  map[string]string{"endpoint": cfg.Ollama.Endpoint},
			Timeout: cfg.Ollama.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama backend: %w", err)
		}
		local.Provider = p
	}

	cloud := ai.Backend{Name: ai.BackendGemini, Label: "Gemini", Family: ai.FamilyCloud}
	if cfg.Gemini.Enabled {
		p, err := ai.NewProvider(ai.ProviderConfig{
			Name:  string(ai.BackendGemini),
			Type:  ai.ProviderTypeGemini,
			Model: cfg.Gemini.Model,
			Config: map[string]string{
				"base_url": cfg.Gemini.BaseURL,
				"api_key":  cfg.Gemini.APIKey,
			},
			Timeout: cfg.Gemini.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini backend: %w", err)
		}
		cloud.Provider = p
	}

	return []ai.Backend{local, cloud}, nil
}

// NewRouter builds the backends, probes them and returns the Turn Router.
// recorder may be nil.
func NewRouter(ctx context.Context, cfg config.AIConfig, recorder ai.GenerationRecorder) (*ai.Router, error) {
	backends, err := Backends(cfg)
	if err != nil {
		return nil, err
	}

	caps := ai.ResolveCapabilities(ctx, backends, cfg.ProbeTimeout)
	opts := []ai.RouterOption{ai.WithLanguageDirective(cfg.LanguageDirective)}
	if recorder != nil {
		opts = append(opts, ai.WithRecorder(recorder))
	}
	return ai.NewRouter(backends, caps, opts...), nil
}

// NewOCR builds the OCR service. recorder may be nil.
func NewOCR(cfg config.OCRConfig, recorder ocr.Recorder) (*ocr.Service, error) {
	var opts []ocr.Option
	if recorder != nil {
		opts = append(opts, ocr.WithRecorder(recorder))
	}
	svc, err := ocr.NewService(ocr.ServiceConfig{
		Enabled:     cfg.Enabled,
		Languages:   cfg.Languages,
		PageHeaders: cfg.PageHeaders,
		DPI:         cfg.DPI,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCR: %w", err)
	}
	return svc, nil
}

// Start starts the session sweeper and serves HTTP until the listener closes
func (a *App) Start() error {
	if a.sweeper != nil {
		a.sweeper.Start()
	}
	return a.Server.Start()
}

// Shutdown stops accepting requests, closes websocket connections and
// releases the backends
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if a.sweeper != nil {
		a.sweeper.Stop(ctx)
	}
	if a.realtime != nil {
		a.realtime.Shutdown()
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

// close releases what build acquired, in reverse order
func (a *App) close() error {
	var errs []error
	if a.Router != nil {
		if err := a.Router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("router close: %w", err))
		}
	}
	if a.OCR != nil {
		if err := a.OCR.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ocr close: %w", err))
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub close: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	a.cancel()
	return errors.Join(errs...)
}

// Run builds the server, serves until SIGINT or SIGTERM (or ctx is done)
// and then shuts down gracefully
func Run(ctx context.Context, cfg *config.Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting DebAI server")
		if err := a.Start(); err != nil {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
		log.Info().Msg("Shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down server...")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("Server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return errors.Join(serveErr, err)
	}

	log.Info().Msg("Server shutdown complete")
	return serveErr
}
