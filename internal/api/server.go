// Package api serves the DebAI HTTP surface: sessions and chats, streamed
// replies, OCR uploads, report export and the websocket endpoint.
package api

import (
	"context"
	"time"

	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/config"
	"github.com/debai-app/debai/internal/middleware"
	"github.com/debai-app/debai/internal/observability"
	"github.com/debai-app/debai/internal/ocr"
	"github.com/debai-app/debai/internal/ratelimit"
	"github.com/debai-app/debai/internal/realtime"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"
)

// Dependencies are the services the server routes to. Metrics, Tracer,
// RateLimitStore and Realtime are optional.
type Dependencies struct {
	Chat           *chat.Service
	Router         *ai.Router
	OCR            *ocr.Service
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
	RateLimitStore ratelimit.Store
	Realtime       *realtime.Handler
}

// Server is the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	chat      *chat.Service
	router    *ai.Router
	ocr       *ocr.Service
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	limits    ratelimit.Store
	realtime  *realtime.Handler
	startedAt time.Time
}

// NewServer creates the server and registers its middleware and routes
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "DebAI",
		AppName:               "DebAI " + observability.Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		chat:      deps.Chat,
		router:    deps.Router,
		ocr:       deps.OCR,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		limits:    deps.RateLimitStore,
		realtime:  deps.Realtime,
		startedAt: time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes()
	return s
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	s.app.Use(middleware.SecurityHeaders())

	if s.config.Debug {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
		}))
	}
	s.app.Use(middleware.StructuredLogger())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  s.config.Server.CORSOrigins,
		AllowMethods:  "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID,X-Trace-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After",
	}))

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Use(s.metrics.MetricsMiddleware())
	}
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.handleMetrics)
	}

	v1 := s.app.Group("/api/v1")
	if s.config.RateLimit.Enabled && s.limits != nil {
		limiter := middleware.RateLimiterConfig{
			Store:  s.limits,
			Max:    int64(s.config.RateLimit.Requests),
			Window: s.config.RateLimit.Window,
			Name:   "api",
		}
		if s.metrics != nil {
			limiter.OnLimit = s.metrics.RecordRateLimitHit
		}
		v1.Use(middleware.NewRateLimiter(limiter))
	}

	v1.Get("/capabilities", s.handleCapabilities)

	sessions := v1.Group("/sessions")
	sessions.Post("/", s.handleCreateSession)
	sessions.Get("/", s.handleListSessions)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Delete("/:id", s.handleEndSession)
	sessions.Patch("/:id/settings", s.handleUpdateSettings)

	sessions.Post("/:id/chats", s.handleCreateChat)
	sessions.Patch("/:id/chats/:chatId", s.handleRenameChat)
	sessions.Delete("/:id/chats/:chatId", s.handleDeleteChat)
	sessions.Post("/:id/chats/:chatId/activate", s.handleActivateChat)
	sessions.Get("/:id/chats/:chatId/transcript", s.handleGetTranscript)

	sessions.Post("/:id/messages", s.handleSendMessage)
	sessions.Post("/:id/ocr", s.handleOCRUpload)
	sessions.Post("/:id/ocr/send", s.handleSendLastOCR)
	sessions.Get("/:id/ocr/last", s.handleDownloadLastOCR)

	if s.config.Export.Enabled {
		sessions.Get("/:id/export.pdf", s.handleExportReport)
	}

	if s.realtime != nil && s.config.Realtime.Enabled {
		s.app.Get("/ai/ws", s.realtime.HandleWebSocket)
	}
}

// handleHealth reports liveness and the resolved backend table
func (s *Server) handleHealth(c *fiber.Ctx) error {
	services := fiber.Map{
		"backends": s.router.Capabilities(),
		"sessions": s.chat.Sessions().Count(),
	}
	if s.ocr != nil {
		services["ocr_engine"] = s.ocr.EngineAvailable()
	}
	if s.realtime != nil {
		services["realtime"] = s.realtime.Stats()
	}

	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  observability.Version,
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"services": services,
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	s.metrics.UpdateUptime(s.startedAt)
	return s.metrics.Handler()(c)
}

// Start starts the server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}

	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	return nil
}

// App returns the Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler renders every error as {"error": ..., "code": ...}
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
