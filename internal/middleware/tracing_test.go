package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
		_ = provider.Shutdown(context.Background())
	})
	return rec
}

func TestTracingMiddleware_Disabled(t *testing.T) {
	rec := withRecorder(t)

	app := fiber.New()
	app.Use(TracingMiddleware(TracingConfig{Enabled: false}))
	app.Get("/test", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("X-Trace-ID"))
	assert.Empty(t, rec.Ended())
}

func TestTracingMiddleware(t *testing.T) {
	t.Run("names the span after the route", func(t *testing.T) {
		rec := withRecorder(t)

		var traceID string
		app := fiber.New()
		app.Use(TracingMiddleware(DefaultTracingConfig()))
		app.Get("/api/v1/sessions/:id", func(c *fiber.Ctx) error {
			traceID = GetTraceID(c)
			return c.SendString("ok")
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/sessions/abc", nil))
		require.NoError(t, err)
		assert.Len(t, traceID, 32)
		assert.Equal(t, traceID, resp.Header.Get("X-Trace-ID"))

		spans := rec.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "GET /api/v1/sessions/:id", spans[0].Name())
	})

	t.Run("continues an incoming trace", func(t *testing.T) {
		rec := withRecorder(t)

		app := fiber.New()
		app.Use(TracingMiddleware(DefaultTracingConfig()))
		app.Get("/test", func(c *fiber.Ctx) error { return c.SendString("ok") })

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		_, err := app.Test(req)
		require.NoError(t, err)

		spans := rec.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	})

	t.Run("skip paths", func(t *testing.T) {
		rec := withRecorder(t)

		app := fiber.New()
		app.Use(TracingMiddleware(DefaultTracingConfig()))
		app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

		_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Empty(t, rec.Ended())
	})

	t.Run("handler errors mark the span", func(t *testing.T) {
		rec := withRecorder(t)

		app := fiber.New()
		app.Use(TracingMiddleware(DefaultTracingConfig()))
		app.Get("/boom", func(c *fiber.Ctx) error { return fiber.ErrBadGateway })

		_, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
		require.NoError(t, err)

		spans := rec.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
	})
}
