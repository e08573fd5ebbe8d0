package observability

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a DebAI server
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Generation metrics
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	firstChunkLatency  *prometheus.HistogramVec

	// OCR metrics
	ocrExtractionsTotal *prometheus.CounterVec
	ocrDuration         *prometheus.HistogramVec

	// Realtime metrics
	realtimeConnections   prometheus.Gauge
	realtimeMessagesTotal *prometheus.CounterVec

	rateLimitHitsTotal *prometheus.CounterVec

	systemUptime prometheus.Gauge
}

// NewMetrics registers the DebAI collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debai_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debai_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "debai_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		generationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debai_generations_total",
				Help: "Generation cycles by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		generationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debai_generation_duration_seconds",
				Help:    "Time from routing to the final reply",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"backend"},
		),
		firstChunkLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debai_generation_first_chunk_seconds",
				Help:    "Time from routing to the first published chunk",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		),

		ocrExtractionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debai_ocr_extractions_total",
				Help: "OCR extractions by upload kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ocrDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debai_ocr_duration_seconds",
				Help:    "OCR extraction latency in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),

		realtimeConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "debai_realtime_connections",
				Help: "Current number of websocket connections",
			},
		),
		realtimeMessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debai_realtime_messages_total",
				Help: "Websocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		rateLimitHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debai_rate_limit_hits_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),

		systemUptime: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "debai_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterSessionGauge reports the live session count on every scrape
func (m *Metrics) RegisterSessionGauge(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "debai_sessions_active",
			Help: "Current number of live sessions",
		},
		func() float64 { return float64(count()) },
	))
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		err := c.Next()

		path := c.Route().Path
		if path == "" || path == "/" {
			path = normalizePath(c.Path())
		}
		method := c.Method()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordGeneration records one finished generation cycle.
// firstChunk is zero when nothing was published.
func (m *Metrics) RecordGeneration(backend, outcome string, duration, firstChunk time.Duration) {
	m.generationsTotal.WithLabelValues(backend, outcome).Inc()
	m.generationDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if firstChunk > 0 {
		m.firstChunkLatency.WithLabelValues(backend).Observe(firstChunk.Seconds())
	}
}

// RecordOCR records one OCR extraction
func (m *Metrics) RecordOCR(kind, outcome string, duration time.Duration) {
	m.ocrExtractionsTotal.WithLabelValues(kind, outcome).Inc()
	m.ocrDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RealtimeConnected tracks a websocket connection opening
func (m *Metrics) RealtimeConnected() {
	m.realtimeConnections.Inc()
}

// RealtimeDisconnected tracks a websocket connection closing
func (m *Metrics) RealtimeDisconnected() {
	m.realtimeConnections.Dec()
}

// RecordRealtimeMessage counts a websocket message; direction is "in" or "out"
func (m *Metrics) RecordRealtimeMessage(direction, msgType string) {
	m.realtimeMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// RecordRateLimitHit counts a rejected request
func (m *Metrics) RecordRateLimitHit(limiter string) {
	m.rateLimitHitsTotal.WithLabelValues(limiter).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes the registry
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// normalizePath replaces id segments so label cardinality stays bounded
func normalizePath(path string) string {
	if len(path) > 120 {
		return "long_path"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if _, err := uuid.Parse(seg); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
