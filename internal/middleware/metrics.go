package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors. It also satisfies the
// pipeline's metrics recorder.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	pipelineRuns   *prometheus.CounterVec
	retryAttempts  *prometheus.CounterVec
	aiCallDuration *prometheus.HistogramVec
	aiTokens       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediscan",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mediscan",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mediscan",
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
		pipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediscan",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Upload-and-analyze runs by outcome.",
			},
			[]string{"outcome"},
		),
		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediscan",
				Subsystem: "pipeline",
				Name:      "retry_attempts_total",
				Help:      "Retries performed by operation.",
			},
			[]string{"operation"},
		),
		aiCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mediscan",
				Subsystem: "ai",
				Name:      "call_duration_seconds",
				Help:      "Model call duration by call kind and status.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"call", "status"},
		),
		aiTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediscan",
				Subsystem: "ai",
				Name:      "tokens_total",
				Help:      "Token usage by call kind and direction.",
			},
			[]string{"call", "direction"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.pipelineRuns,
		m.retryAttempts,
		m.aiCallDuration,
		m.aiTokens,
	)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapWriter(w)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(wrapped, r)

		route := routePattern(r)
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded by using chi's matched pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (m *Metrics) PipelineRun(outcome string) {
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RetryAttempt(operation string) {
	m.retryAttempts.WithLabelValues(operation).Inc()
}

func (m *Metrics) AICall(call string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.aiCallDuration.WithLabelValues(call, status).Observe(d.Seconds())
}

// TokenUsage records prompt and completion tokens for one model call.
func (m *Metrics) TokenUsage(call string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		m.aiTokens.WithLabelValues(call, "in").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.aiTokens.WithLabelValues(call, "out").Add(float64(completionTokens))
	}
}
