package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	authEvents     *prometheus.CounterVec
}

// NewMetrics registers the collectors used by the HTTP layer and the guard.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Error responses by route and error code.",
		}, []string{"route", "method", "code"}),
		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_guard_decisions_total",
			Help: "Route guard outcomes by route sensitivity.",
		}, []string{"sensitivity", "outcome"}),
		authEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Authentication lifecycle events emitted.",
		}, []string{"type"}),
	}
}

// RecordRequest observes one completed request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordGuardDecision counts a route guard outcome.
func (m *Metrics) RecordGuardDecision(sensitivity, outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(sensitivity, outcome).Inc()
}

// RecordAuthEvent counts an emitted auth event.
func (m *Metrics) RecordAuthEvent(eventType string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(eventType).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
