// Package metrics holds the engine's Prometheus instruments behind an
// explicit registry handle so tests stay hermetic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every instrument the engine emits, bound to one
// prometheus.Registry passed in at construction.
type Registry struct {
	registry *prometheus.Registry

	// CDC consumer
	CDCEventsProcessed    *prometheus.CounterVec
	CDCEventsFailed       *prometheus.CounterVec
	CDCProcessingDuration *prometheus.HistogramVec

	// Retry engine
	RetryAttempts *prometheus.CounterVec
	RetrySuccess  *prometheus.CounterVec
	RetryFailure  *prometheus.CounterVec

	// Dead-letter sink
	DLQMessages    prometheus.Counter
	DLQByEventType *prometheus.CounterVec

	// Circuit breaker: 0=Closed, 1=Open, 2=HalfOpen
	CircuitBreakerState prometheus.Gauge

	// Health: 0=Healthy, 1=Degraded, 2=Unhealthy, per component
	ActorHealthStatus *prometheus.GaugeVec
}

// New creates all instruments registered on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		registry: reg,

		CDCEventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_events_processed_total",
				Help: "Total CDC outbox rows published to the broker",
			},
			[]string{"event_type"},
		),
		CDCEventsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_events_failed_total",
				Help: "Total CDC outbox rows that failed processing",
			},
			[]string{"event_type", "reason"},
		),
		CDCProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdc_processing_duration_seconds",
				Help:    "Latency from CDC record receipt to delivered or dead-lettered",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"event_type"},
		),

		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retry_attempts_total",
				Help: "Retry attempts by operation and attempt number",
			},
			[]string{"op", "attempt"},
		),
		RetrySuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retry_success_total",
				Help: "Operations that eventually succeeded under retry",
			},
			[]string{"op"},
		),
		RetryFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retry_failure_total",
				Help: "Operations that failed permanently or exhausted retries",
			},
			[]string{"op"},
		),

		DLQMessages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dlq_messages_total",
				Help: "Total messages written to the dead-letter queue",
			},
		),
		DLQByEventType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dlq_messages_by_event_type",
				Help: "Dead-lettered messages by event type",
			},
			[]string{"event_type"},
		),

		CircuitBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state: 0=Closed, 1=Open, 2=HalfOpen",
			},
		),
		ActorHealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "actor_health_status",
				Help: "Component health: 0=Healthy, 1=Degraded, 2=Unhealthy",
			},
			[]string{"component"},
		),
	}

	reg.MustRegister(
		m.CDCEventsProcessed,
		m.CDCEventsFailed,
		m.CDCProcessingDuration,
		m.RetryAttempts,
		m.RetrySuccess,
		m.RetryFailure,
		m.DLQMessages,
		m.DLQByEventType,
		m.CircuitBreakerState,
		m.ActorHealthStatus,
	)

	return m
}

// Handler returns the text exposition handler for GET /metrics.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordProcessed implements the CDC consumer's metrics contract.
func (m *Registry) RecordProcessed(eventType string) {
	m.CDCEventsProcessed.WithLabelValues(eventType).Inc()
}

// RecordFailed implements the CDC consumer's metrics contract.
func (m *Registry) RecordFailed(eventType, reason string) {
	m.CDCEventsFailed.WithLabelValues(eventType, reason).Inc()
}

// ObserveProcessing implements the CDC consumer's metrics contract.
func (m *Registry) ObserveProcessing(eventType string, d time.Duration) {
	m.CDCProcessingDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

// RecordDeadLetter implements the dead-letter sink's counter contract.
func (m *Registry) RecordDeadLetter(eventType string) {
	m.DLQMessages.Inc()
	m.DLQByEventType.WithLabelValues(eventType).Inc()
}

// ComponentGauge adapts a labeled gauge to per-component Set calls.
type ComponentGauge struct {
	vec *prometheus.GaugeVec
}

// Set records the value for one component.
func (g ComponentGauge) Set(component string, value float64) {
	g.vec.WithLabelValues(component).Set(value)
}

// ActorHealthGauge exposes actor_health_status for the health registry.
func (m *Registry) ActorHealthGauge() ComponentGauge {
	return ComponentGauge{vec: m.ActorHealthStatus}
}

// RecordRetryAttempt implements the retry engine's observer contract.
func (m *Registry) RecordRetryAttempt(op string, attempt int) {
	m.RetryAttempts.WithLabelValues(op, strconv.Itoa(attempt)).Inc()
}

// RecordRetrySuccess implements the retry engine's observer contract.
func (m *Registry) RecordRetrySuccess(op string) {
	m.RetrySuccess.WithLabelValues(op).Inc()
}

// RecordRetryFailure implements the retry engine's observer contract.
func (m *Registry) RecordRetryFailure(op string) {
	m.RetryFailure.WithLabelValues(op).Inc()
}
