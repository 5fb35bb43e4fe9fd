package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// BackgroundJobMetrics covers the engine's reconciliation loops.
type BackgroundJobMetrics struct {
	jobDuration *prometheus.HistogramVec
	jobRuns     *prometheus.CounterVec
	activeJobs  prometheus.Gauge
}

func NewBackgroundJobMetrics() *BackgroundJobMetrics {
	return &BackgroundJobMetrics{
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channel_backend_job_duration_seconds",
				Help:    "Duration of background job runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job_name", "status"},
		),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_backend_job_runs_total",
				Help: "Total number of background job runs",
			},
			[]string{"job_name", "status"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "channel_backend_active_jobs",
				Help: "Number of background jobs currently running",
			},
		),
	}
}

func (m *BackgroundJobMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.jobDuration, m.jobRuns, m.activeJobs)
}

// ExternalAPIMetrics covers calls to the Lightning, Bitcoin and compliance
// workers.
type ExternalAPIMetrics struct {
	apiDuration         *prometheus.HistogramVec
	apiCalls            *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
}

func NewExternalAPIMetrics() *ExternalAPIMetrics {
	return &ExternalAPIMetrics{
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channel_backend_external_api_duration_seconds",
				Help:    "Duration of external API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api_name", "operation", "status"},
		),
		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_backend_external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api_name", "status"},
		),
		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "channel_backend_circuit_breaker_state",
				Help: "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"api_name"},
		),
	}
}

func (m *ExternalAPIMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.apiDuration, m.apiCalls, m.circuitBreakerState)
}

func (m *ExternalAPIMetrics) RecordAPICall(apiName, operation, status string, duration float64) {
	m.apiDuration.WithLabelValues(apiName, operation, status).Observe(duration)
	m.apiCalls.WithLabelValues(apiName, status).Inc()
}

func (m *ExternalAPIMetrics) UpdateCircuitBreakerState(apiName string, state gobreaker.State) {
	m.circuitBreakerState.WithLabelValues(apiName).Set(float64(state))
}

// OrderMetrics covers the business side: order state transitions.
type OrderMetrics struct {
	stateTransitions *prometheus.CounterVec
}

func NewOrderMetrics() *OrderMetrics {
	return &OrderMetrics{
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_backend_order_state_transitions_total",
				Help: "Total number of order state transitions",
			},
			[]string{"from", "to"},
		),
	}
}

func (m *OrderMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.stateTransitions)
}

func (m *OrderMetrics) RecordStateTransition(from, to string) {
	m.stateTransitions.WithLabelValues(from, to).Inc()
}
