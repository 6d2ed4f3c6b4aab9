package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics tracks calls to the upstream REST API.
type APIMetrics struct {
	RequestDuration *prometheus.HistogramVec
	Retries         *prometheus.CounterVec
	BreakerState    prometheus.Gauge
}

func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	m := &APIMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of upstream API requests in seconds.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation", "status"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Total number of retried upstream API requests.",
		}, []string{"operation"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "circuit_breaker_state",
			Help:      "Upstream API circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.Retries, m.BreakerState)
	return m
}

func (m *APIMetrics) ObserveRequest(operation, status string, d time.Duration) {
	m.RequestDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

func (m *APIMetrics) Retry(operation string) {
	m.Retries.WithLabelValues(operation).Inc()
}

func (m *APIMetrics) SetBreakerState(state float64) {
	m.BreakerState.Set(state)
}
