package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuthMetrics tracks session auth checks and logins.
type AuthMetrics struct {
	Checks         *prometheus.CounterVec
	SharedChecks   prometheus.Counter
	Logins         *prometheus.CounterVec
	ActiveSessions prometheus.GaugeFunc
}

// NewAuthMetrics creates and registers auth metrics. activeSessions reports
// the number of visitor sessions currently held in memory.
func NewAuthMetrics(reg prometheus.Registerer, activeSessions func() float64) *AuthMetrics {
	m := &AuthMetrics{
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "checks_total",
			Help:      "Total number of auth checks, by outcome.",
		}, []string{"outcome"}),
		SharedChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "checks_shared_total",
			Help:      "Auth check results delivered to callers that joined an in-flight check.",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Total number of login attempts, by result.",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "active_sessions",
			Help:      "Number of visitor sessions held in memory.",
		}, activeSessions),
	}

	reg.MustRegister(m.Checks, m.SharedChecks, m.Logins, m.ActiveSessions)
	return m
}

// AuthCheck implements session.Observer.
func (m *AuthMetrics) AuthCheck(outcome string, shared bool) {
	m.Checks.WithLabelValues(outcome).Inc()
	if shared {
		m.SharedChecks.Inc()
	}
}

func (m *AuthMetrics) Login(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Logins.WithLabelValues(result).Inc()
}
