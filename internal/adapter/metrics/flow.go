package metrics

import "github.com/prometheus/client_golang/prometheus"

// FlowMetrics tracks multi-step flow transitions.
type FlowMetrics struct {
	Transitions *prometheus.CounterVec
}

func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	m := &FlowMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "transitions_total",
			Help:      "Total number of flow transitions, by flow, event and result.",
		}, []string{"flow", "event", "result"}),
	}

	reg.MustRegister(m.Transitions)
	return m
}

func (m *FlowMetrics) Transition(flow, event, result string) {
	m.Transitions.WithLabelValues(flow, event, result).Inc()
}
