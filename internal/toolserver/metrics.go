package toolserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes recorded in metrics.
const (
	outcomeSuccess      = "success"
	outcomeBadArguments = "bad_arguments"
	outcomeMappingError = "mapping_error"
	outcomeRejected     = "rejected"
	outcomeToolError    = "tool_error"
)

// Metrics counts tool calls by outcome and times them.
type Metrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the tool server collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "security_tools",
			Name:      "calls_total",
			Help:      "Tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "security_tools",
			Name:      "call_duration_seconds",
			Help:      "Tool call latency including mapping and AWS calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"}),
	}
	reg.MustRegister(m.calls, m.latency)
	return m
}

func (m *Metrics) observe(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(tool, outcome).Inc()
	m.latency.WithLabelValues(tool).Observe(d.Seconds())
}
