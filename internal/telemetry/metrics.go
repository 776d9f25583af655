package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the trace sink.
type Metrics struct {
	Published      prometheus.Counter
	Sampled        prometheus.Counter
	BreakerDropped prometheus.Counter
	Failures       prometheus.Counter
	BreakerState   prometheus.Gauge
}

// NewMetrics registers the sink metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the sink metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "docrisk_trace_published_total",
			Help: "Decision traces written to the broker",
		}),
		Sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "docrisk_trace_sampled_out_total",
			Help: "Decision traces skipped by sampling",
		}),
		BreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "docrisk_trace_breaker_dropped_total",
			Help: "Decision traces dropped while the breaker was open",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "docrisk_trace_publish_failures_total",
			Help: "Decision trace produce failures",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "docrisk_trace_breaker_open",
			Help: "Trace sink breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) incSampled() {
	if m != nil {
		m.Sampled.Inc()
	}
}

func (m *Metrics) incBreakerDropped() {
	if m != nil {
		m.BreakerDropped.Inc()
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.Failures.Inc()
	}
}

func (m *Metrics) setBreaker(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
