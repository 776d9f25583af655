package learned

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for learned-rule snapshots.
type Metrics struct {
	SnapshotVersion prometheus.Gauge
	SnapshotRules   prometheus.Gauge
	Swaps           prometheus.Counter
	Rejected        *prometheus.CounterVec
}

// NewMetrics registers the metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SnapshotVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docrisk_learned_snapshot_version",
			Help: "Version of the active learned-rule snapshot",
		}),
		SnapshotRules: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docrisk_learned_snapshot_rules",
			Help: "Number of rules in the active learned-rule snapshot",
		}),
		Swaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "docrisk_learned_snapshot_swaps_total",
			Help: "Total number of learned-rule snapshot swaps",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docrisk_learned_snapshot_rejected_total",
			Help: "Total number of rejected learned-rule snapshot publishes by reason",
		}, []string{"reason"}),
	}
}

// ObserveSwap records a successful swap.
func (m *Metrics) ObserveSwap(version int64, rules int) {
	if m != nil {
		m.SnapshotVersion.Set(float64(version))
		m.SnapshotRules.Set(float64(rules))
		m.Swaps.Inc()
	}
}

// IncRejected records a rejected publish.
func (m *Metrics) IncRejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}
