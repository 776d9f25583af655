package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision engine.
type Metrics struct {
	// Decision outcomes by label
	DecisionOutcome *prometheus.CounterVec

	// Final clamped score distribution
	Score prometheus.Histogram

	// Scoring rule firings by rule and severity
	RuleFirings *prometheus.CounterVec

	// Firings kept for audit but not scored, by suppression reason
	SuppressedFirings *prometheus.CounterVec

	// Decisions aborted on corrupted input
	SchemaViolations prometheus.Counter

	// Best-effort sink failures by sink
	SinkFailures *prometheus.CounterVec

	// Overall evaluation latency
	EvaluateLatency prometheus.Histogram
}

// New creates a Metrics instance registered with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a Metrics instance registered with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docrisk_decision_outcomes_total",
			Help: "Total decisions by label",
		}, []string{"label"}),

		Score: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docrisk_decision_score",
			Help:    "Distribution of final decision scores",
			Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),

		RuleFirings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docrisk_rule_firings_total",
			Help: "Total scored rule firings by rule id and severity",
		}, []string{"rule_id", "severity"}),

		SuppressedFirings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docrisk_rule_suppressed_total",
			Help: "Total suppressed rule firings by reason",
		}, []string{"reason"}),

		SchemaViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "docrisk_decision_schema_violations_total",
			Help: "Total decisions aborted by a schema violation",
		}),

		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docrisk_decision_sink_failures_total",
			Help: "Total failed deliveries to audit and telemetry sinks",
		}, []string{"sink"}),

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docrisk_decision_evaluate_duration_seconds",
			Help:    "Duration of a full decision evaluation",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// IncrementOutcome records a decision label and its score.
func (m *Metrics) IncrementOutcome(label string, score float64) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(label).Inc()
		m.Score.Observe(score)
	}
}

// IncrementFiring records one scored rule firing.
func (m *Metrics) IncrementFiring(ruleID, severity string) {
	if m != nil {
		m.RuleFirings.WithLabelValues(ruleID, severity).Inc()
	}
}

// IncrementSuppressed records one suppressed firing.
func (m *Metrics) IncrementSuppressed(reason string) {
	if m != nil {
		m.SuppressedFirings.WithLabelValues(reason).Inc()
	}
}

// IncrementSchemaViolation records an aborted decision.
func (m *Metrics) IncrementSchemaViolation() {
	if m != nil {
		m.SchemaViolations.Inc()
	}
}

// IncrementSinkFailure records a failed sink delivery.
func (m *Metrics) IncrementSinkFailure(sink string) {
	if m != nil {
		m.SinkFailures.WithLabelValues(sink).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
