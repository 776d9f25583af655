package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docrisk/internal/confidence"
	"docrisk/internal/decision/metrics"
	"docrisk/internal/decision/ports"
	"docrisk/internal/learned"
	"docrisk/internal/policy"
	"docrisk/internal/rules"
	"docrisk/internal/signals"
	dErrors "docrisk/pkg/domain-errors"
	"docrisk/pkg/requestcontext"
)

// TracerName is the OpenTelemetry instrumentation name of the engine.
const TracerName = "docrisk/decision"

// Engine runs the decision pipeline. It holds no per-decision state and is
// safe for concurrent use.
type Engine struct {
	registry  *signals.Registry
	evaluator *rules.Evaluator
	overlay   *learned.Overlay
	scaler    confidence.Scaler
	policy    policy.Thresholds
	mapper    Mapper

	ruleList      []rules.Rule
	parallelRules bool

	auditSink  ports.AuditSink
	telemetry  ports.TelemetrySink
	outbox     *outbox
	outboxSize int

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithOverlay enables learned-rule adjustments.
func WithOverlay(o *learned.Overlay) Option {
	return func(e *Engine) {
		e.overlay = o
	}
}

// WithAuditSink forwards every finalized trail to sink.
func WithAuditSink(sink ports.AuditSink) Option {
	return func(e *Engine) {
		e.auditSink = sink
	}
}

// WithTelemetrySink forwards every decision trace to sink.
func WithTelemetrySink(sink ports.TelemetrySink) Option {
	return func(e *Engine) {
		e.telemetry = sink
	}
}

// WithOutboxSize bounds how many finalized decisions may wait for slow sinks
// before new deliveries are dropped.
func WithOutboxSize(n int) Option {
	return func(e *Engine) {
		e.outboxSize = n
	}
}

// WithRules replaces the default rule library.
func WithRules(rs []rules.Rule) Option {
	return func(e *Engine) {
		e.ruleList = rs
	}
}

// WithParallelRules evaluates rules concurrently within a decision.
func WithParallelRules(parallel bool) Option {
	return func(e *Engine) {
		e.parallelRules = parallel
	}
}

// NewEngine validates the thresholds and the rule library against the registry.
func NewEngine(reg *signals.Registry, thresholds policy.Thresholds, opts ...Option) (*Engine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "decision thresholds")
	}
	e := &Engine{
		registry: reg,
		policy:   thresholds,
		mapper:   NewMapper(thresholds),
		ruleList: rules.DefaultRules(),
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	ev, err := rules.NewEvaluator(reg, e.ruleList,
		rules.WithLogger(e.logger),
		rules.WithParallel(e.parallelRules),
	)
	if err != nil {
		return nil, err
	}
	e.evaluator = ev
	if e.auditSink != nil || e.telemetry != nil {
		e.outbox = newOutbox(e.outboxSize, e.deliver)
	}
	return e, nil
}

// Close stops sink delivery after flushing every queued decision. Decide
// keeps working afterwards but no longer reaches the sinks.
func (e *Engine) Close() {
	if e.outbox != nil {
		e.outbox.close()
	}
}

// Decide produces a finalized decision. Only a schema violation (unregistered
// or malformed signal, malformed rule event, unknown veto, malformed
// confidence input) is returned as an error; every other anomaly is recorded
// in the audit trail. Sinks receive the decision asynchronously.
func (e *Engine) Decide(ctx context.Context, in Input) (*Decision, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "decision.Decide")
	defer span.End()

	d, err := e.decide(ctx, in)
	if err != nil {
		e.metrics.IncrementSchemaViolation()
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema violation")
		e.logger.ErrorContext(ctx, "decision aborted",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("decision.id", d.ID),
		attribute.String("decision.label", string(d.Label)),
		attribute.Float64("decision.score", d.Score),
		attribute.Int("decision.events", len(d.AuditEvents)),
		attribute.Int64("decision.learned_snapshot", d.SnapshotVersion),
	)
	e.metrics.IncrementOutcome(string(d.Label), d.Score)
	e.metrics.ObserveEvaluateLatency(time.Since(start))
	e.logger.DebugContext(ctx, "decision made",
		"request_id", requestcontext.RequestID(ctx),
		"decision_id", d.ID,
		"label", d.Label,
		"score", d.Score,
		"events", len(d.events),
		"confidence_factor", d.ConfidenceFactor,
	)

	e.publish(ctx, d)
	return d, nil
}

func (e *Engine) decide(ctx context.Context, in Input) (*Decision, error) {
	if !in.Veto.Valid() {
		return nil, dErrors.Newf(dErrors.CodeSchemaViolation, "unknown tamper veto %q", in.Veto)
	}
	if err := e.registry.ValidateBag(in.Bag); err != nil {
		return nil, err
	}

	if err := in.Extraction.Validate(); err != nil {
		return nil, err
	}

	profile := signals.DefaultProfile()
	if in.Profile != nil {
		if err := in.Profile.Validate(); err != nil {
			return nil, err
		}
		profile = *in.Profile
	}
	factor := e.scaler.FactorFor(in.Extraction)
	view := e.registry.View(in.Bag)

	events, err := e.evaluator.Evaluate(ctx, rules.Input{
		Signals: view,
		Profile: profile,
		Policy:  e.policy,
		Factor:  factor,
	})
	if err != nil {
		return nil, err
	}

	d := newDraft(uuid.NewString())
	d.ConfidenceFactor = factor

	if e.overlay != nil {
		base := AggregateEvents(events)
		res := e.overlay.Apply(learned.Request{
			Signals:      view,
			Profile:      profile,
			Policy:       e.policy,
			BaseScore:    base.Score,
			Factor:       factor,
			Corroborated: in.Veto.Corroborates(),
		})
		for _, ev := range res.Events {
			if err := ev.Validate(); err != nil {
				return nil, err
			}
		}
		events, _ = rules.Dedupe(append(events, res.Events...))
		d.SnapshotVersion = res.SnapshotVersion
	}

	if err := d.record(events...); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record events")
	}
	for _, ev := range events {
		if ev.Suppressed {
			e.metrics.IncrementSuppressed(ev.SuppressionReason)
		} else {
			e.metrics.IncrementFiring(ev.RuleID, string(ev.Severity))
		}
	}

	agg := AggregateEvents(events)
	if in.Veto.Corroborates() {
		if err := d.recordVeto(in.Veto); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record veto")
		}
	}
	if err := d.setVerdict(e.mapper.Map(agg, in.Veto), agg.Score); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "set verdict")
	}

	d.Finalize(ctx)
	return d, nil
}

// publish queues the finalized decision for the sinks without waiting on them.
func (e *Engine) publish(ctx context.Context, d *Decision) {
	if e.outbox == nil {
		return
	}
	rec := ports.TraceRecord{
		DecisionID:      d.ID,
		RequestID:       requestcontext.RequestID(ctx),
		Label:           string(d.Label),
		Score:           d.Score,
		SnapshotVersion: d.SnapshotVersion,
		EvaluatedAt:     requestcontext.Now(ctx).UTC(),
		Entries:         d.Trace(),
	}
	if !e.outbox.enqueue(newDelivery(ctx, d, rec)) {
		e.metrics.IncrementSinkFailure("outbox")
		e.logger.WarnContext(ctx, "sink outbox full, decision not delivered",
			"decision_id", d.ID,
		)
	}
}

// deliver runs on the outbox goroutine. Failures are logged and counted; they
// never change the verdict.
func (e *Engine) deliver(d delivery) {
	if e.auditSink != nil {
		if err := e.auditSink.Record(d.ctx, d.id, d.events); err != nil {
			e.metrics.IncrementSinkFailure("audit")
			e.logger.WarnContext(d.ctx, "audit sink failed",
				"decision_id", d.id,
				"error", err,
			)
		}
	}
	if e.telemetry != nil {
		if err := e.telemetry.Publish(d.ctx, d.trace); err != nil {
			e.metrics.IncrementSinkFailure("telemetry")
			e.logger.WarnContext(d.ctx, "telemetry sink failed",
				"decision_id", d.id,
				"error", err,
			)
		}
	}
}
