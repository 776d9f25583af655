package rules

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"docrisk/internal/policy"
	"docrisk/internal/signals"
	dErrors "docrisk/pkg/domain-errors"
)

// Input is everything a rule may read. It is shared read-only across rules.
type Input struct {
	Signals signals.View
	Profile signals.Profile
	Policy  policy.Thresholds
	// Factor is the decision's confidence factor in [0.60, 1.00].
	Factor float64
}

// Rule is a pure function from signals to weighted events. It may abstain by
// returning nothing and must not retain or mutate its input.
type Rule interface {
	// Name identifies the rule family in logs.
	Name() string
	// Reads lists every signal the rule consults; all must be registered.
	Reads() []string
	Evaluate(in Input) []Event
}

// DefaultRules is the fixed, ordered rule library.
func DefaultRules() []Rule {
	return []Rule{
		knownTemplateRule{},
		tamperRule{},
		arithmeticRule{id: "amount.total_consistency", signal: signals.TotalMismatch, weights: totalWeights, subject: "printed total"},
		arithmeticRule{id: "amount.tax_consistency", signal: signals.TaxMismatch, weights: taxWeights, subject: "printed tax"},
		docTypeRule{},
		dateGapRule{},
		futureDateRule{},
		jurisdictionRule{},
		missingFieldsRule{},
		simpleWarningRule{id: "llm.semantic_consistency", signal: signals.SemanticInconsistency, weights: semanticWeights, message: "field semantics contradict each other"},
		simpleWarningRule{id: "merchant.verification", signal: signals.MerchantUnverifiable, weights: merchantWeights, message: "merchant could not be verified"},
	}
}

// Evaluator runs an ordered rule list against one decision's input.
type Evaluator struct {
	rules    []Rule
	parallel bool
	logger   *slog.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for suppressed duplicates.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithParallel evaluates rules concurrently. Output order is identical to the
// sequential schedule.
func WithParallel(parallel bool) Option {
	return func(e *Evaluator) {
		e.parallel = parallel
	}
}

// NewEvaluator validates every rule's read set against the registry, failing
// fast on a rule that would read an unregistered signal.
func NewEvaluator(reg *signals.Registry, ruleList []Rule, opts ...Option) (*Evaluator, error) {
	if reg == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signal registry is required")
	}
	if len(ruleList) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one rule is required")
	}
	for _, r := range ruleList {
		for _, name := range r.Reads() {
			if err := reg.ValidateEmission(name); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeSchemaViolation, "rule "+r.Name()+" reads an unregistered signal")
			}
		}
	}
	e := &Evaluator{rules: append([]Rule(nil), ruleList...)}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rules returns the evaluation order.
func (e *Evaluator) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs every rule, validates each event and suppresses re-fired rule ids.
// Only a schema violation is returned as an error.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) ([]Event, error) {
	results := make([][]Event, len(e.rules))

	if e.parallel {
		var g errgroup.Group
		for i, r := range e.rules {
			g.Go(func() error {
				results[i] = r.Evaluate(in)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, r := range e.rules {
			results[i] = r.Evaluate(in)
		}
	}

	var events []Event
	for _, batch := range results {
		for _, ev := range batch {
			if err := ev.Validate(); err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}

	events, dups := Dedupe(events)
	for _, id := range dups {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "rule fired more than once; later firing suppressed", "rule_id", id)
		}
	}
	return events, nil
}

// Dedupe keeps the first firing of each rule_id and marks later ones
// suppressed. It returns the events and the ids that re-fired.
func Dedupe(events []Event) ([]Event, []string) {
	seen := make(map[string]struct{}, len(events))
	out := make([]Event, 0, len(events))
	var dups []string
	for _, ev := range events {
		if _, ok := seen[ev.RuleID]; ok {
			if !ev.Suppressed || ev.SuppressionReason != SuppressedDuplicate {
				dups = append(dups, ev.RuleID)
			}
			out = append(out, ev.Suppress(SuppressedDuplicate))
			continue
		}
		seen[ev.RuleID] = struct{}{}
		out = append(out, ev)
	}
	return out, dups
}
