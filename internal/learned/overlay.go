package learned

import (
	"fmt"
	"math"
	"strings"

	"docrisk/internal/policy"
	"docrisk/internal/rules"
	"docrisk/internal/signals"
)

// Request is one decision's view for the overlay.
type Request struct {
	Signals signals.View
	Profile signals.Profile
	Policy  policy.Thresholds
	// BaseScore is the built-in rule score; the overlay never drives the
	// combined score below zero.
	BaseScore float64
	// Factor is the decision's confidence factor.
	Factor float64
	// Corroborated is true when an external verdict backs the document
	// being suspect, allowing a single matched signal to count.
	Corroborated bool
}

// Result is the overlay's contribution to one decision.
type Result struct {
	Delta           float64
	Events          []rules.Event
	SnapshotVersion int64
}

// Overlay applies the store's current snapshot to decisions.
type Overlay struct {
	store *Store
}

// NewOverlay creates an overlay reading from store.
func NewOverlay(store *Store) *Overlay {
	return &Overlay{store: store}
}

// Apply matches every enabled rule of one snapshot against the request. The
// snapshot is loaded once so a concurrent swap is never observed mid-decision.
func (o *Overlay) Apply(req Request) Result {
	snap := o.store.Current()
	res := Result{SnapshotVersion: snap.Version}

	lowQuality := req.Policy.LowQuality(req.Profile.Confidence)
	var running float64
	for _, r := range snap.Rules {
		if !r.Enabled {
			continue
		}
		matched := matchedSignals(req.Signals, r.Pattern)
		if len(matched) == 0 || len(matched) < r.Pattern.required() {
			continue
		}

		evidence := rules.NewEvidence(nil).
			Set("snapshot_version", snap.Version).
			Set("matched_signals", strings.Join(matched, ",")).
			Set("matched_count", len(matched)).
			Set("feedback_count", r.FeedbackCount).
			Set("accuracy_estimate", r.AccuracyEstimate).
			Set("action", string(r.Action))
		raw := math.Min(math.Abs(r.ConfidenceAdjustment), req.Policy.LearnedMaxAdjustment)
		ev := rules.Event{
			RuleID:           "learned." + r.RuleID,
			Source:           rules.SourceLearned,
			Severity:         rules.SeverityInfo,
			RawWeight:        raw,
			ConfidenceFactor: req.Factor,
		}

		switch {
		case len(matched) < 2 && !req.Corroborated:
			ev.Message = fmt.Sprintf("learned rule %s rejected: matched a single signal without corroboration", r.RuleID)
			ev.Evidence = evidence.Build()
			res.Events = append(res.Events, ev.Suppress(rules.SuppressedRejected))
			continue
		case r.AccuracyEstimate < req.Policy.LearnedMinAccuracy || r.FeedbackCount < req.Policy.LearnedMinFeedback:
			ev.Message = fmt.Sprintf("learned rule %s not applied: accuracy %.2f over %d reviews is below the floor",
				r.RuleID, r.AccuracyEstimate, r.FeedbackCount)
			ev.Evidence = evidence.Build()
			res.Events = append(res.Events, ev.Suppress(rules.SuppressedRejected))
			continue
		case lowQuality && r.Pattern.Class == ClassMissingField:
			ev.Message = fmt.Sprintf("learned rule %s suppressed: missing-field checks are gated at profile confidence %.2f",
				r.RuleID, req.Profile.Confidence)
			ev.Evidence = evidence.Build()
			res.Events = append(res.Events, ev.Suppress(rules.SuppressedQualityGate))
			continue
		}

		if r.Action == ActionAddCheck {
			ev.RawWeight = 0
			ev.Message = fmt.Sprintf("recommended check: %s (%s)", r.RuleID, strings.Join(matched, ", "))
			ev.Evidence = evidence.Build()
			res.Events = append(res.Events, ev)
			continue
		}

		applied := raw * req.Factor
		if lowQuality {
			applied = math.Min(applied*req.Policy.LearnedDampening, req.Policy.LearnedClamp)
			evidence.Set("dampened", true)
		}

		sign := 1.0
		if r.Action == ActionDecreaseWeight {
			sign = -1
		}
		capped := capContribution(running, sign*applied, req.Policy.LearnedMaxTotal, req.BaseScore)
		if capped != sign*applied {
			evidence.Set("capped", true)
		}
		running += capped

		ev.AppliedWeight = math.Abs(capped)
		ev.Evidence = evidence.Build()
		if r.Action == ActionDecreaseWeight {
			ev.Mitigating = true
			ev.Message = fmt.Sprintf("learned rule %s lowers risk for %s", r.RuleID, strings.Join(matched, " + "))
		} else {
			ev.Severity = rules.SeverityWarning
			ev.Message = fmt.Sprintf("learned rule %s raises risk for %s", r.RuleID, strings.Join(matched, " + "))
		}
		res.Events = append(res.Events, ev)
	}
	res.Delta = running
	return res
}

// capContribution limits one signed contribution so the running total stays
// within ±maxTotal and never exceeds base in the negative direction.
func capContribution(running, contribution, maxTotal, base float64) float64 {
	floor := math.Max(-maxTotal, -base)
	next := running + contribution
	if next >= floor && next <= maxTotal {
		return contribution
	}
	out := math.Max(floor, math.Min(maxTotal, next)) - running
	// never flip direction
	if contribution >= 0 {
		return math.Max(0, out)
	}
	return math.Min(0, out)
}

func matchedSignals(view signals.View, p Pattern) []string {
	var matched []string
	for _, name := range p.Signals {
		if view.Get(name).Triggered() {
			matched = append(matched, name)
		}
	}
	return matched
}
