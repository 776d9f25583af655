// Package learned applies feedback-trained rule adjustments on top of the
// built-in rule library, under stricter evidentiary and weight caps.
//
// Rules are produced offline and consumed read-only through an immutable
// Snapshot that is swapped atomically, so concurrent decisions never observe a
// half-updated rule set.
package learned

import (
	"math"
	"slices"
	"time"

	"docrisk/internal/signals"
	dErrors "docrisk/pkg/domain-errors"
)

// Action is what a learned rule does when it matches.
type Action string

const (
	ActionIncreaseWeight Action = "increase_weight"
	ActionDecreaseWeight Action = "decrease_weight"
	ActionAddCheck       Action = "add_check"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionIncreaseWeight, ActionDecreaseWeight, ActionAddCheck:
		return true
	}
	return false
}

// ClassMissingField is the pattern class switched off together with the
// missing-field rule category by the quality gate.
const ClassMissingField = "missing_field"

// Pattern selects the documents a learned rule applies to.
type Pattern struct {
	// Signals that must be TRIGGERED.
	Signals []string `json:"signals" yaml:"signals"`
	// MinMatch is how many of Signals must trigger; zero means all of them.
	MinMatch int `json:"min_match,omitempty" yaml:"min_match,omitempty"`
	// Class groups patterns for gating (e.g. "missing_field", "amount").
	Class string `json:"class,omitempty" yaml:"class,omitempty"`
}

func (p Pattern) required() int {
	if p.MinMatch <= 0 || p.MinMatch > len(p.Signals) {
		return len(p.Signals)
	}
	return p.MinMatch
}

// Rule is one feedback-trained adjustment.
type Rule struct {
	RuleID               string  `json:"rule_id" yaml:"rule_id"`
	Pattern              Pattern `json:"pattern" yaml:"pattern"`
	Action               Action  `json:"action" yaml:"action"`
	ConfidenceAdjustment float64 `json:"confidence_adjustment" yaml:"confidence_adjustment"`
	FeedbackCount        int     `json:"feedback_count" yaml:"feedback_count"`
	AccuracyEstimate     float64 `json:"accuracy_estimate" yaml:"accuracy_estimate"`
	Enabled              bool    `json:"enabled" yaml:"enabled"`
}

func (r Rule) clone() Rule {
	r.Pattern.Signals = slices.Clone(r.Pattern.Signals)
	return r
}

// Validate checks one rule against the contract and the signal registry.
func (r Rule) Validate(reg *signals.Registry) error {
	if r.RuleID == "" {
		return dErrors.New(dErrors.CodeSchemaViolation, "learned rule without rule_id")
	}
	if !r.Action.Valid() {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "learned rule %q has unknown action %q", r.RuleID, r.Action)
	}
	if math.IsNaN(r.ConfidenceAdjustment) || math.IsInf(r.ConfidenceAdjustment, 0) {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "learned rule %q has non-finite adjustment", r.RuleID)
	}
	if math.IsNaN(r.AccuracyEstimate) || r.AccuracyEstimate < 0 || r.AccuracyEstimate > 1 {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "learned rule %q accuracy %v outside [0,1]", r.RuleID, r.AccuracyEstimate)
	}
	if r.FeedbackCount < 0 {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "learned rule %q has negative feedback count", r.RuleID)
	}
	if len(r.Pattern.Signals) == 0 {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "learned rule %q has an empty pattern", r.RuleID)
	}
	if reg != nil {
		for _, name := range r.Pattern.Signals {
			if err := reg.ValidateEmission(name); err != nil {
				return dErrors.Wrap(err, dErrors.CodeSchemaViolation, "learned rule "+r.RuleID)
			}
		}
	}
	return nil
}

// Snapshot is an immutable, versioned set of learned rules ordered by RuleID.
type Snapshot struct {
	Version     int64     `json:"version" yaml:"version"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
	Rules       []Rule    `json:"rules" yaml:"rules"`
}

// Len returns the number of rules in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}
