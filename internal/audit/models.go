// Package audit turns every rule firing of a decision, suppressed or not,
// into an append-only audit event and derives the human-readable reasons.
package audit

import (
	"maps"
	"time"

	"docrisk/internal/rules"
)

// Type classifies audit events.
type Type string

const (
	TypeRuleFired      Type = "rule_fired"
	TypeRuleSuppressed Type = "rule_suppressed"
	TypeVetoApplied    Type = "veto_applied"
)

// SourceVeto marks events produced by an external tamper veto.
const SourceVeto = "veto"

// Event is one immutable audit record. EventID and Timestamp are assigned
// once, when the owning trail is finalized.
type Event struct {
	EventID    string         `json:"event_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"source"`
	Type       Type           `json:"type"`
	Severity   rules.Severity `json:"severity"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Evidence   map[string]any `json:"evidence"`
	Suppressed bool           `json:"suppressed"`
}

func (e Event) clone() Event {
	e.Evidence = maps.Clone(e.Evidence)
	return e
}

// FromRuleEvent converts a rule event, carrying its weights and suppression
// reason into the evidence.
func FromRuleEvent(ev rules.Event) Event {
	evidence := ev.Evidence.Map()
	if evidence == nil {
		evidence = make(map[string]any, 5)
	}
	evidence["raw_weight"] = ev.RawWeight
	evidence["applied_weight"] = ev.AppliedWeight
	evidence["confidence_factor"] = ev.ConfidenceFactor
	if ev.Mitigating {
		evidence["mitigating"] = true
	}
	typ := TypeRuleFired
	if ev.Suppressed {
		typ = TypeRuleSuppressed
		evidence["suppression_reason"] = ev.SuppressionReason
	}
	return Event{
		Source:     string(ev.Source),
		Type:       typ,
		Severity:   ev.Severity,
		Code:       ev.RuleID,
		Message:    ev.Message,
		Evidence:   evidence,
		Suppressed: ev.Suppressed,
	}
}
