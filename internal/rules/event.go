package rules

import (
	"encoding/json"
	"maps"
	"math"
	"slices"

	dErrors "docrisk/pkg/domain-errors"
)

// Severity is the display and policy tier of a rule event.
type Severity string

const (
	SeverityHardFail Severity = "HARD_FAIL"
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

var severityOrder = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
	SeverityHardFail: 3,
}

// Rank orders severities; unknown severities rank below INFO.
func (s Severity) Rank() int {
	if r, ok := severityOrder[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityOrder[s]
	return ok
}

// Source names the producer of an event.
type Source string

const (
	SourceRules   Source = "rules"
	SourceLearned Source = "learned"
)

// Suppression reasons.
const (
	SuppressedDuplicate   = "duplicate"
	SuppressedGated       = "gated"
	SuppressedQualityGate = "quality_gate"
	SuppressedRejected    = "rejected"
)

// Event is one weighted firing of a rule.
//
// AppliedWeight equals RawWeight for HARD_FAIL and RawWeight*ConfidenceFactor
// otherwise (learned events may be dampened and clamped further, never raised).
type Event struct {
	RuleID            string   `json:"rule_id"`
	Source            Source   `json:"source"`
	Severity          Severity `json:"severity"`
	RawWeight         float64  `json:"raw_weight"`
	AppliedWeight     float64  `json:"applied_weight"`
	ConfidenceFactor  float64  `json:"confidence_factor"`
	Message           string   `json:"message"`
	Evidence          Evidence `json:"evidence"`
	Suppressed        bool     `json:"suppressed"`
	SuppressionReason string   `json:"suppression_reason,omitempty"`
	// Mitigating events lower the score (learned decrease_weight).
	Mitigating bool `json:"mitigating,omitempty"`
}

// Contribution is the signed score contribution of the event.
func (e Event) Contribution() float64 {
	if e.Suppressed {
		return 0
	}
	if e.Mitigating {
		return -e.AppliedWeight
	}
	return e.AppliedWeight
}

// Suppress returns a copy of e marked suppressed.
func (e Event) Suppress(reason string) Event {
	e.Suppressed = true
	e.SuppressionReason = reason
	return e
}

const weightEpsilon = 1e-9

// Validate rejects malformed events with a schema violation.
func (e Event) Validate() error {
	if e.RuleID == "" {
		return dErrors.New(dErrors.CodeSchemaViolation, "rule event without rule_id")
	}
	if !e.Severity.Valid() {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "rule event %q has unknown severity %q", e.RuleID, e.Severity)
	}
	for _, w := range []float64{e.RawWeight, e.AppliedWeight, e.ConfidenceFactor} {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return dErrors.Newf(dErrors.CodeSchemaViolation, "rule event %q has invalid weight or factor %v", e.RuleID, w)
		}
	}
	if e.ConfidenceFactor < 0.6-weightEpsilon || e.ConfidenceFactor > 1+weightEpsilon {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "rule event %q confidence factor %v outside [0.6,1]", e.RuleID, e.ConfidenceFactor)
	}
	if e.Severity == SeverityHardFail {
		if math.Abs(e.AppliedWeight-e.RawWeight) > weightEpsilon {
			return dErrors.Newf(dErrors.CodeSchemaViolation, "hard-fail event %q must not be dampened", e.RuleID)
		}
		return nil
	}
	if e.AppliedWeight > e.RawWeight*e.ConfidenceFactor+weightEpsilon {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "rule event %q applied weight %v exceeds dampened raw weight %v", e.RuleID, e.AppliedWeight, e.RawWeight*e.ConfidenceFactor)
	}
	return nil
}

// Evidence is an immutable view over an event's evidence map.
type Evidence struct {
	values map[string]any
}

// Get returns one evidence value.
func (e Evidence) Get(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Len returns the number of evidence entries.
func (e Evidence) Len() int { return len(e.values) }

// Keys returns the evidence keys in sorted order.
func (e Evidence) Keys() []string {
	return slices.Sorted(maps.Keys(e.values))
}

// Map returns a copy of the evidence map.
func (e Evidence) Map() map[string]any {
	return maps.Clone(e.values)
}

// MarshalJSON encodes the evidence as a plain object (encoding/json sorts keys).
func (e Evidence) MarshalJSON() ([]byte, error) {
	if e.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.values)
}

// UnmarshalJSON decodes a plain object into the evidence.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	e.values = m
	return nil
}

// EvidenceBuilder accumulates evidence for one event. It copies caller input
// on construction and again on Build, so no map is shared across rules.
type EvidenceBuilder struct {
	values map[string]any
}

// NewEvidence starts a builder from a copy of src (which may be nil).
func NewEvidence(src map[string]any) *EvidenceBuilder {
	values := make(map[string]any, len(src)+4)
	maps.Copy(values, src)
	return &EvidenceBuilder{values: values}
}

// Set records one value.
func (b *EvidenceBuilder) Set(key string, value any) *EvidenceBuilder {
	b.values[key] = value
	return b
}

// Build freezes the builder's current contents.
func (b *EvidenceBuilder) Build() Evidence {
	return Evidence{values: maps.Clone(b.values)}
}

// TraceEntry is the lightweight per-event record forwarded to logs and telemetry.
type TraceEntry struct {
	RuleID        string   `json:"rule_id"`
	Severity      Severity `json:"severity"`
	AppliedWeight float64  `json:"applied_weight"`
	Suppressed    bool     `json:"suppressed,omitempty"`
}

// Trace lists events in evaluation order.
func Trace(events []Event) []TraceEntry {
	out := make([]TraceEntry, 0, len(events))
	for _, ev := range events {
		out = append(out, TraceEntry{
			RuleID:        ev.RuleID,
			Severity:      ev.Severity,
			AppliedWeight: ev.AppliedWeight,
			Suppressed:    ev.Suppressed,
		})
	}
	return out
}
