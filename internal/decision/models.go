// Package decision turns a validated signal bag into a finalized fraud-risk
// verdict: rule evaluation, the learned overlay, score aggregation, label
// mapping and the audit trail, in that order.
package decision

import (
	"context"
	"fmt"

	"docrisk/internal/audit"
	"docrisk/internal/confidence"
	"docrisk/internal/rules"
	"docrisk/internal/signals"
	"docrisk/pkg/platform/sentinel"
)

// Label is the verdict of a decision.
type Label string

const (
	LabelReal       Label = "real"
	LabelSuspicious Label = "suspicious"
	LabelFake       Label = "fake"
)

func (l Label) rank() int {
	switch l {
	case LabelFake:
		return 2
	case LabelSuspicious:
		return 1
	default:
		return 0
	}
}

// Veto is an external tamper verdict. It may only push a label toward fake.
type Veto string

const (
	VetoNone       Veto = ""
	VetoClean      Veto = "clean"
	VetoSuspicious Veto = "suspicious"
	VetoTampered   Veto = "tampered"
)

// Valid reports whether v is a known veto (including none).
func (v Veto) Valid() bool {
	switch v {
	case VetoNone, VetoClean, VetoSuspicious, VetoTampered:
		return true
	}
	return false
}

// Corroborates reports whether the veto backs the document being suspect.
func (v Veto) Corroborates() bool {
	return v == VetoSuspicious || v == VetoTampered
}

// Input is everything one decision reads. Callers resolve external lookups
// into these plain values beforehand.
type Input struct {
	Bag signals.Bag `json:"signals"`
	// Profile is nil when classification failed; the default low-confidence
	// profile is used instead.
	Profile    *signals.Profile      `json:"profile,omitempty"`
	Extraction confidence.Extraction `json:"extraction"`
	Veto       Veto                  `json:"veto,omitempty"`
}

// Decision is the verdict with its full audit trail. It is a draft until
// Finalize; afterwards it is frozen.
type Decision struct {
	ID               string        `json:"id"`
	Label            Label         `json:"label"`
	Score            float64       `json:"score"`
	Reasons          []string      `json:"reasons"`
	AuditEvents      []audit.Event `json:"audit_events"`
	Finalized        bool          `json:"finalized"`
	ConfidenceFactor float64       `json:"confidence_factor"`
	SnapshotVersion  int64         `json:"learned_snapshot_version"`

	events []rules.Event
	trail  *audit.Trail
}

func newDraft(id string) *Decision {
	return &Decision{ID: id, Label: LabelReal, trail: audit.NewTrail()}
}

func (d *Decision) record(events ...rules.Event) error {
	if d.Finalized {
		return fmt.Errorf("record rule events on decision %s: %w", d.ID, sentinel.ErrAlreadyFinalized)
	}
	if err := d.trail.AppendRuleEvents(events...); err != nil {
		return err
	}
	d.events = append(d.events, events...)
	return nil
}

func (d *Decision) recordVeto(veto Veto) error {
	sev := rules.SeverityCritical
	if veto == VetoTampered {
		sev = rules.SeverityHardFail
	}
	return d.trail.Append(audit.Event{
		Source:   audit.SourceVeto,
		Type:     audit.TypeVetoApplied,
		Severity: sev,
		Code:     "veto." + string(veto),
		Message:  "external tamper check reported the document as " + string(veto),
		Evidence: map[string]any{"veto": string(veto)},
	}, 0)
}

func (d *Decision) setVerdict(label Label, score float64) error {
	if d.Finalized {
		return fmt.Errorf("set verdict on decision %s: %w", d.ID, sentinel.ErrAlreadyFinalized)
	}
	d.Label = label
	d.Score = score
	return nil
}

// Finalize freezes the decision: audit events get their ids and timestamp and
// the reasons list is derived. Calling it again returns the same events.
func (d *Decision) Finalize(ctx context.Context) {
	if d.trail == nil {
		d.Finalized = true
		return
	}
	d.AuditEvents = d.trail.Finalize(ctx)
	if !d.Finalized {
		d.Reasons = d.trail.Reasons()
		d.Finalized = true
	}
}

// Trace lists (rule_id, severity, applied_weight) for every event in evaluation order.
func (d *Decision) Trace() []rules.TraceEntry {
	return rules.Trace(d.events)
}
