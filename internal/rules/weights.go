package rules

import (
	"fmt"

	"docrisk/internal/signals"
)

// Weights is one rule's severity→raw-weight table. Every gating, downgrade,
// softening and tolerance decision is expressed as a move within this table.
type Weights struct {
	HardFail  float64
	Escalated float64 // near-maximal CRITICAL for strong evidence
	Critical  float64
	Warning   float64 // tolerated or downgraded
}

// Rule weight tables, one per rule family.
var (
	templateWeights     = Weights{HardFail: 1.0}
	tamperWeights       = Weights{Critical: 0.60, Warning: 0.15}
	totalWeights        = Weights{Escalated: 0.50, Critical: 0.30, Warning: 0.15}
	taxWeights          = Weights{Escalated: 0.35, Critical: 0.20, Warning: 0.10}
	docTypeWeights      = Weights{Critical: 0.15}
	dateGapWeights      = Weights{Critical: 0.20}
	futureDateWeights   = Weights{Critical: 0.25}
	jurisdictionWeights = Weights{Critical: 0.20, Warning: 0.10}
	semanticWeights     = Weights{Warning: 0.12}
	merchantWeights     = Weights{Warning: 0.05}

	missingFieldWeights = map[string]float64{
		signals.MissingTotal:    0.10,
		signals.MissingDate:     0.08,
		signals.MissingMerchant: 0.06,
		signals.MissingTaxID:    0.05,
	}
)

// grade is a (severity, raw weight) pair moving through the policy steps.
type grade struct {
	severity Severity
	weight   float64
}

// downgrade moves a CRITICAL to WARNING at half weight. Other severities are unchanged.
func (g grade) downgrade() grade {
	if g.severity != SeverityCritical {
		return g
	}
	return grade{severity: SeverityWarning, weight: g.weight / 2}
}

// soften halves the weight and downgrades CRITICAL to WARNING.
func (g grade) soften() grade {
	if g.severity == SeverityCritical {
		return g.downgrade()
	}
	if g.severity == SeverityHardFail {
		return g
	}
	return grade{severity: g.severity, weight: g.weight / 2}
}

// emit builds the event for a final grade. HARD_FAIL weight is never
// dampened; everything else is multiplied by the confidence factor.
func emit(ruleID string, g grade, factor float64, message string, evidence *EvidenceBuilder) Event {
	applied := g.weight
	if g.severity != SeverityHardFail {
		applied = g.weight * factor
	}
	return Event{
		RuleID:           ruleID,
		Source:           SourceRules,
		Severity:         g.severity,
		RawWeight:        g.weight,
		AppliedWeight:    applied,
		ConfidenceFactor: factor,
		Message:          message,
		Evidence:         evidence.Build(),
	}
}

// info builds a zero-weight, suppressed INFO event explaining why a rule did not score.
func info(ruleID, reason string, factor float64, message string, evidence *EvidenceBuilder) Event {
	ev := emit(ruleID, grade{severity: SeverityInfo}, factor, message, evidence)
	return ev.Suppress(reason)
}

// gated builds the INFO event for a GATED signal.
func gated(ruleID string, sig signals.Signal, factor float64) Event {
	evidence := NewEvidence(nil).
		Set("signal", sig.Name).
		Set("gating_reason", sig.GatingReason)
	msg := fmt.Sprintf("%s not scored: signal gated (%s)", ruleID, sig.GatingReason)
	return info(ruleID, SuppressedGated, factor, msg, evidence)
}

// signalEvidence seeds an evidence builder from a triggering signal.
func signalEvidence(sig signals.Signal) *EvidenceBuilder {
	return NewEvidence(sig.Evidence).
		Set("signal", sig.Name).
		Set("signal_confidence", sig.Confidence)
}
