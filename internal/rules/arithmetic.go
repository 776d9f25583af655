package rules

import (
	"fmt"

	"docrisk/internal/signals"
)

// arithmeticRule scores an arithmetic-consistency signal through tolerance bands:
//  1. mismatch above the escalation ratio with high signal confidence → near-maximal CRITICAL
//  2. mismatch within tolerance with low signal confidence → WARNING
//  3. anything else → CRITICAL at base weight
type arithmeticRule struct {
	id      string
	signal  string
	weights Weights
	subject string
}

func (r arithmeticRule) Name() string { return r.id }

func (r arithmeticRule) Reads() []string { return []string{r.signal} }

func (r arithmeticRule) Evaluate(in Input) []Event {
	sig := in.Signals.Get(r.signal)
	switch sig.Status {
	case signals.StatusGated:
		return []Event{gated(r.id, sig, in.Factor)}
	case signals.StatusTriggered:
	default:
		return nil
	}

	evidence := signalEvidence(sig)
	ratio, known := sig.Float("mismatch_ratio")
	p := in.Policy

	g := grade{severity: SeverityCritical, weight: r.weights.Critical}
	band := "base"
	switch {
	case known && ratio > p.EscalationRatio && sig.Confidence >= p.HighSignalConfidence:
		g.weight = r.weights.Escalated
		band = "escalated"
	case known && ratio <= p.ToleranceRatio && sig.Confidence < p.LowSignalConfidence:
		g = grade{severity: SeverityWarning, weight: r.weights.Warning}
		band = "tolerated"
	}
	evidence.Set("band", band)

	var msg string
	if known {
		msg = fmt.Sprintf("%s differs from computed value by %.1f%%", r.subject, ratio*100)
	} else {
		msg = fmt.Sprintf("%s differs from computed value", r.subject)
	}
	return []Event{emit(r.id, g, in.Factor, msg, evidence)}
}
