package rules

import (
	"fmt"

	"docrisk/internal/signals"
)

// corroborated reports whether an ambiguous CRITICAL may be downgraded: the
// document profile must be unreliable AND the anomaly magnitude must sit below
// its secondary threshold. Either condition alone keeps full severity, and an
// unknown magnitude never downgrades.
func corroborated(in Input, magnitude float64, known bool, threshold float64) bool {
	return in.Profile.Confidence < in.Policy.LowProfileConfidence && known && magnitude < threshold
}

// docTypeRule scores a claimed-vs-classified document type disagreement.
type docTypeRule struct{}

func (docTypeRule) Name() string { return "document_type" }

func (docTypeRule) Reads() []string { return []string{signals.TypeMismatch} }

func (docTypeRule) Evaluate(in Input) []Event {
	const id = "document.type_consistency"
	sig := in.Signals.Get(signals.TypeMismatch)
	switch sig.Status {
	case signals.StatusGated:
		return []Event{gated(id, sig, in.Factor)}
	case signals.StatusTriggered:
	default:
		return nil
	}

	margin, known := sig.Float("type_margin")
	evidence := signalEvidence(sig).Set("profile_confidence", in.Profile.Confidence)

	g := grade{severity: SeverityCritical, weight: docTypeWeights.Critical}
	msg := "document type disagrees with classification"
	if corroborated(in, margin, known, in.Policy.TypeMarginAmbiguous) {
		g = g.downgrade()
		evidence.Set("downgraded", true)
		msg = "document type ambiguous and classification unreliable"
	}
	return []Event{emit(id, g, in.Factor, msg, evidence)}
}

// dateGapRule scores a large gap between document date and claimed date.
type dateGapRule struct{}

func (dateGapRule) Name() string { return "date_gap" }

func (dateGapRule) Reads() []string { return []string{signals.DateGapAnomaly} }

func (dateGapRule) Evaluate(in Input) []Event {
	const id = "date.gap"
	sig := in.Signals.Get(signals.DateGapAnomaly)
	switch sig.Status {
	case signals.StatusGated:
		return []Event{gated(id, sig, in.Factor)}
	case signals.StatusTriggered:
	default:
		return nil
	}

	gap, known := sig.Float("gap_days")
	evidence := signalEvidence(sig).Set("profile_confidence", in.Profile.Confidence)

	g := grade{severity: SeverityCritical, weight: dateGapWeights.Critical}
	msg := "document date is far from the claimed date"
	if known {
		msg = fmt.Sprintf("document date is %.0f days from the claimed date", gap)
	}
	if corroborated(in, gap, known, in.Policy.DateGapDays) {
		g = g.downgrade()
		evidence.Set("downgraded", true)
	}
	return []Event{emit(id, g, in.Factor, msg, evidence)}
}

// futureDateRule scores documents dated after submission.
type futureDateRule struct{}

func (futureDateRule) Name() string { return "future_date" }

func (futureDateRule) Reads() []string { return []string{signals.FutureDated} }

func (futureDateRule) Evaluate(in Input) []Event {
	const id = "date.future"
	sig := in.Signals.Get(signals.FutureDated)
	switch sig.Status {
	case signals.StatusGated:
		return []Event{gated(id, sig, in.Factor)}
	case signals.StatusTriggered:
		g := grade{severity: SeverityCritical, weight: futureDateWeights.Critical}
		return []Event{emit(id, g, in.Factor, "document is dated after submission", signalEvidence(sig))}
	}
	return nil
}
