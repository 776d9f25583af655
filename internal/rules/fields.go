package rules

import (
	"fmt"
	"strings"

	"docrisk/internal/signals"
)

var missingFieldSignals = []string{
	signals.MissingTotal,
	signals.MissingDate,
	signals.MissingMerchant,
	signals.MissingTaxID,
}

// missingFieldsRule penalises absent fields. The category is quality gated:
// below the profile-confidence gate it emits one INFO event explaining the
// suppression instead of any penalty.
type missingFieldsRule struct{}

func (missingFieldsRule) Name() string { return "missing_fields" }

func (missingFieldsRule) Reads() []string { return missingFieldSignals }

func missingFieldRuleID(signal string) string {
	_, feature, _ := strings.Cut(signal, ".")
	return "fields." + feature
}

func (missingFieldsRule) Evaluate(in Input) []Event {
	var fired []signals.Signal
	var events []Event
	for _, name := range missingFieldSignals {
		sig := in.Signals.Get(name)
		switch sig.Status {
		case signals.StatusTriggered:
			fired = append(fired, sig)
		case signals.StatusGated:
			events = append(events, gated(missingFieldRuleID(name), sig, in.Factor))
		}
	}
	if len(fired) == 0 {
		return events
	}

	if in.Policy.LowQuality(in.Profile.Confidence) {
		names := make([]string, 0, len(fired))
		for _, sig := range fired {
			names = append(names, sig.Name)
		}
		evidence := NewEvidence(nil).
			Set("profile_confidence", in.Profile.Confidence).
			Set("quality_gate", in.Policy.QualityGateMin).
			Set("gated_fields", strings.Join(names, ","))
		msg := fmt.Sprintf("missing-field penalties suppressed: document profile confidence %.2f below %.2f",
			in.Profile.Confidence, in.Policy.QualityGateMin)
		return append(events, info("fields.missing", SuppressedQualityGate, in.Factor, msg, evidence))
	}

	for _, sig := range fired {
		_, feature, _ := strings.Cut(sig.Name, ".")
		g := grade{severity: SeverityWarning, weight: missingFieldWeights[sig.Name]}
		field := strings.ReplaceAll(strings.TrimPrefix(feature, "missing_"), "_", " ")
		msg := field + " field could not be extracted"
		events = append(events, emit(missingFieldRuleID(sig.Name), g, in.Factor, msg, signalEvidence(sig)))
	}
	return events
}

// simpleWarningRule emits a fixed WARNING when its signal triggers.
type simpleWarningRule struct {
	id      string
	signal  string
	weights Weights
	message string
}

func (r simpleWarningRule) Name() string { return r.id }

func (r simpleWarningRule) Reads() []string { return []string{r.signal} }

func (r simpleWarningRule) Evaluate(in Input) []Event {
	sig := in.Signals.Get(r.signal)
	switch sig.Status {
	case signals.StatusGated:
		return []Event{gated(r.id, sig, in.Factor)}
	case signals.StatusTriggered:
		g := grade{severity: SeverityWarning, weight: r.weights.Warning}
		return []Event{emit(r.id, g, in.Factor, r.message, signalEvidence(sig))}
	}
	return nil
}
