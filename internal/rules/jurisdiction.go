package rules

import (
	"docrisk/internal/policy"
	"docrisk/internal/signals"
)

type mismatchCategory struct {
	id      string
	signal  string
	message string
}

var mismatchCategories = []mismatchCategory{
	{id: "jurisdiction.country", signal: signals.CountryMismatch, message: "merchant country differs from claimant country"},
	{id: "jurisdiction.currency", signal: signals.CurrencyMismatch, message: "currency does not match merchant jurisdiction"},
	{id: "jurisdiction.tax", signal: signals.JurisdictionMismatch, message: "tax scheme does not exist in merchant jurisdiction"},
}

// jurisdictionRule scores geography, currency and tax mismatches in one pass.
// Under the strict tier each mismatch is CRITICAL; cross-border or travel
// evidence softens every category found, decided once per pass.
type jurisdictionRule struct{}

func (jurisdictionRule) Name() string { return "jurisdiction" }

func (jurisdictionRule) Reads() []string {
	return []string{signals.CountryMismatch, signals.CurrencyMismatch, signals.JurisdictionMismatch, signals.TravelContext}
}

func (jurisdictionRule) Evaluate(in Input) []Event {
	strict := in.Policy.Tier == policy.TierStrict
	travelSig := in.Signals.Get(signals.TravelContext)
	travel := travelSig.Triggered()
	travelGated := travelSig.Status == signals.StatusGated
	soften := strict && travel

	var events []Event
	if travelGated {
		events = append(events, gated("jurisdiction.travel_context", travelSig, in.Factor))
	}
	for _, c := range mismatchCategories {
		sig := in.Signals.Get(c.signal)
		switch sig.Status {
		case signals.StatusGated:
			events = append(events, gated(c.id, sig, in.Factor))
			continue
		case signals.StatusTriggered:
		default:
			continue
		}

		g := grade{severity: SeverityWarning, weight: jurisdictionWeights.Warning}
		if strict {
			g = grade{severity: SeverityCritical, weight: jurisdictionWeights.Critical}
		}
		evidence := signalEvidence(sig).
			Set("enforcement_tier", string(in.Policy.Tier)).
			Set("travel_context", travel)
		if travelGated {
			evidence.Set("travel_context_gated", true)
		}
		msg := c.message
		if soften {
			g = g.soften()
			evidence.Set("softened", true)
			msg += " (travel context)"
		}
		events = append(events, emit(c.id, g, in.Factor, msg, evidence))
	}
	return events
}
