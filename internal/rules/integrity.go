package rules

import (
	"fmt"
	"strings"

	"docrisk/internal/signals"
)

// knownTemplateRule hard-fails documents built from a confirmed fraud template.
type knownTemplateRule struct{}

func (knownTemplateRule) Name() string { return "known_template" }

func (knownTemplateRule) Reads() []string { return []string{signals.KnownFraudTemplate} }

func (knownTemplateRule) Evaluate(in Input) []Event {
	const id = "document.known_template"
	sig := in.Signals.Get(signals.KnownFraudTemplate)
	switch sig.Status {
	case signals.StatusGated:
		return []Event{gated(id, sig, in.Factor)}
	case signals.StatusTriggered:
		g := grade{severity: SeverityHardFail, weight: templateWeights.HardFail}
		return []Event{emit(id, g, in.Factor, "document matches a confirmed fraudulent template", signalEvidence(sig))}
	}
	return nil
}

var tamperSignals = []string{
	signals.PixelSplice,
	signals.FontInconsistency,
	signals.MetadataEditor,
	signals.VisionOverlay,
}

// tamperRule folds every tamper artifact into one event. Unambiguous artifacts
// yield a single near-maximal CRITICAL rather than scattered partial
// penalties; it stays below HARD_FAIL so a reviewer can still override.
type tamperRule struct{}

func (tamperRule) Name() string { return "tamper" }

func (tamperRule) Reads() []string { return tamperSignals }

func (tamperRule) Evaluate(in Input) []Event {
	const id = "tamper.artifacts"

	var fired, strong []string
	var events []Event
	maxConf := 0.0
	for _, name := range tamperSignals {
		sig := in.Signals.Get(name)
		switch sig.Status {
		case signals.StatusTriggered:
			fired = append(fired, name)
			if sig.Confidence >= in.Policy.HighSignalConfidence {
				strong = append(strong, name)
			}
			maxConf = max(maxConf, sig.Confidence)
		case signals.StatusGated:
			events = append(events, gated(tamperGatedID(name), sig, in.Factor))
		}
	}

	if len(fired) == 0 {
		return events
	}

	evidence := NewEvidence(nil).
		Set("artifacts", strings.Join(fired, ",")).
		Set("artifact_count", len(fired)).
		Set("strong_artifact_count", len(strong)).
		Set("max_confidence", maxConf)

	if len(strong) > 0 {
		g := grade{severity: SeverityCritical, weight: tamperWeights.Critical}
		msg := fmt.Sprintf("tamper artifacts detected (%s)", strings.Join(strong, ", "))
		return append([]Event{emit(id, g, in.Factor, msg, evidence)}, events...)
	}
	g := grade{severity: SeverityWarning, weight: tamperWeights.Warning}
	msg := fmt.Sprintf("possible tamper artifacts (%s)", strings.Join(fired, ", "))
	return append([]Event{emit(id, g, in.Factor, msg, evidence)}, events...)
}

// tamperGatedID names the gated event of one tamper signal, e.g.
// "tamper.pixel_splice" or "tamper.tamper_overlay".
func tamperGatedID(signal string) string {
	_, feature, _ := strings.Cut(signal, ".")
	return "tamper." + feature
}
