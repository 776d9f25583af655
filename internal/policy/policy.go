// Package policy holds the tunable constants of the decision core.
//
// Every threshold below was tuned empirically against labelled documents; none of
// them has a closed-form derivation, so they are configuration rather than code.
package policy

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// EnforcementTier selects how strictly jurisdiction mismatches are scored.
type EnforcementTier string

const (
	TierStandard EnforcementTier = "standard"
	TierStrict   EnforcementTier = "strict"
)

// Thresholds groups every policy constant consumed by rules, the learned overlay
// and the decision mapper.
type Thresholds struct {
	// QualityGateMin is the minimum document-profile confidence for
	// quality-gated rule categories (missing-field penalties) and for
	// undampened learned rules.
	QualityGateMin float64 `yaml:"quality_gate_min"`

	// LowProfileConfidence and the secondary magnitude thresholds must both
	// hold before an ambiguous CRITICAL is downgraded to WARNING.
	LowProfileConfidence float64 `yaml:"low_profile_confidence"`
	DateGapDays          float64 `yaml:"date_gap_days"`
	TypeMarginAmbiguous  float64 `yaml:"type_margin_ambiguous"`

	// Arithmetic tolerance bands.
	ToleranceRatio       float64 `yaml:"tolerance_ratio"`
	EscalationRatio      float64 `yaml:"escalation_ratio"`
	HighSignalConfidence float64 `yaml:"high_signal_confidence"`
	LowSignalConfidence  float64 `yaml:"low_signal_confidence"`

	// Label thresholds.
	FakeThreshold       float64 `yaml:"fake_threshold"`
	SuspiciousThreshold float64 `yaml:"suspicious_threshold"`
	CriticalForSuspect  int     `yaml:"critical_for_suspicious"`

	// Learned overlay caps.
	LearnedDampening     float64 `yaml:"learned_dampening"`
	LearnedClamp         float64 `yaml:"learned_clamp"`
	LearnedMaxAdjustment float64 `yaml:"learned_max_adjustment"`
	LearnedMaxTotal      float64 `yaml:"learned_max_total"`
	LearnedMinAccuracy   float64 `yaml:"learned_min_accuracy"`
	LearnedMinFeedback   int     `yaml:"learned_min_feedback"`

	Tier EnforcementTier `yaml:"enforcement_tier"`
}

// Default returns the production-tuned thresholds.
func Default() Thresholds {
	return Thresholds{
		QualityGateMin:       0.55,
		LowProfileConfidence: 0.40,
		DateGapDays:          540,
		TypeMarginAmbiguous:  0.15,
		ToleranceRatio:       0.05,
		EscalationRatio:      0.10,
		HighSignalConfidence: 0.80,
		LowSignalConfidence:  0.55,
		FakeThreshold:        0.70,
		SuspiciousThreshold:  0.30,
		CriticalForSuspect:   2,
		LearnedDampening:     0.65,
		LearnedClamp:         0.05,
		LearnedMaxAdjustment: 0.15,
		LearnedMaxTotal:      0.20,
		LearnedMinAccuracy:   0.60,
		LearnedMinFeedback:   3,
		Tier:                 TierStandard,
	}
}

// LowQuality reports whether a document-profile confidence falls under the quality gate.
func (t Thresholds) LowQuality(profileConfidence float64) bool {
	return profileConfidence < t.QualityGateMin
}

// Validate checks every threshold for range and ordering.
func (t Thresholds) Validate() error {
	unit := map[string]float64{
		"quality_gate_min":       t.QualityGateMin,
		"low_profile_confidence": t.LowProfileConfidence,
		"type_margin_ambiguous":  t.TypeMarginAmbiguous,
		"tolerance_ratio":        t.ToleranceRatio,
		"escalation_ratio":       t.EscalationRatio,
		"high_signal_confidence": t.HighSignalConfidence,
		"low_signal_confidence":  t.LowSignalConfidence,
		"fake_threshold":         t.FakeThreshold,
		"suspicious_threshold":   t.SuspiciousThreshold,
		"learned_dampening":      t.LearnedDampening,
		"learned_clamp":          t.LearnedClamp,
		"learned_max_adjustment": t.LearnedMaxAdjustment,
		"learned_max_total":      t.LearnedMaxTotal,
		"learned_min_accuracy":   t.LearnedMinAccuracy,
	}
	for _, key := range slices.Sorted(maps.Keys(unit)) {
		v := unit[key]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("policy.%s must be within [0,1], got %v", key, v)
		}
	}
	if t.DateGapDays <= 0 {
		return fmt.Errorf("policy.date_gap_days must be positive, got %v", t.DateGapDays)
	}
	if t.ToleranceRatio >= t.EscalationRatio {
		return fmt.Errorf("policy.tolerance_ratio (%v) must be below escalation_ratio (%v)", t.ToleranceRatio, t.EscalationRatio)
	}
	if t.LowSignalConfidence > t.HighSignalConfidence {
		return fmt.Errorf("policy.low_signal_confidence (%v) must not exceed high_signal_confidence (%v)", t.LowSignalConfidence, t.HighSignalConfidence)
	}
	if t.SuspiciousThreshold <= 0 || t.SuspiciousThreshold >= t.FakeThreshold {
		return fmt.Errorf("policy thresholds must satisfy 0 < suspicious_threshold < fake_threshold, got %v/%v", t.SuspiciousThreshold, t.FakeThreshold)
	}
	if t.CriticalForSuspect < 1 {
		return fmt.Errorf("policy.critical_for_suspicious must be at least 1, got %d", t.CriticalForSuspect)
	}
	if t.LearnedDampening == 0 || t.LearnedClamp == 0 {
		return fmt.Errorf("policy.learned_dampening and learned_clamp must be positive")
	}
	if t.LearnedMinFeedback < 0 {
		return fmt.Errorf("policy.learned_min_feedback must not be negative, got %d", t.LearnedMinFeedback)
	}
	switch t.Tier {
	case TierStandard, TierStrict:
	default:
		return fmt.Errorf("policy.enforcement_tier %q is not one of standard|strict", t.Tier)
	}
	return nil
}
