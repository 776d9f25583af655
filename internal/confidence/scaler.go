// Package confidence turns extraction-confidence inputs into the single
// dampening factor applied to non-HARD_FAIL rule weights.
package confidence

import (
	"math"

	dErrors "docrisk/pkg/domain-errors"
)

// Level is the discrete extraction-confidence grade some extractors report
// instead of a score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

var levelScores = map[Level]float64{
	LevelLow:    0.45,
	LevelMedium: 0.70,
	LevelHigh:   0.90,
}

// Factor bounds.
const (
	MinFactor = 0.60
	MaxFactor = 1.00
)

// Extraction is the extraction-confidence input of one decision.
// Score takes precedence over Level when both are set.
type Extraction struct {
	Score *float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Level Level    `json:"level,omitempty" yaml:"level,omitempty"`
	// LowEvidence flags a capture with little usable evidence (blurred photo,
	// partial page); it caps the factor.
	LowEvidence bool `json:"low_evidence,omitempty" yaml:"low_evidence,omitempty"`
}

// ScoreOf is a helper for building an Extraction from a float.
func ScoreOf(v float64) *float64 {
	return &v
}

// Validate rejects a score that is not a finite value in [0,1] and a level
// outside the known grades. An empty extraction is valid.
func (e Extraction) Validate() error {
	if e.Score != nil {
		v := *e.Score
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return dErrors.Newf(dErrors.CodeSchemaViolation, "extraction score %v outside [0,1]", v)
		}
	}
	if e.Level != "" {
		if _, ok := levelScores[e.Level]; !ok {
			return dErrors.Newf(dErrors.CodeSchemaViolation, "unknown extraction level %q", e.Level)
		}
	}
	return nil
}

// Resolve returns the numeric extraction confidence and whether any was supplied.
func (e Extraction) Resolve() (float64, bool) {
	if e.Score != nil && !math.IsNaN(*e.Score) {
		return *e.Score, true
	}
	if v, ok := levelScores[e.Level]; ok {
		return v, true
	}
	return 0, false
}

// Scaler derives the confidence factor.
type Scaler struct{}

// Factor maps an extraction confidence to a factor in [0.60, 1.00]:
// 1.0 at >=0.85, 0.85 at >=0.65, else 0.70; capped at 0.80 for
// low-evidence captures.
func (Scaler) Factor(score float64, lowEvidence bool) float64 {
	var f float64
	switch {
	case score >= 0.85:
		f = 1.0
	case score >= 0.65:
		f = 0.85
	default:
		f = 0.70
	}
	if lowEvidence && f > 0.80 {
		f = 0.80
	}
	return clamp(f)
}

// FactorFor resolves an Extraction. With no confidence supplied there is
// nothing to dampen by and the factor is 1.0, unless the capture is flagged
// low-evidence.
func (s Scaler) FactorFor(e Extraction) float64 {
	score, ok := e.Resolve()
	if !ok {
		if e.LowEvidence {
			return 0.80
		}
		return MaxFactor
	}
	return s.Factor(score, e.LowEvidence)
}

func clamp(f float64) float64 {
	return math.Min(MaxFactor, math.Max(MinFactor, f))
}
