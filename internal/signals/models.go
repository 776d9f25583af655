package signals

import (
	"math"
	"slices"
	"strings"

	dErrors "docrisk/pkg/domain-errors"
)

// Status is the observation state of a signal.
type Status string

const (
	StatusTriggered    Status = "TRIGGERED"
	StatusNotTriggered Status = "NOT_TRIGGERED"
	// StatusGated marks a signal whose producer refused to judge under
	// unreliable evidence. Gated signals are always emitted, never omitted.
	StatusGated   Status = "GATED"
	StatusUnknown Status = "UNKNOWN"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTriggered, StatusNotTriggered, StatusGated, StatusUnknown:
		return true
	}
	return false
}

// Signal is one extracted, confidence-scored observation about a document.
// Evidence holds primitives only (no free text, no PII).
type Signal struct {
	Name           string         `json:"name" yaml:"name"`
	Status         Status         `json:"status" yaml:"status"`
	Confidence     float64        `json:"confidence" yaml:"confidence"`
	Evidence       map[string]any `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Interpretation string         `json:"interpretation,omitempty" yaml:"interpretation,omitempty"`
	GatingReason   string         `json:"gating_reason,omitempty" yaml:"gating_reason,omitempty"`
}

// Triggered reports whether the signal fired.
func (s Signal) Triggered() bool { return s.Status == StatusTriggered }

// Float reads a numeric evidence value. Integers are widened.
func (s Signal) Float(key string) (float64, bool) {
	switch v := s.Evidence[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

// Bag is the full set of signals for one document, keyed by signal name.
type Bag map[string]Signal

// NewBag builds a bag keyed by each signal's own name.
func NewBag(sigs ...Signal) Bag {
	bag := make(Bag, len(sigs))
	for _, s := range sigs {
		bag[s.Name] = s
	}
	return bag
}

// Domain returns the domain prefix of a "domain.feature" name.
func Domain(name string) string {
	domain, _, found := strings.Cut(name, ".")
	if !found {
		return ""
	}
	return domain
}

// Profile is the external document classification result, consumed read-only.
type Profile struct {
	Family     string   `json:"family" yaml:"family"`
	Subtype    string   `json:"subtype" yaml:"subtype"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Evidence   []string `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// Validate rejects a profile whose confidence is not a finite value in [0,1].
func (p Profile) Validate() error {
	if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "profile confidence %v outside [0,1]", p.Confidence)
	}
	return nil
}

// DefaultProfile is what callers substitute when classification lookup fails.
// Its confidence sits below every quality gate so gated categories stay off.
func DefaultProfile() Profile {
	return Profile{
		Family:     "unknown",
		Subtype:    "unknown",
		Confidence: 0.0,
		Evidence:   []string{"classification_unavailable"},
	}
}

// SeverityTier is the registry's coarse strength class for a signal.
type SeverityTier string

const (
	TierWeak   SeverityTier = "weak"
	TierMedium SeverityTier = "medium"
	TierStrong SeverityTier = "strong"
)

// Privacy classifies what a signal's evidence may reveal.
type Privacy string

const (
	PrivacySafe    Privacy = "safe"
	PrivacyDerived Privacy = "derived"
)

// Spec is the immutable catalogue entry for one signal name.
type Spec struct {
	Name         string
	Domain       string
	Version      int
	SeverityTier SeverityTier
	GatedBy      []string
	Privacy      Privacy
	Description  string
}

// AllowsGatingReason reports whether reason is a declared gating reason for the signal.
func (s Spec) AllowsGatingReason(reason string) bool {
	return slices.Contains(s.GatedBy, reason)
}
