package decision

import "docrisk/internal/policy"

// Mapper maps an aggregate and an external veto to a label.
type Mapper struct {
	thresholds policy.Thresholds
}

// NewMapper creates a mapper using the label thresholds in t.
func NewMapper(t policy.Thresholds) Mapper {
	return Mapper{thresholds: t}
}

// Map applies, in order:
//  1. HARD_FAIL present -> fake
//  2. score >= fake threshold -> fake
//  3. score >= suspicious threshold, or enough CRITICAL events -> suspicious
//  4. otherwise real
//
// A veto is applied last and can only raise the label: tampered forces fake,
// suspicious raises real to suspicious, clean changes nothing.
func (m Mapper) Map(agg Aggregate, veto Veto) Label {
	label := m.byScore(agg)
	switch veto {
	case VetoTampered:
		return LabelFake
	case VetoSuspicious:
		if label.rank() < LabelSuspicious.rank() {
			return LabelSuspicious
		}
	}
	return label
}

func (m Mapper) byScore(agg Aggregate) Label {
	switch {
	case agg.HardFail:
		return LabelFake
	case agg.Score >= m.thresholds.FakeThreshold:
		return LabelFake
	case agg.Score >= m.thresholds.SuspiciousThreshold,
		agg.CriticalCount >= m.thresholds.CriticalForSuspect:
		return LabelSuspicious
	default:
		return LabelReal
	}
}
