package decision

import (
	"math"

	"docrisk/internal/rules"
)

// Aggregate is the scoring summary of one decision's events.
type Aggregate struct {
	// Raw is the signed sum of contributions.
	Raw float64
	// Score is Raw clamped to [0, 1].
	Score         float64
	HardFail      bool
	CriticalCount int
}

// AggregateEvents sums the applied weight of unsuppressed events. A rule_id
// contributes at most once; later events with the same id are ignored.
// Thresholding is left to the Mapper.
func AggregateEvents(events []rules.Event) Aggregate {
	var agg Aggregate
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.Suppressed {
			continue
		}
		if _, dup := seen[ev.RuleID]; dup {
			continue
		}
		seen[ev.RuleID] = struct{}{}

		agg.Raw += ev.Contribution()
		switch ev.Severity {
		case rules.SeverityHardFail:
			agg.HardFail = true
		case rules.SeverityCritical:
			agg.CriticalCount++
		}
	}
	agg.Score = math.Min(1, math.Max(0, agg.Raw))
	return agg
}
