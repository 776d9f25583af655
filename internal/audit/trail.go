package audit

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"docrisk/internal/rules"
	"docrisk/pkg/platform/sentinel"
	"docrisk/pkg/requestcontext"
)

type entry struct {
	event  Event
	weight float64
}

// Trail accumulates a decision's audit events. It is appended to by the
// pipeline and frozen by Finalize; appends after that fail.
type Trail struct {
	mu        sync.Mutex
	entries   []entry
	finalized bool
}

// NewTrail creates an empty, unfinalized trail.
func NewTrail() *Trail {
	return &Trail{}
}

// AppendRuleEvents records rule events in order.
func (t *Trail) AppendRuleEvents(events ...rules.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return fmt.Errorf("append rule events: %w", sentinel.ErrAlreadyFinalized)
	}
	for _, ev := range events {
		t.entries = append(t.entries, entry{event: FromRuleEvent(ev), weight: ev.AppliedWeight})
	}
	return nil
}

// Append records an event that did not come from a rule. weight orders its
// reason among events of the same severity.
func (t *Trail) Append(ev Event, weight float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return fmt.Errorf("append %s event: %w", ev.Type, sentinel.ErrAlreadyFinalized)
	}
	t.entries = append(t.entries, entry{event: ev.clone(), weight: weight})
	return nil
}

// Finalize assigns every event an id and the UTC evaluation time from ctx.
// Subsequent calls return the same events unchanged.
func (t *Trail) Finalize(ctx context.Context) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finalized {
		ts := requestcontext.Now(ctx).UTC()
		for i := range t.entries {
			t.entries[i].event.EventID = uuid.NewString()
			t.entries[i].event.Timestamp = ts
		}
		t.finalized = true
	}
	return t.events()
}

// Finalized reports whether Finalize has been called.
func (t *Trail) Finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}

// Events returns a copy of the recorded events.
func (t *Trail) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events()
}

func (t *Trail) events() []Event {
	out := make([]Event, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.event.clone())
	}
	return out
}

// Reasons lists the distinct messages of unsuppressed events, most severe
// first and heaviest first within a severity. Ties keep append order.
func (t *Trail) Reasons() []string {
	t.mu.Lock()
	active := make([]entry, 0, len(t.entries))
	for _, e := range t.entries {
		if !e.event.Suppressed && e.event.Message != "" {
			active = append(active, e)
		}
	}
	t.mu.Unlock()

	slices.SortStableFunc(active, func(a, b entry) int {
		if r := b.event.Severity.Rank() - a.event.Severity.Rank(); r != 0 {
			return r
		}
		switch {
		case a.weight > b.weight:
			return -1
		case a.weight < b.weight:
			return 1
		}
		return 0
	})

	reasons := make([]string, 0, len(active))
	seen := make(map[string]struct{}, len(active))
	for _, e := range active {
		if _, dup := seen[e.event.Message]; dup {
			continue
		}
		seen[e.event.Message] = struct{}{}
		reasons = append(reasons, e.event.Message)
	}
	return reasons
}
