package audit

import (
	"context"
	"fmt"
)

// Store persists finalized audit events keyed by decision id. Appends must be
// idempotent on event id so retries never duplicate records.
type Store interface {
	Append(ctx context.Context, decisionID string, events []Event) error
	ListByDecision(ctx context.Context, decisionID string) ([]Event, error)
}

// Publisher writes finalized trails synchronously to a store.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Record persists one decision's events. Unfinalized events are refused.
func (p *Publisher) Record(ctx context.Context, decisionID string, events []Event) error {
	if err := requireFinalized(events); err != nil {
		return err
	}
	if err := p.store.Append(ctx, decisionID, events); err != nil {
		return fmt.Errorf("record audit events for %s: %w", decisionID, err)
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, decisionID string) ([]Event, error) {
	return p.store.ListByDecision(ctx, decisionID)
}

func requireFinalized(events []Event) error {
	for _, ev := range events {
		if ev.EventID == "" || ev.Timestamp.IsZero() {
			return fmt.Errorf("audit event %s has no identity; finalize the trail first", ev.Code)
		}
	}
	return nil
}
