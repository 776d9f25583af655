package audit

import (
	"context"
	"fmt"
	"log/slog"

	"docrisk/pkg/platform/sentinel"
)

// Batch is one decision's finalized events.
type Batch struct {
	DecisionID string
	Events     []Event
}

// Worker persists audit batches off the decision path. Record never blocks:
// a full inbox is reported as sentinel.ErrUnavailable.
type Worker struct {
	store  Store
	inbox  chan Batch
	logger *slog.Logger
}

func NewWorker(store Store, buffer int, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: make(chan Batch, buffer), logger: logger}
}

// Record enqueues one decision's events.
func (w *Worker) Record(_ context.Context, decisionID string, events []Event) error {
	if err := requireFinalized(events); err != nil {
		return err
	}
	select {
	case w.inbox <- Batch{DecisionID: decisionID, Events: events}:
		return nil
	default:
		return fmt.Errorf("audit inbox full: %w", sentinel.ErrUnavailable)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes what is queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.Flush()
			return ctx.Err()
		case batch := <-w.inbox:
			w.persist(ctx, batch)
		}
	}
}

// Flush persists every queued batch and returns once the inbox is empty.
// It is safe to call while Run is active.
func (w *Worker) Flush() {
	ctx := context.Background()
	for {
		select {
		case batch := <-w.inbox:
			w.persist(ctx, batch)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, batch Batch) {
	if err := w.store.Append(ctx, batch.DecisionID, batch.Events); err != nil && w.logger != nil {
		w.logger.ErrorContext(ctx, "failed to persist audit events",
			"decision_id", batch.DecisionID,
			"events", len(batch.Events),
			"error", err,
		)
	}
}
