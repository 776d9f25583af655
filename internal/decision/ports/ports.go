// Package ports defines the outbound interfaces of the decision engine.
// Both sinks are optional and best-effort: a failing sink never changes a
// verdict. The engine calls them from its outbox goroutine, never from Decide.
package ports

import (
	"context"
	"time"

	"docrisk/internal/audit"
	"docrisk/internal/rules"
)

// AuditSink receives a finalized decision's audit events.
type AuditSink interface {
	Record(ctx context.Context, decisionID string, events []audit.Event) error
}

// TraceRecord is the lightweight, evidence-free summary of one decision.
type TraceRecord struct {
	DecisionID      string             `json:"decision_id"`
	RequestID       string             `json:"request_id,omitempty"`
	Label           string             `json:"label"`
	Score           float64            `json:"score"`
	SnapshotVersion int64              `json:"learned_snapshot_version"`
	EvaluatedAt     time.Time          `json:"evaluated_at"`
	Entries         []rules.TraceEntry `json:"entries"`
}

// TelemetrySink receives the ordered rule trace of each decision.
type TelemetrySink interface {
	Publish(ctx context.Context, record TraceRecord) error
}
