package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"docrisk/internal/audit"
	"docrisk/internal/rules"
	"docrisk/pkg/platform/tx"
)

// Store persists finalized audit events in decision_audit_events.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one decision's events in a single transaction, keeping their
// order. Idempotent via ON CONFLICT DO NOTHING on the event id.
func (s *Store) Append(ctx context.Context, decisionID string, events []audit.Event) error {
	query := `
		INSERT INTO decision_audit_events (
			id, decision_id, seq, timestamp, source, type,
			severity, code, message, evidence, suppressed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	return tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		for i, ev := range events {
			eventID, err := uuid.Parse(ev.EventID)
			if err != nil {
				return fmt.Errorf("parse audit event id %q: %w", ev.EventID, err)
			}
			evidence, err := json.Marshal(ev.Evidence)
			if err != nil {
				return fmt.Errorf("marshal audit evidence: %w", err)
			}
			_, err = sqlTx.ExecContext(ctx, query,
				eventID,
				decisionID,
				i,
				ev.Timestamp,
				ev.Source,
				string(ev.Type),
				string(ev.Severity),
				ev.Code,
				ev.Message,
				evidence,
				ev.Suppressed,
			)
			if err != nil {
				return fmt.Errorf("insert audit event: %w", err)
			}
		}
		return nil
	})
}

// ListByDecision returns a decision's events in append order.
func (s *Store) ListByDecision(ctx context.Context, decisionID string) ([]audit.Event, error) {
	query := `
		SELECT id, timestamp, source, type, severity, code, message, evidence, suppressed
		FROM decision_audit_events
		WHERE decision_id = $1
		ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, decisionID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			ev       audit.Event
			eventID  uuid.UUID
			typ      string
			severity string
			evidence []byte
		)
		err := rows.Scan(&eventID, &ev.Timestamp, &ev.Source, &typ, &severity, &ev.Code, &ev.Message, &evidence, &ev.Suppressed)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.EventID = eventID.String()
		ev.Type = audit.Type(typ)
		ev.Severity = rules.Severity(severity)
		if err := json.Unmarshal(evidence, &ev.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal audit evidence: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
