// Package store reads and writes learned-rule snapshots in PostgreSQL, the
// hand-off point between the offline feedback pipeline and the decision core.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"docrisk/internal/learned"
	"docrisk/pkg/platform/sentinel"
	"docrisk/pkg/platform/tx"
)

// PostgresSource implements learned.Source over the learned_rule_snapshots and
// learned_rules tables.
type PostgresSource struct {
	db    *sql.DB
	clock func() time.Time
}

// Option configures a PostgresSource.
type Option func(*PostgresSource)

// WithClock sets the clock used to stamp saved snapshots.
func WithClock(clock func() time.Time) Option {
	return func(s *PostgresSource) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgresSource constructs a PostgreSQL-backed snapshot source.
func NewPostgresSource(db *sql.DB, opts ...Option) *PostgresSource {
	s := &PostgresSource{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load returns the newest snapshot. An empty table yields sentinel.ErrNotFound.
func (s *PostgresSource) Load(ctx context.Context) (learned.Snapshot, error) {
	var snap learned.Snapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT version, published_at
		FROM learned_rule_snapshots
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&snap.Version, &snap.PublishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return learned.Snapshot{}, fmt.Errorf("no learned rule snapshot: %w", sentinel.ErrNotFound)
		}
		return learned.Snapshot{}, fmt.Errorf("query latest learned snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, signals, min_match, class, action,
			   confidence_adjustment, feedback_count, accuracy_estimate, enabled
		FROM learned_rules
		WHERE version = $1
		ORDER BY rule_id
	`, snap.Version)
	if err != nil {
		return learned.Snapshot{}, fmt.Errorf("query learned rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r      learned.Rule
			action string
		)
		err := rows.Scan(
			&r.RuleID,
			pq.Array(&r.Pattern.Signals),
			&r.Pattern.MinMatch,
			&r.Pattern.Class,
			&action,
			&r.ConfidenceAdjustment,
			&r.FeedbackCount,
			&r.AccuracyEstimate,
			&r.Enabled,
		)
		if err != nil {
			return learned.Snapshot{}, fmt.Errorf("scan learned rule: %w", err)
		}
		r.Action = learned.Action(action)
		snap.Rules = append(snap.Rules, r)
	}
	if err := rows.Err(); err != nil {
		return learned.Snapshot{}, fmt.Errorf("iterate learned rules: %w", err)
	}
	return snap, nil
}

// Save writes a full snapshot under a new version. Saving an existing
// version fails with sentinel.ErrInvalidState.
func (s *PostgresSource) Save(ctx context.Context, snap learned.Snapshot) error {
	publishedAt := snap.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = s.clock()
	}
	return tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		res, err := sqlTx.ExecContext(ctx, `
			INSERT INTO learned_rule_snapshots (version, published_at)
			VALUES ($1, $2)
			ON CONFLICT (version) DO NOTHING
		`, snap.Version, publishedAt)
		if err != nil {
			return fmt.Errorf("insert learned snapshot: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("learned snapshot %d already saved: %w", snap.Version, sentinel.ErrInvalidState)
		}

		for _, r := range snap.Rules {
			_, err := sqlTx.ExecContext(ctx, `
				INSERT INTO learned_rules (
					version, rule_id, signals, min_match, class, action,
					confidence_adjustment, feedback_count, accuracy_estimate, enabled
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`,
				snap.Version,
				r.RuleID,
				pq.Array(r.Pattern.Signals),
				r.Pattern.MinMatch,
				r.Pattern.Class,
				string(r.Action),
				r.ConfidenceAdjustment,
				r.FeedbackCount,
				r.AccuracyEstimate,
				r.Enabled,
			)
			if err != nil {
				return fmt.Errorf("insert learned rule %s: %w", r.RuleID, err)
			}
		}
		return nil
	})
}
