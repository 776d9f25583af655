package learned

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"docrisk/internal/signals"
	dErrors "docrisk/pkg/domain-errors"
	"docrisk/pkg/platform/sentinel"
)

// Source loads the latest snapshot from wherever the offline feedback
// collaborator writes it.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Store holds the current snapshot behind an atomic pointer. Readers call
// Current once per decision and keep that pointer for the whole decision.
// Publishers are serialised; each publish builds a fresh snapshot and swaps it.
type Store struct {
	current  atomic.Pointer[Snapshot]
	publish  sync.Mutex
	registry *signals.Registry
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for swaps and rejected publishes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithRegistry validates every pattern signal against the registry on publish.
func WithRegistry(reg *signals.Registry) Option {
	return func(s *Store) {
		s.registry = reg
	}
}

// NewStore creates a store holding an empty version-0 snapshot.
func NewStore(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&Snapshot{})
	return s
}

// Current returns the active snapshot. It is never nil and must be treated as read-only.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Publish validates snap, copies it and swaps it in. The version must be
// strictly greater than the active one; stale publishes are rejected with
// sentinel.ErrInvalidState.
func (s *Store) Publish(ctx context.Context, snap Snapshot) error {
	s.publish.Lock()
	defer s.publish.Unlock()
	return s.swap(ctx, snap)
}

// Update merges changed rules into a copy of the active snapshot (replacing
// rules with the same id, appending new ones) and publishes it as version.
func (s *Store) Update(ctx context.Context, version int64, changed ...Rule) error {
	s.publish.Lock()
	defer s.publish.Unlock()

	cur := s.current.Load()
	merged := make([]Rule, 0, len(cur.Rules)+len(changed))
	index := make(map[string]int, len(cur.Rules))
	for _, r := range cur.Rules {
		index[r.RuleID] = len(merged)
		merged = append(merged, r.clone())
	}
	for _, r := range changed {
		if i, ok := index[r.RuleID]; ok {
			merged[i] = r.clone()
			continue
		}
		index[r.RuleID] = len(merged)
		merged = append(merged, r.clone())
	}
	return s.swap(ctx, Snapshot{Version: version, Rules: merged})
}

// Refresh loads from src and publishes when the loaded version is newer.
// An equal or older version is not an error.
func (s *Store) Refresh(ctx context.Context, src Source) error {
	snap, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load learned rules: %w", err)
	}
	if snap.Version <= s.Current().Version {
		return nil
	}
	// a concurrent publisher may have moved past this version meanwhile
	if err := s.Publish(ctx, snap); err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
		return err
	}
	return nil
}

func (s *Store) swap(ctx context.Context, snap Snapshot) error {
	cur := s.current.Load()
	if snap.Version <= cur.Version {
		s.rejected(ctx, snap.Version, "stale version")
		return fmt.Errorf("publish learned snapshot %d over %d: %w", snap.Version, cur.Version, sentinel.ErrInvalidState)
	}

	next := &Snapshot{
		Version:     snap.Version,
		PublishedAt: snap.PublishedAt,
		Rules:       make([]Rule, 0, len(snap.Rules)),
	}
	seen := make(map[string]struct{}, len(snap.Rules))
	for _, r := range snap.Rules {
		if err := r.Validate(s.registry); err != nil {
			s.rejected(ctx, snap.Version, "invalid rule")
			return err
		}
		if _, dup := seen[r.RuleID]; dup {
			s.rejected(ctx, snap.Version, "duplicate rule id")
			return dErrors.Newf(dErrors.CodeSchemaViolation, "learned rule %q appears twice in snapshot %d", r.RuleID, snap.Version)
		}
		seen[r.RuleID] = struct{}{}
		next.Rules = append(next.Rules, r.clone())
	}
	slices.SortFunc(next.Rules, func(a, b Rule) int { return strings.Compare(a.RuleID, b.RuleID) })

	s.current.Store(next)

	if s.metrics != nil {
		s.metrics.ObserveSwap(next.Version, len(next.Rules))
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "learned rule snapshot published",
			"version", next.Version,
			"rules", len(next.Rules),
		)
	}
	return nil
}

func (s *Store) rejected(ctx context.Context, version int64, reason string) {
	if s.metrics != nil {
		s.metrics.IncRejected(reason)
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "learned rule snapshot rejected",
			"version", version,
			"reason", reason,
		)
	}
}
