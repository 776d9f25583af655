//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docrisk/internal/learned"
	"docrisk/internal/learned/store"
	"docrisk/internal/signals"
	"docrisk/pkg/platform/sentinel"
	"docrisk/pkg/testutil/containers"
)

type PostgresSourceSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	source   *store.PostgresSource
	now      time.Time
}

func TestPostgresSourceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSourceSuite))
}

func (s *PostgresSourceSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.source = store.NewPostgresSource(s.postgres.DB, store.WithClock(func() time.Time { return s.now }))
}

func (s *PostgresSourceSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "learned_rules", "learned_rule_snapshots")
	s.Require().NoError(err)
}

func snapshot(version int64) learned.Snapshot {
	return learned.Snapshot{Version: version, Rules: []learned.Rule{
		{
			RuleID:               "total-and-font",
			Pattern:              learned.Pattern{Signals: []string{signals.TotalMismatch, signals.FontInconsistency}},
			Action:               learned.ActionIncreaseWeight,
			ConfidenceAdjustment: 0.1,
			FeedbackCount:        40,
			AccuracyEstimate:     0.85,
			Enabled:              true,
		},
		{
			RuleID:           "fields",
			Pattern:          learned.Pattern{Signals: []string{signals.MissingTotal, signals.MissingDate, signals.MissingTaxID}, MinMatch: 2, Class: learned.ClassMissingField},
			Action:           learned.ActionAddCheck,
			FeedbackCount:    8,
			AccuracyEstimate: 0.7,
		},
	}}
}

func (s *PostgresSourceSuite) TestEmptyTable() {
	_, err := s.source.Load(context.Background())
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresSourceSuite) TestSaveAndLoadLatest() {
	ctx := context.Background()
	s.Require().NoError(s.source.Save(ctx, snapshot(1)))
	newer := snapshot(2)
	newer.Rules = newer.Rules[:1]
	newer.Rules[0].ConfidenceAdjustment = 0.12
	s.Require().NoError(s.source.Save(ctx, newer))

	got, err := s.source.Load(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), got.Version)
	s.True(got.PublishedAt.Equal(s.now))
	s.Require().Len(got.Rules, 1)
	s.Equal(0.12, got.Rules[0].ConfidenceAdjustment)
	s.Equal([]string{signals.TotalMismatch, signals.FontInconsistency}, got.Rules[0].Pattern.Signals)
}

func (s *PostgresSourceSuite) TestRoundTripFeedsStore() {
	ctx := context.Background()
	s.Require().NoError(s.source.Save(ctx, snapshot(7)))

	st := learned.NewStore(learned.WithRegistry(signals.MustDefault()))
	s.Require().NoError(st.Refresh(ctx, s.source))

	cur := st.Current()
	s.Equal(int64(7), cur.Version)
	s.Require().Equal(2, cur.Len())
	s.Equal("fields", cur.Rules[0].RuleID)
	s.Equal(2, cur.Rules[0].Pattern.MinMatch)
	s.Equal(learned.ClassMissingField, cur.Rules[0].Pattern.Class)
	s.False(cur.Rules[0].Enabled)
}

func (s *PostgresSourceSuite) TestDuplicateVersion() {
	ctx := context.Background()
	s.Require().NoError(s.source.Save(ctx, snapshot(3)))
	err := s.source.Save(ctx, snapshot(3))
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrInvalidState))
}
