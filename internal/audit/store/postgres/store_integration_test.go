//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docrisk/internal/audit"
	"docrisk/internal/audit/store/postgres"
	"docrisk/internal/rules"
	"docrisk/pkg/requestcontext"
	"docrisk/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "decision_audit_events")
	s.Require().NoError(err)
}

func (s *AuditStoreSuite) finalizedTrail() []audit.Event {
	trail := audit.NewTrail()
	s.Require().NoError(trail.AppendRuleEvents(
		rules.Event{
			RuleID: "amount.total_consistency", Source: rules.SourceRules, Severity: rules.SeverityCritical,
			RawWeight: 0.5, AppliedWeight: 0.5, ConfidenceFactor: 1, Message: "printed total disagrees",
			Evidence: rules.NewEvidence(map[string]any{"mismatch_ratio": 0.33, "band": "escalated"}).Build(),
		},
		rules.Event{
			RuleID: "fields.missing", Source: rules.SourceRules, Severity: rules.SeverityInfo,
			ConfidenceFactor: 1, Message: "suppressed", Suppressed: true, SuppressionReason: rules.SuppressedQualityGate,
		},
	))
	ctx := requestcontext.WithTime(context.Background(), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	return trail.Finalize(ctx)
}

func (s *AuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	events := s.finalizedTrail()
	s.Require().NoError(s.store.Append(ctx, "dec-1", events))

	got, err := s.store.ListByDecision(ctx, "dec-1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(events[0].EventID, got[0].EventID)
	s.True(events[0].Timestamp.Equal(got[0].Timestamp))
	s.Equal(audit.TypeRuleFired, got[0].Type)
	s.Equal(rules.SeverityCritical, got[0].Severity)
	s.Equal(0.33, got[0].Evidence["mismatch_ratio"])
	s.Equal("escalated", got[0].Evidence["band"])
	s.True(got[1].Suppressed)
	s.Equal(audit.TypeRuleSuppressed, got[1].Type)
}

func (s *AuditStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	events := s.finalizedTrail()
	s.Require().NoError(s.store.Append(ctx, "dec-2", events))
	s.Require().NoError(s.store.Append(ctx, "dec-2", events))

	got, err := s.store.ListByDecision(ctx, "dec-2")
	s.Require().NoError(err)
	s.Len(got, 2)
}

func (s *AuditStoreSuite) TestUnknownDecision() {
	got, err := s.store.ListByDecision(context.Background(), "missing")
	s.Require().NoError(err)
	s.Empty(got)
}
