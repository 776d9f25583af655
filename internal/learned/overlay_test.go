package learned_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"docrisk/internal/learned"
	"docrisk/internal/policy"
	"docrisk/internal/rules"
	"docrisk/internal/signals"
)

type OverlaySuite struct {
	suite.Suite
	reg     *signals.Registry
	store   *learned.Store
	overlay *learned.Overlay
	version int64
}

func TestOverlaySuite(t *testing.T) {
	suite.Run(t, new(OverlaySuite))
}

func (s *OverlaySuite) SetupTest() {
	s.reg = signals.MustDefault()
	s.store = learned.NewStore(learned.WithRegistry(s.reg))
	s.overlay = learned.NewOverlay(s.store)
	s.version = 0
}

func (s *OverlaySuite) publish(rs ...learned.Rule) {
	s.version++
	s.Require().NoError(s.store.Publish(context.Background(), learned.Snapshot{Version: s.version, Rules: rs}))
}

func (s *OverlaySuite) request(profileConf, base float64, names ...string) learned.Request {
	sigs := make([]signals.Signal, 0, len(names))
	for _, n := range names {
		sigs = append(sigs, signals.Signal{Name: n, Status: signals.StatusTriggered, Confidence: 0.9})
	}
	return learned.Request{
		Signals:   s.reg.View(signals.NewBag(sigs...)),
		Profile:   signals.Profile{Family: "receipt", Confidence: profileConf},
		Policy:    policy.Default(),
		BaseScore: base,
		Factor:    1.0,
	}
}

func (s *OverlaySuite) applied(res learned.Result) []rules.Event {
	var out []rules.Event
	for _, ev := range res.Events {
		s.Require().NoError(ev.Validate())
		if !ev.Suppressed {
			out = append(out, ev)
		}
	}
	return out
}

func (s *OverlaySuite) TestSingleSignalMatches() {
	s.Run("two rules each matching one distinct signal contribute nothing", func() {
		s.publish(
			rule("total-only", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch),
			rule("font-only", learned.ActionIncreaseWeight, 0.1, signals.FontInconsistency),
		)
		res := s.overlay.Apply(s.request(0.9, 0.3, signals.TotalMismatch, signals.FontInconsistency))

		s.Equal(0.0, res.Delta)
		s.Require().Len(res.Events, 2)
		for _, ev := range res.Events {
			s.True(ev.Suppressed)
			s.Equal(rules.SuppressedRejected, ev.SuppressionReason)
			s.Equal(rules.SourceLearned, ev.Source)
			s.Zero(ev.Contribution())
		}
	})

	s.Run("partial match of a min-match pattern on one signal is rejected", func() {
		r := rule("any-of", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch, signals.TaxMismatch)
		r.Pattern.MinMatch = 1
		s.publish(r)
		res := s.overlay.Apply(s.request(0.9, 0.3, signals.TotalMismatch))

		s.Equal(0.0, res.Delta)
		s.Require().Len(res.Events, 1)
		s.Equal(rules.SuppressedRejected, res.Events[0].SuppressionReason)
	})

	s.Run("external corroboration admits a single signal", func() {
		s.publish(rule("total-only", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch))
		req := s.request(0.9, 0.3, signals.TotalMismatch)
		req.Corroborated = true
		res := s.overlay.Apply(req)

		s.InDelta(0.1, res.Delta, 1e-9)
	})
}

func (s *OverlaySuite) TestMatching() {
	s.Run("unmatched patterns abstain silently", func() {
		s.publish(rule("pair", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch, signals.TaxMismatch))
		res := s.overlay.Apply(s.request(0.9, 0, signals.FutureDated))
		s.Empty(res.Events)
		s.Zero(res.Delta)
	})

	s.Run("disabled rules are skipped", func() {
		r := rule("pair", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch, signals.TaxMismatch)
		r.Enabled = false
		s.publish(r)
		res := s.overlay.Apply(s.request(0.9, 0, signals.TotalMismatch, signals.TaxMismatch))
		s.Empty(res.Events)
	})

	s.Run("two correlated signals raise the score", func() {
		s.publish(rule("pair", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch, signals.TaxMismatch))
		req := s.request(0.9, 0.3, signals.TotalMismatch, signals.TaxMismatch)
		req.Factor = 0.85
		res := s.overlay.Apply(req)

		evs := s.applied(res)
		s.Require().Len(evs, 1)
		s.Equal("learned.pair", evs[0].RuleID)
		s.Equal(rules.SeverityWarning, evs[0].Severity)
		s.InDelta(0.085, evs[0].AppliedWeight, 1e-9)
		s.InDelta(0.085, res.Delta, 1e-9)
		v, ok := evs[0].Evidence.Get("snapshot_version")
		s.True(ok)
		s.Equal(res.SnapshotVersion, v)
	})

	s.Run("rules below the accuracy or feedback floor are not applied", func() {
		weak := rule("weak", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch, signals.TaxMismatch)
		weak.AccuracyEstimate = 0.5
		fresh := rule("fresh", learned.ActionIncreaseWeight, 0.1, signals.TotalMismatch, signals.TaxMismatch)
		fresh.FeedbackCount = 1
		s.publish(weak, fresh)
		res := s.overlay.Apply(s.request(0.9, 0.3, signals.TotalMismatch, signals.TaxMismatch))

		s.Zero(res.Delta)
		s.Len(res.Events, 2)
		s.Empty(s.applied(res))
	})

	s.Run("add_check surfaces a zero-weight recommendation", func() {
		s.publish(rule("check", learned.ActionAddCheck, 0.1, signals.MissingTaxID, signals.MerchantUnverifiable))
		res := s.overlay.Apply(s.request(0.9, 0.3, signals.MissingTaxID, signals.MerchantUnverifiable))

		evs := s.applied(res)
		s.Require().Len(evs, 1)
		s.Equal(rules.SeverityInfo, evs[0].Severity)
		s.Zero(evs[0].AppliedWeight)
		s.Contains(evs[0].Message, "recommended check")
		s.Zero(res.Delta)
	})
}

func (s *OverlaySuite) TestLowQualityProfile() {
	s.Run("dampens then clamps the net contribution", func() {
		s.publish(rule("pair", learned.ActionIncreaseWeight, 0.15, signals.TotalMismatch, signals.TaxMismatch))
		res := s.overlay.Apply(s.request(0.3, 0.3, signals.TotalMismatch, signals.TaxMismatch))
		s.InDelta(0.05, res.Delta, 1e-9)
	})

	s.Run("dampening below the clamp is kept", func() {
		s.publish(rule("pair", learned.ActionIncreaseWeight, 0.06, signals.TotalMismatch, signals.TaxMismatch))
		req := s.request(0.3, 0.3, signals.TotalMismatch, signals.TaxMismatch)
		req.Factor = 0.85
		res := s.overlay.Apply(req)
		s.InDelta(0.06*0.85*0.65, res.Delta, 1e-9)
	})

	s.Run("mitigation is clamped too", func() {
		s.publish(rule("pair", learned.ActionDecreaseWeight, 0.15, signals.TotalMismatch, signals.TaxMismatch))
		res := s.overlay.Apply(s.request(0.3, 0.5, signals.TotalMismatch, signals.TaxMismatch))
		s.InDelta(-0.05, res.Delta, 1e-9)
	})

	s.Run("missing-field class is gated", func() {
		r := rule("fields", learned.ActionIncreaseWeight, 0.1, signals.MissingTotal, signals.MissingDate)
		r.Pattern.Class = learned.ClassMissingField
		s.publish(r)
		res := s.overlay.Apply(s.request(0.3, 0.3, signals.MissingTotal, signals.MissingDate))

		s.Zero(res.Delta)
		s.Require().Len(res.Events, 1)
		s.Equal(rules.SuppressedQualityGate, res.Events[0].SuppressionReason)
	})
}

func (s *OverlaySuite) TestCaps() {
	s.Run("per-rule adjustment is capped", func() {
		s.publish(rule("big", learned.ActionIncreaseWeight, 0.9, signals.TotalMismatch, signals.TaxMismatch))
		res := s.overlay.Apply(s.request(0.9, 0.3, signals.TotalMismatch, signals.TaxMismatch))
		s.InDelta(0.15, res.Delta, 1e-9)
	})

	s.Run("total learned delta is capped", func() {
		s.publish(
			rule("a", learned.ActionIncreaseWeight, 0.15, signals.TotalMismatch, signals.TaxMismatch),
			rule("b", learned.ActionIncreaseWeight, 0.15, signals.TotalMismatch, signals.FutureDated),
			rule("c", learned.ActionIncreaseWeight, 0.15, signals.TaxMismatch, signals.FutureDated),
		)
		res := s.overlay.Apply(s.request(0.9, 0.3, signals.TotalMismatch, signals.TaxMismatch, signals.FutureDated))

		s.InDelta(0.20, res.Delta, 1e-9)
		evs := s.applied(res)
		s.Require().Len(evs, 3)
		s.InDelta(0.05, evs[1].AppliedWeight, 1e-9)
		capped, _ := evs[1].Evidence.Get("capped")
		s.Equal(true, capped)
		s.Zero(evs[2].AppliedWeight)
	})

	s.Run("mitigation never drives the score below zero", func() {
		s.publish(rule("calm", learned.ActionDecreaseWeight, 0.15, signals.TotalMismatch, signals.TaxMismatch))
		res := s.overlay.Apply(s.request(0.9, 0.04, signals.TotalMismatch, signals.TaxMismatch))

		s.InDelta(-0.04, res.Delta, 1e-9)
		evs := s.applied(res)
		s.Require().Len(evs, 1)
		s.True(evs[0].Mitigating)
		s.InDelta(-0.04, evs[0].Contribution(), 1e-9)
	})
}

func TestOverlayReadsOneSnapshotPerDecision(t *testing.T) {
	reg := signals.MustDefault()
	store := learned.NewStore(learned.WithRegistry(reg))
	overlay := learned.NewOverlay(store)
	ctx := context.Background()

	bag := signals.NewBag(
		signals.Signal{Name: signals.TotalMismatch, Status: signals.StatusTriggered, Confidence: 0.9},
		signals.Signal{Name: signals.TaxMismatch, Status: signals.StatusTriggered, Confidence: 0.9},
	)
	req := learned.Request{
		Signals: reg.View(bag),
		Profile: signals.Profile{Confidence: 0.9},
		Policy:  policy.Default(),
		Factor:  1.0,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for v := int64(1); v <= 100; v++ {
			rs := []learned.Rule{
				rule("a", learned.ActionIncreaseWeight, 0.05, signals.TotalMismatch, signals.TaxMismatch),
				rule("b", learned.ActionIncreaseWeight, 0.05, signals.TotalMismatch, signals.TaxMismatch),
			}
			assert.NoError(t, store.Publish(ctx, learned.Snapshot{Version: v, Rules: rs}))
		}
	}()

	for range 200 {
		res := overlay.Apply(req)
		for _, ev := range res.Events {
			v, ok := ev.Evidence.Get("snapshot_version")
			require.True(t, ok)
			require.Equal(t, res.SnapshotVersion, v)
		}
		if res.SnapshotVersion > 0 {
			require.Len(t, res.Events, 2)
		}
	}
	wg.Wait()
}
