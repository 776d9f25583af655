package signals_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"docrisk/internal/signals"
	dErrors "docrisk/pkg/domain-errors"
)

type RegistrySuite struct {
	suite.Suite
	reg *signals.Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	reg, err := signals.NewDefault()
	s.Require().NoError(err)
	s.reg = reg
}

func (s *RegistrySuite) TestCatalogue() {
	s.Run("every catalogue entry is registered", func() {
		for _, spec := range signals.Catalogue() {
			s.True(s.reg.IsAllowed(spec.Name), spec.Name)
		}
		s.Len(s.reg.Names(), len(signals.Catalogue()))
	})

	s.Run("domain is derived from the name", func() {
		spec, ok := s.reg.Lookup(signals.TotalMismatch)
		s.Require().True(ok)
		s.Equal("amount", spec.Domain)
		s.Equal(signals.TierStrong, spec.SeverityTier)
	})

	s.Run("by domain is sorted by name", func() {
		specs := s.reg.ByDomain("tamper")
		s.Require().Len(specs, 3)
		s.Equal(signals.FontInconsistency, specs[0].Name)
		s.Equal(signals.MetadataEditor, specs[1].Name)
		s.Equal(signals.PixelSplice, specs[2].Name)
	})

	s.Run("lookup returns a copy", func() {
		spec, _ := s.reg.Lookup(signals.TotalMismatch)
		spec.GatedBy[0] = "tampered"
		again, _ := s.reg.Lookup(signals.TotalMismatch)
		s.NotEqual("tampered", again.GatedBy[0])
	})
}

func (s *RegistrySuite) TestRegisterInvariants() {
	s.Run("frozen registry rejects registration", func() {
		err := s.reg.Register(signals.Spec{Name: "amount.new_feature"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects duplicates", func() {
		reg := signals.NewRegistry("test")
		s.Require().NoError(reg.Register(signals.Spec{Name: "amount.a"}))
		err := reg.Register(signals.Spec{Name: "amount.a"})
		s.Require().Error(err)
		s.Contains(err.Error(), "twice")
	})

	s.Run("rejects names without a domain", func() {
		reg := signals.NewRegistry("test")
		err := reg.Register(signals.Spec{Name: "nodomain"})
		s.Require().Error(err)
		s.Contains(err.Error(), "domain.feature")
	})

	s.Run("rejects conflicting domain", func() {
		reg := signals.NewRegistry("test")
		err := reg.Register(signals.Spec{Name: "amount.a", Domain: "date"})
		s.Require().Error(err)
	})
}

func (s *RegistrySuite) TestValidateEmission() {
	s.NoError(s.reg.ValidateEmission(signals.TotalMismatch))

	err := s.reg.ValidateEmission("amount.invented")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSchemaViolation))
}

func (s *RegistrySuite) TestValidateBag() {
	valid := signals.Signal{
		Name:       signals.TotalMismatch,
		Status:     signals.StatusTriggered,
		Confidence: 0.9,
		Evidence:   map[string]any{"mismatch_ratio": 0.33, "line_items": 4, "rounded": false, "currency": "EUR"},
	}

	cases := []struct {
		name string
		bag  signals.Bag
		want string
	}{
		{name: "unregistered name", bag: signals.NewBag(signals.Signal{Name: "amount.invented", Status: signals.StatusTriggered}), want: "not registered"},
		{name: "key differs from name", bag: signals.Bag{signals.TaxMismatch: valid}, want: "does not match"},
		{name: "unknown status", bag: signals.NewBag(signals.Signal{Name: signals.TotalMismatch, Status: "MAYBE"}), want: "unknown status"},
		{name: "confidence above one", bag: signals.NewBag(signals.Signal{Name: signals.TotalMismatch, Status: signals.StatusTriggered, Confidence: 1.2}), want: "confidence"},
		{name: "confidence NaN", bag: signals.NewBag(signals.Signal{Name: signals.TotalMismatch, Status: signals.StatusTriggered, Confidence: math.NaN()}), want: "confidence"},
		{name: "gated without declared reason", bag: signals.NewBag(signals.Signal{Name: signals.TotalMismatch, Status: signals.StatusGated, GatingReason: "felt_like_it"}), want: "undeclared reason"},
		{name: "free text evidence", bag: signals.NewBag(signals.Signal{Name: signals.TotalMismatch, Status: signals.StatusTriggered, Evidence: map[string]any{"note": strings.Repeat("x", 65)}}), want: "not a primitive"},
		{name: "nested evidence", bag: signals.NewBag(signals.Signal{Name: signals.TotalMismatch, Status: signals.StatusTriggered, Evidence: map[string]any{"items": []int{1}}}), want: "not a primitive"},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			err := s.reg.ValidateBag(tc.bag)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeSchemaViolation))
			s.Contains(err.Error(), tc.want)
		})
	}

	s.Run("accepts a well formed bag", func() {
		gated := signals.Signal{Name: signals.TaxMismatch, Status: signals.StatusGated, GatingReason: signals.GateLowOCRQuality}
		s.NoError(s.reg.ValidateBag(signals.NewBag(valid, gated)))
	})

	s.Run("every strong signal declares a gating reason", func() {
		for _, spec := range signals.Catalogue() {
			if spec.SeverityTier != signals.TierStrong {
				continue
			}
			s.Require().NotEmpty(spec.GatedBy, spec.Name)
			gated := signals.Signal{Name: spec.Name, Status: signals.StatusGated, GatingReason: spec.GatedBy[0]}
			s.NoError(s.reg.ValidateBag(signals.NewBag(gated)), spec.Name)
		}
	})

	s.Run("metadata editor can be gated when the model is down", func() {
		gated := signals.Signal{Name: signals.MetadataEditor, Status: signals.StatusGated, GatingReason: signals.GateModelUnavailable}
		s.NoError(s.reg.ValidateBag(signals.NewBag(gated)))
	})
}

func (s *RegistrySuite) TestView() {
	bag := signals.NewBag(signals.Signal{Name: signals.TotalMismatch, Status: signals.StatusTriggered, Confidence: 0.7})
	view := s.reg.View(bag)

	s.Equal(signals.StatusTriggered, view.Get(signals.TotalMismatch).Status)
	s.Equal(signals.StatusUnknown, view.Get(signals.TaxMismatch).Status, "absent signals read as unknown")
	s.Equal(signals.StatusUnknown, view.Get("amount.invented").Status)
}

func (s *RegistrySuite) TestProfileValidate() {
	s.NoError(signals.DefaultProfile().Validate())
	s.NoError(signals.Profile{Confidence: 1}.Validate())
	for _, conf := range []float64{math.NaN(), math.Inf(1), -0.01, 1.01} {
		err := signals.Profile{Family: "receipt", Confidence: conf}.Validate()
		s.Require().Error(err, "%v", conf)
		s.True(dErrors.HasCode(err, dErrors.CodeSchemaViolation))
	}
}
