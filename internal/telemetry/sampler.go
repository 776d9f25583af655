package telemetry

import (
	"math/rand/v2"
	"sync"
)

// Sampler thins out traces by decision label. Labels without an explicit
// rate use the default.
type Sampler struct {
	mu          sync.RWMutex
	defaultRate float64
	byLabel     map[string]float64
	draw        func() float64
}

// NewSampler creates a sampler keeping defaultRate of traces.
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate: clampRate(defaultRate),
		byLabel:     make(map[string]float64),
		draw:        rand.Float64, //nolint:gosec // sampling does not need crypto rand
	}
}

// SetRate overrides the rate for one label.
func (s *Sampler) SetRate(label string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byLabel[label] = clampRate(rate)
}

// Keep reports whether a trace with this label should be published.
func (s *Sampler) Keep(label string) bool {
	s.mu.RLock()
	rate, ok := s.byLabel[label]
	if !ok {
		rate = s.defaultRate
	}
	s.mu.RUnlock()

	switch rate {
	case 0:
		return false
	case 1:
		return true
	}
	return s.draw() < rate
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
