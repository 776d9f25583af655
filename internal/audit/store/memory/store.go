package memory

import (
	"context"
	"sync"

	"docrisk/internal/audit"
)

// InMemoryStore keeps audit events per decision. Appends are idempotent on event id.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	seen   map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[string][]audit.Event),
		seen:   make(map[string]struct{}),
	}
}

func (s *InMemoryStore) Append(_ context.Context, decisionID string, events []audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if _, dup := s.seen[ev.EventID]; dup {
			continue
		}
		s.seen[ev.EventID] = struct{}{}
		s.events[decisionID] = append(s.events[decisionID], ev)
	}
	return nil
}

func (s *InMemoryStore) ListByDecision(_ context.Context, decisionID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[decisionID]...), nil
}

// Clear drops every stored event.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
	s.seen = make(map[string]struct{})
}
