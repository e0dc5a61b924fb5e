package memory

import (
	"context"
	"sync"

	audit "kycflow/pkg/platform/audit"
)

// InMemoryStore keeps events in insertion order. Used by tests and by the
// publisher tests as the backing store.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns matching events newest first along with the total match count.
func (s *InMemoryStore) List(_ context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !filter.UserID.IsNil() && e.UserID != filter.UserID {
			continue
		}
		if !filter.ApplicationID.IsNil() && e.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return append([]audit.Event{}, matched[start:end]...), total, nil
}

// All returns every stored event in insertion order.
func (s *InMemoryStore) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}
