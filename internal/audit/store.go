package audit

import (
	"context"
	"sync"
)

// Store persists audit events. Implementations must be safe for concurrent
// use and should swallow their own failures after logging them.
type Store interface {
	Record(ctx context.Context, ev Event)
}

// MemoryStore keeps events in memory. Used in tests and as the fallback
// when the audit stream is disabled.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends the event.
func (s *MemoryStore) Record(_ context.Context, ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns recorded events matching the given type.
func (s *MemoryStore) OfType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
