package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store holds one fixed-window counter per identifier.
//
// Increment must be a single atomic step: start a fresh window (count 0,
// reset at now+window) when the identifier is unknown or its reset time has
// passed, then add one. Implementations must be safe for concurrent use.
type Store interface {
	Increment(ctx context.Context, identifier string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)

	// Prune removes entries whose window ended before the cutoff and
	// returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local Store. Counters do not survive restarts and
// are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Increment(_ context.Context, identifier string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[identifier]
	if e == nil || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		s.entries[identifier] = e
	}
	e.count++
	return e.count, e.resetAt, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.resetAt.Before(before) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
