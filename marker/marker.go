// Package marker persists the last handled crossover. The stored marker is
// the sole guard against double-executing a crossover across restarts, so
// writes must be durable before the next tick runs.
package marker

import (
	"sync"

	"github.com/finbeat/macdbot/signal"
)

// Marker records the most recently acted-upon crossover.
type Marker struct {
	Timestamp int64
	Kind      signal.Kind
	Outcome   signal.Status
}

// Store loads and saves the marker. Save must be atomic with respect to a
// process crash: the previous marker or the new one, never a torn write.
type Store interface {
	// Load returns the stored marker and whether one exists.
	Load() (Marker, bool, error)
	Save(Marker) error
}

// MemoryStore is a non-durable Store for backtests and paper trading.
type MemoryStore struct {
	mu  sync.Mutex
	m   Marker
	set bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Marker, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m, s.set, nil
}

func (s *MemoryStore) Save(m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m
	s.set = true
	return nil
}
