package sequence

import (
	"context"
	"sync"
)

// MemoryStore is an in-process CounterStore for unit tests; the binaries
// always use PGCounterStore. Snapshot and Restore let test fakes emulate
// transaction rollback.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]Counter
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: map[string]Counter{}}
}

// LoadCounter implements CounterReader.
func (m *MemoryStore) LoadCounter(_ context.Context, id string) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[id]
	if !ok {
		return Counter{}, ErrCounterNotFound
	}
	return clone(c), nil
}

// SaveCounter implements CounterStore.
func (m *MemoryStore) SaveCounter(_ context.Context, counter Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[counter.ID] = clone(counter)
	return nil
}

// Snapshot copies the current state.
func (m *MemoryStore) Snapshot() map[string]Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Counter, len(m.counters))
	for id, c := range m.counters {
		out[id] = clone(c)
	}
	return out
}

// Restore replaces the state with a snapshot.
func (m *MemoryStore) Restore(snap map[string]Counter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]Counter, len(snap))
	for id, c := range snap {
		m.counters[id] = clone(c)
	}
}

func clone(c Counter) Counter {
	counts := make(map[int]int64, len(c.YearlyCounts))
	for y, n := range c.YearlyCounts {
		counts[y] = n
	}
	return Counter{ID: c.ID, YearlyCounts: counts}
}
