package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStock is an in-process StockTx for unit tests of this and dependent
// packages; the binaries always use PGStockTx. Like the database CHECK it
// refuses a delta that would take stock below zero. Snapshot and Restore let
// test fakes emulate rollback.
type MemoryStock struct {
	mu        sync.Mutex
	items     map[uuid.UUID]Item
	movements []Movement
}

// NewMemoryStock seeds a store with items.
func NewMemoryStock(items ...Item) *MemoryStock {
	m := &MemoryStock{items: make(map[uuid.UUID]Item, len(items))}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

// Put inserts or replaces an item.
func (m *MemoryStock) Put(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// Item returns the stored item.
func (m *MemoryStock) Item(id uuid.UUID) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	return it, ok
}

// All returns every stored item.
func (m *MemoryStock) All() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out
}

// Movements returns the applied movements in order.
func (m *MemoryStock) Movements() []Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Movement(nil), m.movements...)
}

// LockItems implements StockTx.
func (m *MemoryStock) LockItems(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]Item, len(ids))
	for _, id := range UniqueIDs(ids) {
		it, ok := m.items[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		out[id] = it
	}
	return out, nil
}

// ApplyStockDelta implements StockTx.
func (m *MemoryStock) ApplyStockDelta(_ context.Context, mv Movement) error {
	if mv.Delta == 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[mv.ItemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, mv.ItemID)
	}
	if it.Stock+mv.Delta < -1e-9 {
		return fmt.Errorf("inventory: stock for %s would go negative", it.Code)
	}
	it.Stock += mv.Delta
	m.items[it.ID] = it
	m.movements = append(m.movements, mv)
	return nil
}

// MemorySnapshot is a copy of MemoryStock state.
type MemorySnapshot struct {
	items     map[uuid.UUID]Item
	movements []Movement
}

// Snapshot copies the current state.
func (m *MemoryStock) Snapshot() MemorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make(map[uuid.UUID]Item, len(m.items))
	for id, it := range m.items {
		items[id] = it
	}
	return MemorySnapshot{items: items, movements: append([]Movement(nil), m.movements...)}
}

// Restore replaces the state with a snapshot.
func (m *MemoryStock) Restore(s MemorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[uuid.UUID]Item, len(s.items))
	for id, it := range s.items {
		m.items[id] = it
	}
	m.movements = append([]Movement(nil), s.movements...)
}
