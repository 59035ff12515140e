// Package unchecked names the side table the block processor feeds blocks
// into when they are missing a dependency, and that it drains from once
// that dependency lands. It is an external collaborator: this package
// ships an in-memory implementation, but the block processor only ever
// depends on the Store interface.
package unchecked

import (
	"sync"

	"github.com/latticenet/latticenode/block"
)

// Store holds blocks that are waiting on a dependency hash to appear on
// the ledger.
type Store interface {
	// Put persists blk under key: the dependency it is waiting on.
	Put(key block.Hash, blk *block.Block)

	// Trigger removes and returns every block waiting on key.
	Trigger(key block.Hash) []*block.Block
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu      sync.Mutex
	waiting map[block.Hash][]*block.Block
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{waiting: make(map[block.Hash][]*block.Block)}
}

// Put implements Store.
func (m *MemStore) Put(key block.Hash, blk *block.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waiting[key] = append(m.waiting[key], blk)
}

// Trigger implements Store.
func (m *MemStore) Trigger(key block.Hash) []*block.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	blocks := m.waiting[key]
	delete(m.waiting, key)
	return blocks
}

// Size returns the number of distinct dependency keys currently tracked,
// for status reporting.
func (m *MemStore) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}
