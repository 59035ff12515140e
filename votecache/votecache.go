// Package votecache holds the tallied voting weight behind block hashes
// the node has seen votes for, which the vote processor feeds and the
// hinted scheduler reads back, and the per-root history of the latest
// vote seen from each representative, whose roots the block processor
// erases on rollback.
package votecache

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/latticenet/latticenode/block"
)

type entry struct {
	hash  block.Hash
	tally uint64
}

func less(a, b entry) bool {
	if a.tally != b.tally {
		return a.tally > b.tally
	}
	return bytes.Compare(a.hash[:], b.hash[:]) < 0
}

// Cache tallies accumulated voting weight per block hash, ordered
// descending by tally so the highest-weight entry can be peeked or popped
// in O(log n).
type Cache struct {
	mu      sync.Mutex
	tree    *btree.BTreeG[entry]
	byHash  map[block.Hash]entry
	maxSize int
}

// New constructs an empty Cache that evicts its lowest-tally entry once it
// would grow past maxSize.
func New(maxSize int) *Cache {
	return &Cache{
		tree:    btree.NewG(32, less),
		byHash:  make(map[block.Hash]entry),
		maxSize: maxSize,
	}
}

// Add accumulates weight onto hash's tally, inserting a new entry if hash
// is unseen. If the cache is over capacity afterward, the lowest-tally
// entry is evicted.
func (c *Cache) Add(hash block.Hash, weight uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byHash[hash]; ok {
		c.tree.Delete(existing)
		existing.tally += weight
		c.byHash[hash] = existing
		c.tree.ReplaceOrInsert(existing)
		return
	}

	e := entry{hash: hash, tally: weight}
	c.byHash[hash] = e
	c.tree.ReplaceOrInsert(e)

	if c.maxSize > 0 && c.tree.Len() > c.maxSize {
		if worst, ok := c.tree.Max(); ok {
			c.tree.Delete(worst)
			delete(c.byHash, worst.hash)
		}
	}
}

// Peek returns the highest-tally entry without removing it, if its tally
// is at least minimumTally.
func (c *Cache) Peek(minimumTally uint64) (hash block.Hash, tally uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	top, found := c.tree.Min()
	if !found || top.tally < minimumTally {
		return block.Hash{}, 0, false
	}
	return top.hash, top.tally, true
}

// Pop removes and returns the highest-tally entry, if its tally is at
// least minimumTally.
func (c *Cache) Pop(minimumTally uint64) (hash block.Hash, tally uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	top, found := c.tree.Min()
	if !found || top.tally < minimumTally {
		return block.Hash{}, 0, false
	}
	c.tree.Delete(top)
	delete(c.byHash, top.hash)
	return top.hash, top.tally, true
}

// Erase removes hash's entry entirely, if present.
func (c *Cache) Erase(hash block.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byHash[hash]
	if !ok {
		return
	}
	c.tree.Delete(e)
	delete(c.byHash, hash)
}

// Size returns the number of tallied entries currently cached.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Len()
}

// History tracks, per qualified root, the most recent vote timestamp seen
// from each representative; Observe reports whether a vote is newer than
// the one on file. The vote processor does not consult it.
type History struct {
	mu     sync.Mutex
	byRoot map[block.QualifiedRoot]map[block.Account]uint64
}

// NewHistory constructs an empty History.
func NewHistory() *History {
	return &History{byRoot: make(map[block.QualifiedRoot]map[block.Account]uint64)}
}

// Observe records that representative voted for root at timestamp,
// returning false without recording if a vote from the same
// representative at a timestamp at least as recent is already on file.
func (h *History) Observe(root block.QualifiedRoot, representative block.Account, timestamp uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	byRep, ok := h.byRoot[root]
	if !ok {
		byRep = make(map[block.Account]uint64)
		h.byRoot[root] = byRep
	}
	if last, seen := byRep[representative]; seen && last >= timestamp {
		return false
	}
	byRep[representative] = timestamp
	return true
}

// EraseRoot drops all recorded vote history for root, as happens when the
// block occupying that root is rolled back.
func (h *History) EraseRoot(root block.QualifiedRoot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byRoot, root)
}
