// Package scheduler holds the election table and the four peer schedulers
// that feed it: priority (backlog-driven), hinted (vote-cache-driven),
// manual (RPC-driven), and optimistic (frontier-driven).
package scheduler

import (
	"sync"

	"github.com/latticenet/latticenode/block"
)

type election struct {
	hash   block.Hash
	root   block.QualifiedRoot
	active bool
	hinted bool
	votes  map[block.Account]uint64
}

// Table is the bounded set of active elections shared by every scheduler.
// A fixed-size subset of its capacity is reserved for hint-driven
// admissions so a burst of backlog or optimistic offers can never starve
// the hinted scheduler out entirely.
type Table struct {
	mu             sync.Mutex
	capacity       int
	hintedCapacity int

	elections map[block.Hash]*election
	byRoot    map[block.QualifiedRoot]block.Hash

	hintedUsed int
}

// NewTable constructs an empty Table. hintedCapacity must be <= capacity.
func NewTable(capacity, hintedCapacity int) *Table {
	return &Table{
		capacity:       capacity,
		hintedCapacity: hintedCapacity,
		elections:      make(map[block.Hash]*election),
		byRoot:         make(map[block.QualifiedRoot]block.Hash),
	}
}

// Vacancy returns the total number of free election slots.
func (t *Table) Vacancy() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity - len(t.elections)
}

// VacancyHinted returns the free slots still reserved for hint-driven
// admission.
func (t *Table) VacancyHinted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hintedCapacity - t.hintedUsed
}

// Exists reports whether hash already has an election, regardless of
// which scheduler inserted it. This is the single point every scheduler's
// admission policy consults before inserting.
func (t *Table) Exists(hash block.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.elections[hash]
	return ok
}

// Insert admits hash into the table if it is not already present and
// vacancy allows it. hinted elections additionally consume the hinted
// reservation and are rejected once it is exhausted even if general
// vacancy remains.
func (t *Table) Insert(hash block.Hash, root block.QualifiedRoot, hinted bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.elections[hash]; ok {
		return false
	}
	if len(t.elections) >= t.capacity {
		return false
	}
	if hinted && t.hintedUsed >= t.hintedCapacity {
		return false
	}

	t.elections[hash] = &election{hash: hash, root: root, hinted: hinted}
	t.byRoot[root] = hash
	if hinted {
		t.hintedUsed++
	}
	return true
}

// Activate transitions hash's election to active, if present.
func (t *Table) Activate(hash block.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.elections[hash]; ok {
		e.active = true
	}
}

// Active reports whether hash has an election and it is active.
func (t *Table) Active(hash block.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.elections[hash]
	return ok && e.active
}

// Cancel removes hash's election, freeing its slot (and its hinted
// reservation, if it held one).
func (t *Table) Cancel(hash block.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.elections[hash]
	if !ok {
		return
	}
	delete(t.elections, hash)
	delete(t.byRoot, e.root)
	if e.hinted {
		t.hintedUsed--
	}
}

// CancelRoot removes whichever election currently occupies root, if any.
func (t *Table) CancelRoot(root block.QualifiedRoot) {
	t.mu.Lock()
	hash, ok := t.byRoot[root]
	t.mu.Unlock()
	if ok {
		t.Cancel(hash)
	}
}

// ApplyVote records representative's weight against hash's election and
// activates it, if hash currently has one. A vote for a hash with no
// election is dropped; the vote cache, not the table, is the record of
// votes that arrive ahead of admission. Later votes from the same
// representative overwrite its earlier weight rather than accumulate,
// matching calculate_weights' "current weight" semantics.
func (t *Table) ApplyVote(representative block.Account, weight uint64, hash block.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.elections[hash]
	if !ok {
		return
	}
	if e.votes == nil {
		e.votes = make(map[block.Account]uint64)
	}
	e.votes[representative] = weight
	e.active = true
}

// Tally returns the sum of the latest recorded weight from every
// representative that has voted for hash's election. Zero if hash has no
// election or no votes yet.
func (t *Table) Tally(hash block.Hash) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.elections[hash]
	if !ok {
		return 0
	}
	var sum uint64
	for _, weight := range e.votes {
		sum += weight
	}
	return sum
}

// Size returns the number of elections currently held.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.elections)
}
