// Package weight holds the representative weight snapshot the vote
// processor tiers admission against and the hinted scheduler compares
// vote-cache tallies to. The snapshot is deliberately a plain map swapped
// atomically rather than a long-lived structure: recomputation is cheap
// and callers never observe a partially updated map.
package weight

import (
	"sync/atomic"

	"github.com/latticenet/latticenode/block"
)

// Snapshot is a representative-weight map that can be replaced wholesale
// without locking readers out. It implements voteprocessor.WeightLookup.
type Snapshot struct {
	current atomic.Pointer[map[block.Account]uint64]
}

// NewSnapshot returns an empty Snapshot; every account weighs zero until
// the first Replace.
func NewSnapshot() *Snapshot {
	s := &Snapshot{}
	empty := make(map[block.Account]uint64)
	s.current.Store(&empty)
	return s
}

// Weight implements voteprocessor.WeightLookup.
func (s *Snapshot) Weight(account block.Account) uint64 {
	return (*s.current.Load())[account]
}

// Trended sums every weight currently held. It is the concrete shape
// behind the hinted scheduler's OnlineWeight collaborator: this snapshot
// carries no separate "trend" beyond its latest recomputation.
func (s *Snapshot) Trended() uint64 {
	var total uint64
	for _, w := range *s.current.Load() {
		total += w
	}
	return total
}

// Replace atomically swaps in a freshly recomputed weight map.
func (s *Snapshot) Replace(weights map[block.Account]uint64) {
	if weights == nil {
		weights = make(map[block.Account]uint64)
	}
	s.current.Store(&weights)
}

// Size returns the number of accounts in the current snapshot, including
// zero-weight ones, for the status RPC.
func (s *Snapshot) Size() int {
	return len(*s.current.Load())
}

// BalanceSource is the store-shaped collaborator RecomputeFromBalances
// pulls a fresh snapshot from.
type BalanceSource interface {
	AllBalances() map[block.Account]uint64
}

// RecomputeFromBalances replaces s with each account's own balance as its
// weight. This is a stand-in for full representative-delegation
// aggregation: the store keeps no delegation index, and computing one is
// ledger consensus machinery explicitly out of scope for this
// implementation. Every account is treated as delegating to itself.
func RecomputeFromBalances(s *Snapshot, source BalanceSource) {
	balances := source.AllBalances()
	s.Replace(balances)
	log.Debugf("recomputed weight snapshot from %d account balances", len(balances))
}
