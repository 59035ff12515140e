package scheduler

import (
	"github.com/latticenet/latticenode/block"
)

// OptimisticScheduler admits frontier blocks speculatively, ahead of any
// vote or balance-weight evidence, so a freshly-extended chain gets a
// chance at confirmation without waiting on the backlog sweep or a vote.
type OptimisticScheduler struct {
	table *Table
}

// NewOptimisticScheduler constructs an OptimisticScheduler backed by
// table.
func NewOptimisticScheduler(table *Table) *OptimisticScheduler {
	return &OptimisticScheduler{table: table}
}

// Offer admits hash/root if it has no election yet and the table has
// vacancy, returning whether it was admitted.
func (s *OptimisticScheduler) Offer(hash block.Hash, root block.QualifiedRoot) bool {
	if s.table.Exists(hash) {
		return false
	}
	if s.table.Vacancy() <= 0 {
		return false
	}
	return s.table.Insert(hash, root, false)
}
