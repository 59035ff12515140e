package scheduler

import (
	"github.com/latticenet/latticenode/block"
)

// ManualScheduler admits blocks named explicitly by an external trigger
// (the RPC surface's manual-election request), bypassing every weighting
// policy the other schedulers apply.
type ManualScheduler struct {
	table *Table
}

// NewManualScheduler constructs a ManualScheduler backed by table.
func NewManualScheduler(table *Table) *ManualScheduler {
	return &ManualScheduler{table: table}
}

// Trigger admits hash/root into the election table, returning false if it
// already has an election or the table has no vacancy.
func (s *ManualScheduler) Trigger(hash block.Hash, root block.QualifiedRoot) bool {
	if s.table.Exists(hash) {
		return false
	}
	if s.table.Vacancy() <= 0 {
		return false
	}
	if s.table.Insert(hash, root, false) {
		s.table.Activate(hash)
		return true
	}
	return false
}
