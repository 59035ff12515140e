package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimisticOfferAdmitsFrontierBlock(t *testing.T) {
	table := NewTable(2, 0)
	s := NewOptimisticScheduler(table)

	require.True(t, s.Offer(hashOf(1), rootOf(1)))
	require.True(t, table.Exists(hashOf(1)))
}

func TestOptimisticOfferRejectsDuplicate(t *testing.T) {
	table := NewTable(2, 0)
	s := NewOptimisticScheduler(table)
	s.Offer(hashOf(1), rootOf(1))

	require.False(t, s.Offer(hashOf(1), rootOf(1)))
}

func TestOptimisticOfferRejectsWhenFull(t *testing.T) {
	table := NewTable(1, 0)
	table.Insert(hashOf(9), rootOf(9), false)

	s := NewOptimisticScheduler(table)
	require.False(t, s.Offer(hashOf(1), rootOf(1)))
}
