package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticenet/latticenode/block"
)

func hashOf(b byte) block.Hash {
	var h block.Hash
	h[0] = b
	return h
}

func rootOf(b byte) block.QualifiedRoot {
	return block.QualifiedRoot{Account: hashOf(b), Root: hashOf(b + 100)}
}

func TestTableInsertRejectsDuplicateHash(t *testing.T) {
	table := NewTable(4, 2)
	require.True(t, table.Insert(hashOf(1), rootOf(1), false))
	require.False(t, table.Insert(hashOf(1), rootOf(1), false))
	require.Equal(t, 1, table.Size())
}

func TestTableRejectsOverCapacity(t *testing.T) {
	table := NewTable(1, 1)
	require.True(t, table.Insert(hashOf(1), rootOf(1), false))
	require.False(t, table.Insert(hashOf(2), rootOf(2), false))
}

func TestTableHintedReservationExhausts(t *testing.T) {
	table := NewTable(4, 1)
	require.True(t, table.Insert(hashOf(1), rootOf(1), true))
	require.Equal(t, 0, table.VacancyHinted())
	require.False(t, table.Insert(hashOf(2), rootOf(2), true))
	require.True(t, table.Insert(hashOf(2), rootOf(2), false))
}

func TestTableCancelFreesSlotAndHintedReservation(t *testing.T) {
	table := NewTable(4, 1)
	table.Insert(hashOf(1), rootOf(1), true)
	table.Cancel(hashOf(1))
	require.Equal(t, 0, table.Size())
	require.Equal(t, 1, table.VacancyHinted())
	require.False(t, table.Exists(hashOf(1)))
}

func TestTableCancelRoot(t *testing.T) {
	table := NewTable(4, 1)
	root := rootOf(1)
	table.Insert(hashOf(1), root, false)
	table.CancelRoot(root)
	require.False(t, table.Exists(hashOf(1)))
}

func TestTableActivate(t *testing.T) {
	table := NewTable(4, 1)
	table.Insert(hashOf(1), rootOf(1), false)
	require.False(t, table.Active(hashOf(1)))
	table.Activate(hashOf(1))
	require.True(t, table.Active(hashOf(1)))
}
