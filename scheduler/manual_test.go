package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManualTriggerAdmitsAndActivates(t *testing.T) {
	table := NewTable(2, 0)
	s := NewManualScheduler(table)

	require.True(t, s.Trigger(hashOf(1), rootOf(1)))
	require.True(t, table.Active(hashOf(1)))
}

func TestManualTriggerRejectsExisting(t *testing.T) {
	table := NewTable(2, 0)
	table.Insert(hashOf(1), rootOf(1), false)

	s := NewManualScheduler(table)
	require.False(t, s.Trigger(hashOf(1), rootOf(1)))
}

func TestManualTriggerRejectsWhenFull(t *testing.T) {
	table := NewTable(1, 0)
	table.Insert(hashOf(9), rootOf(9), false)

	s := NewManualScheduler(table)
	require.False(t, s.Trigger(hashOf(1), rootOf(1)))
}
