package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriorityRunAdmitsUpToVacancy(t *testing.T) {
	table := NewTable(2, 0)
	s := NewPriorityScheduler(table, 0)
	s.Offer(Candidate{Hash: hashOf(1), Root: rootOf(1), Weight: 10})
	s.Offer(Candidate{Hash: hashOf(2), Root: rootOf(2), Weight: 5})
	s.Offer(Candidate{Hash: hashOf(3), Root: rootOf(3), Weight: 1})

	admitted := s.Run()
	require.Equal(t, 2, admitted)
	require.Equal(t, 0, table.Vacancy())
	require.Equal(t, 1, s.Pending())
}

func TestPriorityOfferAlreadyInTableIsDiscarded(t *testing.T) {
	table := NewTable(4, 0)
	table.Insert(hashOf(1), rootOf(1), false)

	s := NewPriorityScheduler(table, 0)
	s.Offer(Candidate{Hash: hashOf(1), Root: rootOf(1), Weight: 10})
	s.Offer(Candidate{Hash: hashOf(2), Root: rootOf(2), Weight: 10})

	admitted := s.Run()
	require.Equal(t, 1, admitted)
	require.Equal(t, 0, s.Pending())
}

func TestPriorityOnVacancyFiresWhenSlotsRemainAfterRun(t *testing.T) {
	table := NewTable(4, 0)
	s := NewPriorityScheduler(table, 0)

	fired := false
	s.OnVacancy(func() { fired = true })
	s.Offer(Candidate{Hash: hashOf(1), Root: rootOf(1), Weight: 10})

	s.Run()
	require.True(t, fired)
}

func TestPriorityOnVacancyDoesNotFireWhenFull(t *testing.T) {
	table := NewTable(1, 0)
	s := NewPriorityScheduler(table, 0)

	fired := false
	s.OnVacancy(func() { fired = true })
	s.Offer(Candidate{Hash: hashOf(1), Root: rootOf(1), Weight: 10})
	s.Offer(Candidate{Hash: hashOf(2), Root: rootOf(2), Weight: 10})

	s.Run()
	require.False(t, fired)
}

func TestPriorityRunNoVacancyLeavesCandidatesQueued(t *testing.T) {
	table := NewTable(1, 0)
	table.Insert(hashOf(9), rootOf(9), false)

	s := NewPriorityScheduler(table, 0)
	s.Offer(Candidate{Hash: hashOf(1), Root: rootOf(1), Weight: 10})

	admitted := s.Run()
	require.Equal(t, 0, admitted)
	require.Equal(t, 1, s.Pending())
}
