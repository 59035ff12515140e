package scheduler

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/util/random"
)

// priorityAlpha is the exponent applied to an account's balance weight
// before it is turned into a selection probability, the same role alpha
// plays in fee-weighted transaction selection: a higher exponent biases
// selection more strongly toward the heaviest candidates.
const priorityAlpha = 3

// Candidate is a backlog entry offered to the priority scheduler: an
// unconfirmed frontier block together with the weight (account balance)
// it should be favored by.
type Candidate struct {
	Hash   block.Hash
	Root   block.QualifiedRoot
	Weight uint64
}

type weightedCandidate struct {
	candidate Candidate
	p         float64
}

// PriorityScheduler admits backlog candidates into the election table by
// a probabilistic weighted lottery over account balance, so heavier
// accounts are proportionally more likely to win a slot under
// contention without starving lighter ones outright.
type PriorityScheduler struct {
	mu         sync.Mutex
	table      *Table
	candidates []Candidate
	rand       *rand.Rand
	maxPending int

	vacancyObservers []func()
}

// NewPriorityScheduler constructs a PriorityScheduler backed by table.
// maxPending bounds the backlog queue; 0 means unbounded.
func NewPriorityScheduler(table *Table, maxPending int) *PriorityScheduler {
	return &PriorityScheduler{
		table:      table,
		rand:       rand.New(rand.NewSource(lotterySeed())),
		maxPending: maxPending,
	}
}

// lotterySeed draws a seed for the weighted lottery from a cryptographic
// source, falling back to the wall clock if that source is ever
// unavailable, so two nodes never draw the same admission sequence.
func lotterySeed() int64 {
	seed, err := random.Uint64()
	if err != nil {
		return time.Now().UnixNano()
	}
	return int64(seed)
}

// OnVacancy registers fn to be called, outside any lock, whenever a Run
// leaves the election table with spare vacancy. The backlog populator
// uses this to re-arm its overflown latch as soon as the scheduler has
// drained enough to accept more, rather than on a fixed timer.
func (s *PriorityScheduler) OnVacancy(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vacancyObservers = append(s.vacancyObservers, fn)
}

// Offer queues a backlog candidate for the next Run, returning false if
// the queue was already at maxPending and the candidate was dropped.
func (s *PriorityScheduler) Offer(c Candidate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxPending > 0 && len(s.candidates) >= s.maxPending {
		return false
	}
	s.candidates = append(s.candidates, c)
	return true
}

// Pending returns the number of candidates still queued.
func (s *PriorityScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

// Run drains queued candidates by weighted lottery until the table's
// vacancy is exhausted or no candidates remain, returning how many were
// admitted. Candidates that lose the lottery stay queued for the next
// Run; candidates already present in the table are discarded outright.
func (s *PriorityScheduler) Run() int {
	s.mu.Lock()

	remaining := make([]Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if !s.table.Exists(c.Hash) {
			remaining = append(remaining, c)
		}
	}
	s.candidates = remaining

	admitted := 0
	for s.table.Vacancy() > 0 && len(s.candidates) > 0 {
		winner, rest := weightedPick(s.candidates, s.rand)
		s.candidates = rest
		if s.table.Insert(winner.Hash, winner.Root, false) {
			admitted++
		}
	}
	observers := append([]func(){}, s.vacancyObservers...)
	s.mu.Unlock()

	if s.table.Vacancy() > 0 {
		for _, fn := range observers {
			fn()
		}
	}
	return admitted
}

func weightedPick(candidates []Candidate, r *rand.Rand) (Candidate, []Candidate) {
	weighted := make([]weightedCandidate, len(candidates))
	total := 0.0
	for i, c := range candidates {
		p := math.Pow(float64(c.Weight)+1, priorityAlpha)
		weighted[i] = weightedCandidate{candidate: c, p: p}
		total += p
	}

	draw := r.Float64() * total
	cursor := 0.0
	for i, w := range weighted {
		cursor += w.p
		if draw < cursor {
			rest := make([]Candidate, 0, len(candidates)-1)
			rest = append(rest, candidates[:i]...)
			rest = append(rest, candidates[i+1:]...)
			return w.candidate, rest
		}
	}

	last := len(candidates) - 1
	return candidates[last], candidates[:last]
}
