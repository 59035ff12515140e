// Package frontierscan partitions the 256-bit account space into equal
// ranges and explores each one independently. The scanner only tracks
// per-range progress through Next and Process; it does not hand
// candidates to any scheduler itself.
package frontierscan

import (
	"bytes"
	"math/big"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/latticenet/latticenode/block"
)

func accountLess(a, b block.Account) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func toBig(a block.Account) *big.Int {
	return new(big.Int).SetBytes(a[:])
}

func fromBig(i *big.Int) block.Account {
	var a block.Account
	b := i.Bytes()
	copy(a[32-len(b):], b)
	return a
}

// Entry is one (account, hash) pair returned by a peer in response to a
// frontier request.
type Entry struct {
	Account block.Account
	Hash    block.Hash
}

type head struct {
	start, end block.Account
	next       block.Account

	requests  int
	completed int
	timestamp time.Time

	candidates *btree.BTreeG[block.Account]
}

// Scanner explores the account space by partitioning it into
// head_parallelism equal ranges and independently walking each.
type Scanner struct {
	mu    sync.Mutex
	heads []*head

	considerationCount int
	candidatesTarget   int
	cooldown           time.Duration

	now func() time.Time
}

// New constructs a Scanner with headParallelism equal account-space
// partitions.
func New(headParallelism, considerationCount, candidatesTarget int, cooldown time.Duration) *Scanner {
	s := &Scanner{
		considerationCount: considerationCount,
		candidatesTarget:   candidatesTarget,
		cooldown:           cooldown,
		now:                time.Now,
	}

	total := new(big.Int).Lsh(big.NewInt(1), 256)
	step := new(big.Int).Div(total, big.NewInt(int64(headParallelism)))

	cursor := big.NewInt(0)
	for i := 0; i < headParallelism; i++ {
		start := new(big.Int).Set(cursor)
		var end *big.Int
		if i == headParallelism-1 {
			end = new(big.Int).Sub(total, big.NewInt(1))
		} else {
			end = new(big.Int).Add(start, step)
		}
		s.heads = append(s.heads, &head{
			start:      fromBig(start),
			end:        fromBig(end),
			next:       fromBig(start),
			candidates: btree.NewG(32, accountLess),
		})
		cursor = end
	}
	return s
}

// Next returns the next field of the least-recently-served head whose
// requests counter has not yet reached consideration_count, or whose
// timestamp is older than cooldown. Returns the zero account if no head
// currently qualifies.
func (s *Scanner) Next() block.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *head
	for _, h := range s.heads {
		qualifies := h.requests < s.considerationCount || now.Sub(h.timestamp) > s.cooldown
		if !qualifies {
			continue
		}
		if best == nil {
			best = h
			continue
		}
		if h.timestamp.Before(best.timestamp) {
			best = h
		} else if h.timestamp.Equal(best.timestamp) && h.requests < best.requests {
			best = h
		}
	}

	if best == nil {
		return block.Account{}
	}
	best.requests++
	best.timestamp = now
	return best.next
}

// Process folds a peer's response into the head whose range contains
// start, returning true if the head's next pointer advanced (or wrapped)
// as a result.
func (s *Scanner) Process(start block.Account, response []Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.findHead(start)
	if h == nil {
		return false
	}

	h.completed++
	for _, e := range response {
		if accountLess(h.next, e.Account) {
			h.candidates.ReplaceOrInsert(e.Account)
		}
	}

	if h.completed < s.considerationCount || h.candidates.Len() == 0 {
		return false
	}

	target := s.candidatesTarget
	if h.candidates.Len() < target {
		target = h.candidates.Len()
	}

	index := 0
	var advanced block.Account
	h.candidates.Ascend(func(a block.Account) bool {
		index++
		if index == target {
			advanced = a
			return false
		}
		return true
	})

	h.next = advanced
	h.candidates.Clear(false)
	h.completed = 0
	h.requests = 0
	h.timestamp = time.Time{}

	if !accountLess(h.next, h.end) {
		h.next = h.start
	}
	return true
}

func (s *Scanner) findHead(start block.Account) *head {
	for _, h := range s.heads {
		if !accountLess(start, h.start) && accountLess(start, h.end) {
			return h
		}
	}
	if len(s.heads) > 0 {
		last := s.heads[len(s.heads)-1]
		if !accountLess(start, last.start) {
			return last
		}
	}
	return nil
}

// Heads returns the number of partitions the account space was divided
// into.
func (s *Scanner) Heads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heads)
}
