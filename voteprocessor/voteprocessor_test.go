package voteprocessor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/signature"
	"github.com/latticenet/latticenode/stats"
	"github.com/latticenet/latticenode/votecache"
)

type fakeWeights struct {
	weight map[block.Account]uint64
}

func (f *fakeWeights) Weight(account block.Account) uint64 {
	return f.weight[account]
}

type fakeElections struct {
	applied []appliedVote
}

type appliedVote struct {
	representative block.Account
	weight         uint64
	hash           block.Hash
}

func (f *fakeElections) ApplyVote(representative block.Account, weight uint64, hash block.Hash) {
	f.applied = append(f.applied, appliedVote{representative, weight, hash})
}

func acct(b byte) block.Account {
	var a block.Account
	a[0] = b
	return a
}

func hashOf(b byte) block.Hash {
	var h block.Hash
	h[0] = b
	return h
}

func newTestProcessor(t *testing.T, weights *fakeWeights, elections *fakeElections) (*Processor, *votecache.Cache) {
	t.Helper()
	cache := votecache.New(0)
	p := New(Config{
		Signature:      signature.AlwaysValidChecker{},
		Weights:        weights,
		Cache:          cache,
		Elections:      elections,
		Stats:          stats.New(prometheus.NewRegistry()),
		Tier1MinWeight: 1000,
		Tier2MinWeight: 100,
		NumThreads:     2,
		MaxQueueSize:   16,
		BatchSize:      4,
	})
	p.Start()
	t.Cleanup(p.Stop)
	return p, cache
}

func TestVoteAppliesToElectionsAndCache(t *testing.T) {
	rep := acct(1)
	weights := &fakeWeights{weight: map[block.Account]uint64{rep: 2000}}
	elections := &fakeElections{}
	p, cache := newTestProcessor(t, weights, elections)

	dropped := p.Vote(&Vote{Representative: rep, Hashes: []block.Hash{hashOf(1)}}, "peer-a")
	require.False(t, dropped)

	require.Eventually(t, func() bool {
		_, tally, ok := cache.Peek(0)
		return ok && tally == 2000
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(elections.applied) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, hashOf(1), elections.applied[0].hash)
}

func TestTier3DroppedPastHalfCapacity(t *testing.T) {
	lowRep := acct(9)
	weights := &fakeWeights{weight: map[block.Account]uint64{lowRep: 1}}
	elections := &fakeElections{}
	cache := votecache.New(0)
	p := New(Config{
		Signature:      signature.AlwaysValidChecker{},
		Weights:        weights,
		Cache:          cache,
		Elections:      elections,
		Stats:          stats.New(prometheus.NewRegistry()),
		Tier1MinWeight: 1000,
		Tier2MinWeight: 100,
		NumThreads:     0,
		MaxQueueSize:   10,
		BatchSize:      4,
	})

	for i := 0; i < 6; i++ {
		dropped := p.Vote(&Vote{Representative: lowRep, Hashes: []block.Hash{hashOf(byte(i))}}, "peer")
		require.False(t, dropped)
	}
	require.Equal(t, 6, p.Size())

	dropped := p.Vote(&Vote{Representative: lowRep, Hashes: []block.Hash{hashOf(6)}}, "peer")
	require.True(t, dropped)
	require.Equal(t, 6, p.Size())
}

func TestTier1NeverDroppedUntilAbsolutelyFull(t *testing.T) {
	highRep := acct(2)
	weights := &fakeWeights{weight: map[block.Account]uint64{highRep: 5000}}
	elections := &fakeElections{}
	cache := votecache.New(0)
	p := New(Config{
		Signature:      signature.AlwaysValidChecker{},
		Weights:        weights,
		Cache:          cache,
		Elections:      elections,
		Stats:          stats.New(prometheus.NewRegistry()),
		Tier1MinWeight: 1000,
		Tier2MinWeight: 100,
		NumThreads:     0,
		MaxQueueSize:   4,
		BatchSize:      4,
	})

	for i := 0; i < 4; i++ {
		dropped := p.Vote(&Vote{Representative: highRep, Hashes: []block.Hash{hashOf(byte(i))}}, "peer")
		require.False(t, dropped)
	}
	dropped := p.Vote(&Vote{Representative: highRep, Hashes: []block.Hash{hashOf(9)}}, "peer")
	require.True(t, dropped)
}

func TestInvalidSignatureSkipped(t *testing.T) {
	rep := acct(3)
	weights := &fakeWeights{weight: map[block.Account]uint64{rep: 2000}}
	elections := &fakeElections{}
	cache := votecache.New(0)
	p := New(Config{
		Signature:      rejectAllChecker{},
		Weights:        weights,
		Cache:          cache,
		Elections:      elections,
		Stats:          stats.New(prometheus.NewRegistry()),
		Tier1MinWeight: 1000,
		Tier2MinWeight: 100,
		NumThreads:     2,
		MaxQueueSize:   16,
		BatchSize:      4,
	})
	p.Start()
	t.Cleanup(p.Stop)

	p.Vote(&Vote{Representative: rep, Hashes: []block.Hash{hashOf(1)}}, "peer")
	p.Flush()

	require.Empty(t, elections.applied)
	require.Equal(t, 0, cache.Size())
}

type rejectAllChecker struct{}

func (rejectAllChecker) VerifyBatch(items []signature.Item) []bool {
	return make([]bool, len(items))
}
