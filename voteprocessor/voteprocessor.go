// Package voteprocessor implements the multi-threaded vote verifier and
// tallyer: tiered Random Early Detection admission by representative
// weight, bulk signature verification per batch, and application of every
// verified vote to the active-elections table and the vote cache.
package voteprocessor

import (
	"sync"
	"sync/atomic"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/signature"
	"github.com/latticenet/latticenode/stats"
	"github.com/latticenet/latticenode/util/panics"
	"github.com/latticenet/latticenode/votecache"
)

// Vote is one representative's signed endorsement of a set of block
// hashes, all tallied with the same weight.
type Vote struct {
	Representative block.Account
	Signature      [64]byte
	Timestamp      uint64
	Hashes         []block.Hash
}

func (v *Vote) message() []byte {
	buf := make([]byte, 8+32*len(v.Hashes))
	for i := 0; i < 8; i++ {
		buf[i] = byte(v.Timestamp >> (8 * i))
	}
	for i, h := range v.Hashes {
		copy(buf[8+32*i:], h[:])
	}
	return buf
}

// WeightLookup resolves a representative's currently recomputed voting
// weight, used to classify it into an admission tier.
type WeightLookup interface {
	Weight(account block.Account) uint64
}

// Elections is the active-elections table a verified vote is applied to.
type Elections interface {
	// ApplyVote records that representative cast weight behind hash.
	ApplyVote(representative block.Account, weight uint64, hash block.Hash)
}

type tier int

const (
	tier3 tier = iota // dropped first
	tier2
	tier1 // never dropped except on an absolutely full queue
)

// Config parameterizes a Processor.
type Config struct {
	Signature signature.Checker
	Weights   WeightLookup
	Cache     *votecache.Cache
	Elections Elections
	Stats     *stats.Registry

	// Tier1MinWeight and Tier2MinWeight are the weight cutoffs a
	// representative's recomputed weight is classified against.
	// Weight >= Tier1MinWeight is tier 1; weight >= Tier2MinWeight is
	// tier 2; everything else is tier 3.
	Tier1MinWeight uint64
	Tier2MinWeight uint64

	NumThreads   int
	MaxQueueSize int
	BatchSize    int
}

type queuedVote struct {
	vote      *Vote
	channelID string
}

// Processor is the multi-threaded vote verifier/tallyer.
type Processor struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queuedVote
	stopped bool

	totalProcessed atomic.Int64

	wg sync.WaitGroup
}

// New constructs a Processor. Call Start to launch its workers.
func New(cfg Config) *Processor {
	p := &Processor{cfg: cfg}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Processor) classify(representative block.Account) tier {
	weight := p.cfg.Weights.Weight(representative)
	switch {
	case weight >= p.cfg.Tier1MinWeight:
		return tier1
	case weight >= p.cfg.Tier2MinWeight:
		return tier2
	default:
		return tier3
	}
}

// Vote offers vote on channelID for admission. Returns dropped == true if
// the vote was not accepted onto the queue, either because the queue is
// absolutely full or because tiered RED shed it under load.
func (p *Processor) Vote(vote *Vote, channelID string) (dropped bool) {
	t := p.classify(vote.Representative)

	p.mu.Lock()
	size := len(p.queue)
	max := p.cfg.MaxQueueSize

	switch {
	case size >= max:
		p.mu.Unlock()
		p.cfg.Stats.Inc("voteprocessor", "overflow", stats.DirectionIn)
		return true
	case size > 3*max/4 && t != tier1:
		p.mu.Unlock()
		p.cfg.Stats.Inc("voteprocessor", "red_drop_tier23", stats.DirectionIn)
		return true
	case size > max/2 && t == tier3:
		p.mu.Unlock()
		p.cfg.Stats.Inc("voteprocessor", "red_drop_tier3", stats.DirectionIn)
		return true
	}

	p.queue = append(p.queue, queuedVote{vote: vote, channelID: channelID})
	p.mu.Unlock()
	p.cond.Signal()
	return false
}

// Size returns the current queue length.
func (p *Processor) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Start launches Config.NumThreads worker goroutines.
func (p *Processor) Start() {
	spawn := panics.GoroutineWrapperFunc(log)
	for i := 0; i < p.cfg.NumThreads; i++ {
		p.wg.Add(1)
		spawn(p.worker)
	}
}

// Stop signals every worker to exit once the queue has been drained, and
// waits for them to join.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// Flush waits until either the queue becomes empty, or total_processed
// has advanced by at least the queue's length as observed at call time.
func (p *Processor) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := int64(len(p.queue)) + p.totalProcessed.Load()
	for len(p.queue) != 0 && p.totalProcessed.Load() < target {
		p.cond.Wait()
	}
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		batch := p.nextBatch()
		if batch == nil {
			return
		}
		if len(batch) == 0 {
			continue
		}
		p.processBatch(batch)
	}
}

func (p *Processor) nextBatch() []queuedVote {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if len(p.queue) == 0 && p.stopped {
		return nil
	}
	n := len(p.queue)
	if n > p.cfg.BatchSize {
		n = p.cfg.BatchSize
	}
	batch := make([]queuedVote, n)
	copy(batch, p.queue[:n])
	p.queue = p.queue[n:]
	p.cond.Broadcast()
	return batch
}

func (p *Processor) processBatch(batch []queuedVote) {
	items := make([]signature.Item, len(batch))
	for i, qv := range batch {
		items[i] = signature.Item{
			Message:   qv.vote.message(),
			Account:   qv.vote.Representative,
			Signature: qv.vote.Signature,
		}
	}
	verified := p.cfg.Signature.VerifyBatch(items)

	for i, qv := range batch {
		if !verified[i] {
			p.cfg.Stats.Inc("voteprocessor", "invalid_signature", stats.DirectionIn)
			continue
		}
		p.voteBlocking(qv.vote)
	}
	p.totalProcessed.Add(int64(len(batch)))
	p.cond.Broadcast()
}

func (p *Processor) voteBlocking(vote *Vote) {
	weight := p.cfg.Weights.Weight(vote.Representative)
	for _, hash := range vote.Hashes {
		p.cfg.Elections.ApplyVote(vote.Representative, weight, hash)
		p.cfg.Cache.Add(hash, weight)
	}
}
