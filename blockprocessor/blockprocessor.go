// Package blockprocessor implements the serialized, single-worker ledger
// writer at the center of the core pipeline: it drains a two-tier queue of
// inbound blocks, applies each against the ledger under one write
// transaction per batch, and reports the tagged result of every block it
// touches.
package blockprocessor

import (
	"sync"
	"time"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/ledger"
	"github.com/latticenet/latticenode/logger"
	"github.com/latticenet/latticenode/stats"
	"github.com/latticenet/latticenode/unchecked"
	"github.com/latticenet/latticenode/util/panics"
	"github.com/latticenet/latticenode/workvalidator"
)

// Store is the narrow slice of the persistent store the block processor
// needs: a write transaction per batch, and the store's own ceiling on how
// many blocks one such transaction may cover.
type Store interface {
	BeginWrite() (ledger.Transaction, error)
	MaxBlockWriteBatchNum() int
}

// Result pairs a processed block with its ledger outcome, the unit the
// processed/batch_processed observers receive.
type Result struct {
	Block  *block.Block
	Result ledger.ProcessResult
}

// Config parameterizes a Processor.
type Config struct {
	Log       *logger.Logger
	Stats     *stats.Registry
	Ledger    ledger.Ledger
	Store     Store
	Unchecked unchecked.Store
	Work      workvalidator.Validator

	// CancelElection cancels the active election rooted at hash, if
	// any. Called for every block rolled back by a fork resolution,
	// except the election rooted at the incoming forcing block itself.
	CancelElection func(hash block.Hash)

	// EraseVoteHistory drops any cached vote history for root. Called
	// for every block rolled back by a fork resolution.
	EraseVoteHistory func(root block.QualifiedRoot)

	FullSize            int
	BatchSize           int
	BatchMaxTime        time.Duration
	BlockProcessTimeout time.Duration
}

// Processor is the serialized ledger writer.
type Processor struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	normal  []*block.Block
	forced  []*block.Block
	stopped bool

	pendingMu sync.Mutex
	pending   map[block.Hash]chan ledger.ProcessResult

	observerMu     sync.Mutex
	processed      []func(Result)
	batchProcessed []func([]Result)

	flushMu   sync.Mutex
	flushCond *sync.Cond
	batchSeq  uint64 // incremented once per completed batch

	wg sync.WaitGroup
}

// New constructs a Processor. Call Start to launch its worker.
func New(cfg Config) *Processor {
	if cfg.CancelElection == nil {
		cfg.CancelElection = func(block.Hash) {}
	}
	if cfg.EraseVoteHistory == nil {
		cfg.EraseVoteHistory = func(block.QualifiedRoot) {}
	}
	p := &Processor{
		cfg:     cfg,
		pending: make(map[block.Hash]chan ledger.ProcessResult),
	}
	p.cond = sync.NewCond(&p.mu)
	p.flushCond = sync.NewCond(&p.flushMu)
	return p
}

// OnProcessed registers an observer invoked once per processed block, in
// batch-output order, after the batch's write transaction has committed.
func (p *Processor) OnProcessed(f func(Result)) {
	p.observerMu.Lock()
	defer p.observerMu.Unlock()
	p.processed = append(p.processed, f)
}

// OnBatchProcessed registers an observer invoked once per batch with the
// whole batch's output, after the write transaction has committed.
func (p *Processor) OnBatchProcessed(f func([]Result)) {
	p.observerMu.Lock()
	defer p.observerMu.Unlock()
	p.batchProcessed = append(p.batchProcessed, f)
}

// Size returns the combined length of the normal and forced queues.
func (p *Processor) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.normal) + len(p.forced)
}

// Add enqueues blk to the normal queue. Rejected (and counted, not
// queued) if the queue is already at FullSize or if blk's attached work
// fails validation.
func (p *Processor) Add(blk *block.Block) {
	if !p.admit(blk) {
		return
	}
	p.mu.Lock()
	p.normal = append(p.normal, blk)
	p.mu.Unlock()
	p.cond.Signal()
}

// AddBlocking enqueues blk exactly as Add does, then waits up to
// BlockProcessTimeout for its result. Returns ok == false on rejection or
// timeout.
func (p *Processor) AddBlocking(blk *block.Block) (result ledger.ProcessResult, ok bool) {
	if !p.admit(blk) {
		return 0, false
	}

	ch := make(chan ledger.ProcessResult, 1)
	p.pendingMu.Lock()
	p.pending[blk.Hash()] = ch
	p.pendingMu.Unlock()

	p.mu.Lock()
	p.normal = append(p.normal, blk)
	p.mu.Unlock()
	p.cond.Signal()

	select {
	case r := <-ch:
		return r, true
	case <-time.After(p.cfg.BlockProcessTimeout):
		p.pendingMu.Lock()
		delete(p.pending, blk.Hash())
		p.pendingMu.Unlock()
		return 0, false
	}
}

// Force enqueues blk to the forced queue, which the worker drains ahead of
// the normal queue on every batch iteration.
func (p *Processor) Force(blk *block.Block) {
	p.mu.Lock()
	p.forced = append(p.forced, blk)
	p.mu.Unlock()
	p.cond.Signal()
}

// admit applies the FullSize and work-validation admission checks shared
// by Add and AddBlocking.
func (p *Processor) admit(blk *block.Block) bool {
	if p.Size() >= p.cfg.FullSize {
		p.cfg.Stats.Inc("blockprocessor", "overfill", stats.DirectionIn)
		return false
	}
	if err := p.cfg.Work.ValidateEntry(blk); err != nil {
		p.cfg.Stats.Inc("blockprocessor", "insufficient_work", stats.DirectionIn)
		return false
	}
	return true
}

// Flush blocks until both queues are empty and no batch is currently
// active.
func (p *Processor) Flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	for p.Size() > 0 {
		p.flushCond.Wait()
	}
}

// Start launches the single worker goroutine.
func (p *Processor) Start() {
	p.wg.Add(1)
	panics.GoroutineWrapperFunc(log)(p.run)
}

// Stop signals the worker to process every block still queued and then
// exit, and waits for it to join.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Processor) run() {
	defer p.wg.Done()
	for {
		batch, more := p.runBatch()
		if len(batch) > 0 {
			p.commitAndNotify(batch)
		}
		if !more {
			return
		}
	}
}

// runBatch blocks until work is available (or stop), then drains blocks
// under the batch protocol: forced fully ahead of normal, bounded by
// BatchSize, the store's own write-batch ceiling, and BatchMaxTime.
// Returns the processed results and whether the worker should keep
// running afterward.
func (p *Processor) runBatch() ([]Result, bool) {
	p.mu.Lock()
	for len(p.normal) == 0 && len(p.forced) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if len(p.normal) == 0 && len(p.forced) == 0 && p.stopped {
		p.mu.Unlock()
		return nil, false
	}
	p.mu.Unlock()

	maxBatch := p.cfg.BatchSize
	if storeMax := p.cfg.Store.MaxBlockWriteBatchNum(); storeMax < maxBatch {
		maxBatch = storeMax
	}

	txn, err := p.cfg.Store.BeginWrite()
	if err != nil {
		log.Errorf("failed to begin write transaction: %v", err)
		return nil, !p.isStopped()
	}

	deadline := time.Now().Add(p.cfg.BatchMaxTime)
	var results []Result
	for {
		blk, forced, ok := p.popNext()
		if !ok {
			break
		}
		results = append(results, p.processOne(txn, blk, forced))
		if len(results) >= maxBatch || time.Now().After(deadline) {
			break
		}
	}

	if err := txn.Commit(); err != nil {
		log.Errorf("failed to commit batch: %v", err)
	}
	return results, true
}

func (p *Processor) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// popNext removes and returns the next block the batch protocol should
// process: any forced block ahead of any normal block.
func (p *Processor) popNext() (blk *block.Block, forced bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.forced) > 0 {
		blk = p.forced[0]
		p.forced = p.forced[1:]
		return blk, true, true
	}
	if len(p.normal) > 0 {
		blk = p.normal[0]
		p.normal = p.normal[1:]
		return blk, false, true
	}
	return nil, false, false
}

// processOne runs the rollback-competitor step (forced blocks only), calls
// ledger.Process, and applies the unchecked-map side effects the result
// demands.
func (p *Processor) processOne(txn ledger.Transaction, blk *block.Block, forced bool) Result {
	if forced {
		p.rollbackCompetitor(txn, blk)
	}

	result := p.cfg.Ledger.Process(txn, blk)
	p.applySideEffects(txn, blk, result)
	p.fulfillPending(blk.Hash(), result)

	return Result{Block: blk, Result: result}
}

// rollbackCompetitor finds the block currently occupying blk's qualified
// root and, if it exists and isn't blk itself, rolls it back along with
// every dependent block, erasing their vote history and canceling their
// elections — except the election rooted at blk, which survives because
// blk is about to take that root's place.
func (p *Processor) rollbackCompetitor(txn ledger.Transaction, blk *block.Block) {
	root := blk.QualifiedRoot()
	successor := p.cfg.Ledger.Successor(txn, root)
	if successor == nil || successor.Hash() == blk.Hash() {
		return
	}

	var rolledBack []*block.Block
	if err := p.cfg.Ledger.Rollback(txn, successor.Hash(), &rolledBack); err != nil {
		log.Errorf("rollback of competitor %s failed: %v", successor.Hash(), err)
		return
	}

	for _, removed := range rolledBack {
		if removed.Hash() == blk.Hash() {
			continue
		}
		p.cfg.EraseVoteHistory(removed.QualifiedRoot())
		p.cfg.CancelElection(removed.Hash())
	}
}

func (p *Processor) applySideEffects(txn ledger.Transaction, blk *block.Block, result ledger.ProcessResult) {
	switch result {
	case ledger.Progress:
		for _, waiting := range p.cfg.Unchecked.Trigger(blk.Hash()) {
			p.requeue(waiting)
		}
		if blk.IsSend() && !(blk.Type() == block.TypeState && blk.Sideband().Epoch >= block.MaxEpoch) {
			destination := blk.Destination()
			if blk.Type() == block.TypeState {
				destination = blk.Link()
			}
			for _, waiting := range p.cfg.Unchecked.Trigger(destination) {
				p.requeue(waiting)
			}
		}
	case ledger.GapPrevious:
		p.cfg.Unchecked.Put(blk.Previous(), blk)
	case ledger.GapSource:
		p.cfg.Unchecked.Put(p.cfg.Ledger.BlockSource(txn, blk), blk)
	case ledger.GapEpochOpenPending:
		p.cfg.Unchecked.Put(blk.Account(), blk)
	default:
		p.cfg.Stats.Inc("blockprocessor", result.String(), stats.DirectionOut)
	}
}

// requeue re-admits a block that was waiting in the unchecked map for a
// dependency that has just arrived. It bypasses admission control: the
// block was already accepted once.
func (p *Processor) requeue(blk *block.Block) {
	p.mu.Lock()
	p.normal = append([]*block.Block{blk}, p.normal...)
	p.mu.Unlock()
}

func (p *Processor) fulfillPending(hash block.Hash, result ledger.ProcessResult) {
	p.pendingMu.Lock()
	ch, ok := p.pending[hash]
	if ok {
		delete(p.pending, hash)
	}
	p.pendingMu.Unlock()
	if ok {
		ch <- result
	}
}

func (p *Processor) commitAndNotify(batch []Result) {
	p.observerMu.Lock()
	processedObservers := append([]func(Result){}, p.processed...)
	batchObservers := append([]func([]Result){}, p.batchProcessed...)
	p.observerMu.Unlock()

	for _, r := range batch {
		for _, observer := range processedObservers {
			observer(r)
		}
	}
	for _, observer := range batchObservers {
		observer(batch)
	}

	p.flushMu.Lock()
	p.batchSeq++
	p.flushCond.Broadcast()
	p.flushMu.Unlock()
}
