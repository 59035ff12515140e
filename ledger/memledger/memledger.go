// Package memledger is an in-memory Ledger sufficient to exercise every
// ProcessResult tag the block processor needs to handle, for use in tests
// of this repository's pipeline components. It does not implement real
// block-lattice consensus rules — those are explicitly out of scope — only
// enough bookkeeping to make each tag reachable from a constructed block.
package memledger

import (
	"sync"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/ledger"
)

type pendingEntry struct {
	amount      uint64
	source      block.Account
	destination block.Account
	consumed    bool
}

type chainState struct {
	head           block.Hash
	balance        uint64
	representative block.Account
	usesState      bool
	epoch          uint8
}

// Ledger is an in-memory ledger.Ledger.
type Ledger struct {
	mu         sync.Mutex
	blocks     map[block.Hash]*block.Block
	successors map[block.QualifiedRoot]block.Hash
	accounts   map[block.Account]*chainState
	pending    map[block.Hash]*pendingEntry

	// workThreshold is the minimum Block.Work() value ledger-level
	// validation requires; a lower value yields InsufficientWork.
	workThreshold uint64
}

// New constructs an empty Ledger. workThreshold is the minimum accepted
// Block.Work() value.
func New(workThreshold uint64) *Ledger {
	return &Ledger{
		blocks:        make(map[block.Hash]*block.Block),
		successors:    make(map[block.QualifiedRoot]block.Hash),
		accounts:      make(map[block.Account]*chainState),
		pending:       make(map[block.Hash]*pendingEntry),
		workThreshold: workThreshold,
	}
}

// OpenAccount seeds an account as already opened, for tests that need a
// receive/send/change target to already exist on the ledger.
func (l *Ledger) OpenAccount(account block.Account, openHash block.Hash, balance uint64, representative block.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account] = &chainState{head: openHash, balance: balance, representative: representative}
}

// CreditPending injects a pending (unreceived) entry as if sourceHash had
// already landed on the ledger, without needing the sender's whole chain
// constructed first.
func (l *Ledger) CreditPending(sourceHash block.Hash, amount uint64, source, destination block.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[sourceHash] = &pendingEntry{amount: amount, source: source, destination: destination}
}

// AccountState returns account's current head hash and balance, the view
// a caller applying a processed batch against the durable store needs to
// persist alongside the block itself.
func (l *Ledger) AccountState(account block.Account) (head block.Hash, balance uint64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.accounts[account]
	if !ok {
		return block.Hash{}, 0, false
	}
	return state.head, state.balance, true
}

var burnAccount block.Account

// Process implements ledger.Ledger.
func (l *Ledger) Process(_ ledger.Transaction, blk *block.Block) ledger.ProcessResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.blocks[blk.Hash()]; ok {
		return ledger.Old
	}
	if blk.Work() < l.workThreshold {
		return ledger.InsufficientWork
	}

	switch blk.Type() {
	case block.TypeOpen:
		return l.processOpen(blk)
	default:
		return l.processOnChain(blk)
	}
}

func (l *Ledger) processOpen(blk *block.Block) ledger.ProcessResult {
	account := blk.Account()
	if account == burnAccount {
		return ledger.OpenedBurnAccount
	}
	if existing, ok := l.accounts[account]; ok {
		if blk.Sideband() != nil && !blk.IsOpenAtMaxEpoch() {
			// An epoch-upgrade open for an account that already has a
			// chain: only admissible once the existing chain has
			// advanced to the epoch just below the one this open
			// claims.
			if existing.epoch < blk.Sideband().Epoch-1 {
				return ledger.GapEpochOpenPending
			}
		} else {
			return ledger.Fork
		}
	}

	pending, ok := l.pending[blk.Link()]
	if !ok {
		return ledger.GapSource
	}
	if pending.consumed || pending.destination != account {
		return ledger.Unreceivable
	}

	pending.consumed = true
	state := &chainState{head: blk.Hash(), balance: pending.amount}
	if blk.Sideband() != nil {
		state.usesState = true
		state.epoch = blk.Sideband().Epoch
	}
	l.accounts[account] = state
	l.commit(blk, blk.Root())
	return ledger.Progress
}

func (l *Ledger) processOnChain(blk *block.Block) ledger.ProcessResult {
	account := blk.Account()
	state, known := l.accounts[account]
	if !known {
		return ledger.GapPrevious
	}
	if existingSuccessor, ok := l.successors[block.QualifiedRoot{Account: account, Root: blk.Previous()}]; ok {
		if existingSuccessor != blk.Hash() {
			return ledger.Fork
		}
		return ledger.Old
	}
	if blk.Previous() != state.head {
		return ledger.GapPrevious
	}
	if state.usesState && blk.Type() != block.TypeState {
		// Once an account posts a state block, its chain is
		// forward-only: legacy block shapes can no longer follow.
		return ledger.BlockPosition
	}

	switch {
	case blk.IsSend():
		return l.processSend(blk, state)
	case blk.Type() == block.TypeReceive || (blk.Type() == block.TypeState && !blk.Link().IsZero()):
		return l.processReceive(blk, state)
	default:
		return l.processChange(blk, state)
	}
}

func (l *Ledger) processSend(blk *block.Block, state *chainState) ledger.ProcessResult {
	if blk.Type() == block.TypeState && blk.Link().IsZero() {
		return ledger.BlockPosition
	}
	if blk.Balance() > state.balance {
		return ledger.NegativeSpend
	}
	amount := state.balance - blk.Balance()
	destination := blk.Destination()
	if blk.Type() == block.TypeState {
		destination = blk.Link()
	}

	l.pending[blk.Hash()] = &pendingEntry{amount: amount, source: blk.Account(), destination: destination}
	state.head = blk.Hash()
	state.balance = blk.Balance()
	if blk.Type() == block.TypeState {
		state.usesState = true
		if blk.Sideband() != nil {
			state.epoch = blk.Sideband().Epoch
		}
	}
	l.commit(blk, blk.Previous())
	return ledger.Progress
}

func (l *Ledger) processReceive(blk *block.Block, state *chainState) ledger.ProcessResult {
	sourceHash := blk.Link()
	if blk.Type() == block.TypeReceive {
		sourceHash = blk.Link()
	}
	pending, ok := l.pending[sourceHash]
	if !ok {
		return ledger.GapSource
	}
	if pending.consumed || pending.destination != blk.Account() {
		return ledger.Unreceivable
	}

	pending.consumed = true
	state.head = blk.Hash()
	state.balance += pending.amount
	if blk.Type() == block.TypeState {
		state.usesState = true
		if blk.Sideband() != nil {
			state.epoch = blk.Sideband().Epoch
		}
	}
	l.commit(blk, blk.Previous())
	return ledger.Progress
}

func (l *Ledger) processChange(blk *block.Block, state *chainState) ledger.ProcessResult {
	newRepresentative := blk.Link()
	if blk.Type() == block.TypeChange {
		newRepresentative = blk.Destination()
	}
	if blk.Type() == block.TypeState && !blk.Link().IsZero() && !blk.Destination().IsZero() && blk.Link() != blk.Destination() {
		return ledger.RepresentativeMismatch
	}

	state.head = blk.Hash()
	state.representative = newRepresentative
	if blk.Type() == block.TypeState {
		state.usesState = true
		if blk.Sideband() != nil {
			state.epoch = blk.Sideband().Epoch
		}
	}
	l.commit(blk, blk.Previous())
	return ledger.Progress
}

func (l *Ledger) commit(blk *block.Block, root block.Hash) {
	l.blocks[blk.Hash()] = blk
	l.successors[block.QualifiedRoot{Account: blk.Account(), Root: root}] = blk.Hash()
}

// Successor implements ledger.Ledger.
func (l *Ledger) Successor(_ ledger.Transaction, root block.QualifiedRoot) *block.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	hash, ok := l.successors[root]
	if !ok {
		return nil
	}
	return l.blocks[hash]
}

// BlockSource implements ledger.Ledger.
func (l *Ledger) BlockSource(_ ledger.Transaction, blk *block.Block) block.Hash {
	return blk.Link()
}

// Rollback implements ledger.Ledger: it removes hash and every block
// chained after it in the same account, deepest dependent first.
func (l *Ledger) Rollback(_ ledger.Transaction, hash block.Hash, out *[]*block.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rollbackLocked(hash, out)
}

func (l *Ledger) rollbackLocked(hash block.Hash, out *[]*block.Block) error {
	blk, ok := l.blocks[hash]
	if !ok {
		return nil
	}
	account := blk.Account()

	if child, ok := l.successors[block.QualifiedRoot{Account: account, Root: hash}]; ok {
		if err := l.rollbackLocked(child, out); err != nil {
			return err
		}
	}

	delete(l.blocks, hash)
	delete(l.successors, block.QualifiedRoot{Account: account, Root: blk.Root()})

	if blk.IsSend() {
		delete(l.pending, hash)
	} else if blk.Type() == block.TypeReceive || (blk.Type() == block.TypeState && !blk.Link().IsZero() && !blk.IsSend()) {
		if pending, ok := l.pending[blk.Link()]; ok {
			pending.consumed = false
		}
	}

	if blk.Type() == block.TypeOpen {
		delete(l.accounts, account)
	} else if state, ok := l.accounts[account]; ok {
		state.head = blk.Previous()
	}

	*out = append(*out, blk)
	return nil
}
