package blockprocessor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/ledger"
	"github.com/latticenet/latticenode/ledger/memledger"
	"github.com/latticenet/latticenode/logger"
	"github.com/latticenet/latticenode/stats"
	"github.com/latticenet/latticenode/unchecked"
	"github.com/latticenet/latticenode/workvalidator"
)

type fakeTxn struct{}

func (fakeTxn) Commit() error   { return nil }
func (fakeTxn) Rollback() error { return nil }

type fakeStore struct {
	maxBatch int
}

func (s *fakeStore) BeginWrite() (ledger.Transaction, error) { return fakeTxn{}, nil }
func (s *fakeStore) MaxBlockWriteBatchNum() int               { return s.maxBatch }

func testLog() *logger.Logger {
	l, _ := logger.Get(logger.SubsystemTags.BLKP)
	return l
}

func newTestProcessor(t *testing.T, mem *memledger.Ledger) *Processor {
	t.Helper()
	cfg := Config{
		Log:                 testLog(),
		Stats:               stats.New(prometheus.NewRegistry()),
		Ledger:              mem,
		Store:               &fakeStore{maxBatch: 1000},
		Unchecked:           unchecked.NewMemStore(),
		Work:                workvalidator.NewThresholdValidator(1, 1),
		FullSize:            1024,
		BatchSize:           256,
		BatchMaxTime:        time.Second,
		BlockProcessTimeout: 500 * time.Millisecond,
	}
	p := New(cfg)
	p.Start()
	t.Cleanup(p.Stop)
	return p
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

// TestGapPreviousThenProgressTriggersUnchecked exercises scenario 3: a
// block whose previous is missing parks in gap_previous; once its
// dependency lands, it is automatically reprocessed to progress.
func TestGapPreviousThenProgressTriggersUnchecked(t *testing.T) {
	mem := memledger.New(0)
	account := acct(1)
	mem.OpenAccount(account, hashOf(0xA), 1000, block.Account{})

	results := make(chan Result, 4)
	p := newTestProcessor(t, mem)
	p.OnProcessed(func(r Result) { results <- r })

	blockB := block.New(hashOf(0xB2), hashOf(0xB1), hashOf(0xB1), account, block.TypeChange, block.Account{}, block.Account{}, 1000, 1, [64]byte{}, nil)
	p.Add(blockB)

	r1 := waitResult(t, results)
	require.Equal(t, ledger.GapPrevious, r1.Result)

	blockA := block.New(hashOf(0xB1), hashOf(0xA), hashOf(0xA), account, block.TypeChange, block.Account{}, block.Account{}, 1000, 1, [64]byte{}, nil)
	p.Add(blockA)

	r2 := waitResult(t, results)
	require.Equal(t, ledger.Progress, r2.Result)
	require.Equal(t, hashOf(0xB1), r2.Block.Hash())

	r3 := waitResult(t, results)
	require.Equal(t, ledger.Progress, r3.Result)
	require.Equal(t, hashOf(0xB2), r3.Block.Hash())
}

// TestForceRollsBackCompetitor exercises scenario 4: forcing a block whose
// qualified root already has a different successor rolls that successor
// (and its dependents) back before the forced block lands.
func TestForceRollsBackCompetitor(t *testing.T) {
	mem := memledger.New(0)
	account := acct(2)
	mem.OpenAccount(account, hashOf(0xC), 1000, block.Account{})

	var canceled []block.Hash
	var erased []block.QualifiedRoot

	cfg := Config{
		Log:                 testLog(),
		Stats:               stats.New(prometheus.NewRegistry()),
		Ledger:              mem,
		Store:               &fakeStore{maxBatch: 1000},
		Unchecked:           unchecked.NewMemStore(),
		Work:                workvalidator.NewThresholdValidator(1, 1),
		CancelElection:      func(h block.Hash) { canceled = append(canceled, h) },
		EraseVoteHistory:    func(r block.QualifiedRoot) { erased = append(erased, r) },
		FullSize:            1024,
		BatchSize:           256,
		BatchMaxTime:        time.Second,
		BlockProcessTimeout: 500 * time.Millisecond,
	}
	p := New(cfg)
	p.Start()
	t.Cleanup(p.Stop)

	results := make(chan Result, 4)
	p.OnProcessed(func(r Result) { results <- r })

	successor := block.New(hashOf(0xD1), hashOf(0xC), hashOf(0xC), account, block.TypeChange, block.Account{}, block.Account{}, 1000, 1, [64]byte{}, nil)
	p.Add(successor)
	r1 := waitResult(t, results)
	require.Equal(t, ledger.Progress, r1.Result)

	forced := block.New(hashOf(0xD2), hashOf(0xC), hashOf(0xC), account, block.TypeChange, block.Account{}, block.Account{}, 1000, 1, [64]byte{}, nil)
	p.Force(forced)
	r2 := waitResult(t, results)
	require.Equal(t, ledger.Progress, r2.Result)
	require.Equal(t, hashOf(0xD2), r2.Block.Hash())

	require.Contains(t, canceled, hashOf(0xD1))
	require.Contains(t, erased, block.QualifiedRoot{Account: account, Root: hashOf(0xC)})
	require.NotContains(t, canceled, hashOf(0xD2))
}

func waitResult(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for processed result")
		return Result{}
	}
}
