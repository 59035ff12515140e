package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/latticenet/latticenode/block"
)

func hashOf(b byte) block.Hash {
	var h block.Hash
	h[0] = b
	return h
}

func newTestStore(t *testing.T) *Store {
	s, err := OpenMemory(0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testBlock(hash, account block.Hash) *block.Block {
	return block.New(hash, block.Hash{}, hash, account, block.TypeOpen, block.Account{}, block.Hash{}, 100, 1, [64]byte{}, nil)
}

func TestPutAndGetBlockRoundTrips(t *testing.T) {
	s := newTestStore(t)
	blk := testBlock(hashOf(1), hashOf(2))
	blk.SetSideband(&block.Sideband{IsSend: true, Epoch: 3})

	txn, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, txn.(*Transaction).PutBlock(blk))
	require.NoError(t, txn.Commit())

	read, err := s.BeginRead()
	require.NoError(t, err)
	defer read.Rollback()

	got, found, err := read.GetBlock(hashOf(1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, blk.Hash(), got.Hash())
	require.Equal(t, blk.Account(), got.Account())
	require.Equal(t, uint64(100), got.Balance())
	require.NotNil(t, got.Sideband())
	require.True(t, got.Sideband().IsSend)
	require.Equal(t, uint8(3), got.Sideband().Epoch)
}

func TestGetBlockNotFound(t *testing.T) {
	s := newTestStore(t)
	read, err := s.BeginRead()
	require.NoError(t, err)
	defer read.Rollback()

	_, found, err := read.GetBlock(hashOf(9))
	require.NoError(t, err)
	require.False(t, found)
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	s := newTestStore(t)
	blk := testBlock(hashOf(1), hashOf(2))

	txn, err := s.BeginWrite()
	require.NoError(t, err)
	wtxn := txn.(*Transaction)
	require.NoError(t, wtxn.PutBlock(blk))
	require.NoError(t, txn.Rollback())

	read, err := s.BeginRead()
	require.NoError(t, err)
	defer read.Rollback()
	_, found, err := read.GetBlock(hashOf(1))
	require.NoError(t, err)
	require.False(t, found)
}

func TestLookupReportsConfirmedFlag(t *testing.T) {
	s := newTestStore(t)
	blk := testBlock(hashOf(1), hashOf(2))

	txn, err := s.BeginWrite()
	require.NoError(t, err)
	wtxn := txn.(*Transaction)
	require.NoError(t, wtxn.PutBlock(blk))
	require.NoError(t, txn.Commit())

	root, confirmed, found := s.Lookup(hashOf(1))
	require.True(t, found)
	require.False(t, confirmed)
	require.Equal(t, blk.QualifiedRoot(), root)

	txn2, err := s.BeginWrite()
	require.NoError(t, err)
	wtxn2 := txn2.(*Transaction)
	require.NoError(t, wtxn2.MarkConfirmed(hashOf(1)))
	require.NoError(t, txn2.Commit())

	_, confirmed, found = s.Lookup(hashOf(1))
	require.True(t, found)
	require.True(t, confirmed)
}

func TestLookupUnknownHash(t *testing.T) {
	s := newTestStore(t)
	_, _, found := s.Lookup(hashOf(42))
	require.False(t, found)
}

func TestUnconfirmedSkipsAccountsAtConfirmedFrontier(t *testing.T) {
	s := newTestStore(t)
	account := hashOf(1)
	head := hashOf(2)

	txn, err := s.BeginWrite()
	require.NoError(t, err)
	wtxn := txn.(*Transaction)
	require.NoError(t, wtxn.PutAccount(account, head, head, block.Hash{}, 500))
	require.NoError(t, txn.Commit())

	candidates := s.Unconfirmed()
	require.Len(t, candidates, 1)
	require.Equal(t, head, candidates[0].Hash)
	require.Equal(t, uint64(500), candidates[0].Weight)

	txn2, err := s.BeginWrite()
	require.NoError(t, err)
	wtxn2 := txn2.(*Transaction)
	require.NoError(t, wtxn2.SetConfirmedFrontier(account, head))
	require.NoError(t, txn2.Commit())

	require.Empty(t, s.Unconfirmed())
}

func TestPendingConsumeAndUnconsume(t *testing.T) {
	s := newTestStore(t)
	sendHash := hashOf(5)

	txn, err := s.BeginWrite()
	require.NoError(t, err)
	wtxn := txn.(*Transaction)
	require.NoError(t, wtxn.PutPending(sendHash, 10, hashOf(1), hashOf(2)))
	require.NoError(t, txn.Commit())

	read, err := s.BeginRead()
	require.NoError(t, err)
	_, _, _, consumed, found, err := read.GetPending(sendHash)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, consumed)
	read.Rollback()

	txn2, err := s.BeginWrite()
	require.NoError(t, err)
	wtxn2 := txn2.(*Transaction)
	require.NoError(t, wtxn2.ConsumePending(sendHash))
	require.NoError(t, txn2.Commit())

	read2, err := s.BeginRead()
	require.NoError(t, err)
	_, _, _, consumed, _, err = read2.GetPending(sendHash)
	require.NoError(t, err)
	require.True(t, consumed)
	read2.Rollback()
}

func TestPeerPutAndClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("10.0.0.1:7075", 1, time.Now()))
	require.NoError(t, s.Put("10.0.0.2:7075", 1, time.Now()))

	peers, err := s.Peers()
	require.NoError(t, err)
	require.Len(t, peers, 2)

	require.NoError(t, s.Clear())
	peers, err = s.Peers()
	require.NoError(t, err)
	require.Empty(t, peers)
}
