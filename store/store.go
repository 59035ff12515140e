// Package store is the on-disk persistence behind the core pipeline: a
// single goleveldb database holding the blocks, accounts, pending sends
// and known-peers tables, plus the write-transaction contract the block
// processor drives one batch at a time.
package store

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/latticenet/latticenode/ledger"
)

// Table-prefix bytes. Every key in the database starts with one of these,
// keeping the five logical tables disjoint within one physical database.
const (
	prefixBlock     byte = 'b'
	prefixConfirmed byte = 'c'
	prefixAccount   byte = 'a'
	prefixPending   byte = 'p'
	prefixPeer      byte = 'r'
)

// defaultMaxBlockWriteBatchNum bounds how many blocks one write
// transaction may cover when the caller does not configure one.
const defaultMaxBlockWriteBatchNum = 256

// Store owns the database handle and the one tuning knob the block
// processor needs from it.
type Store struct {
	db                    *leveldb.DB
	maxBlockWriteBatchNum int
}

// Open opens (creating if necessary) a goleveldb database at path.
func Open(path string, maxBlockWriteBatchNum int) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return newStore(db, maxBlockWriteBatchNum), nil
}

// OpenMemory opens an in-memory database, for tests and for a node
// running without durable storage configured.
func OpenMemory(maxBlockWriteBatchNum int) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return newStore(db, maxBlockWriteBatchNum), nil
}

func newStore(db *leveldb.DB, maxBlockWriteBatchNum int) *Store {
	if maxBlockWriteBatchNum <= 0 {
		maxBlockWriteBatchNum = defaultMaxBlockWriteBatchNum
	}
	return &Store{db: db, maxBlockWriteBatchNum: maxBlockWriteBatchNum}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return errors.WithStack(s.db.Close())
}

// MaxBlockWriteBatchNum implements blockprocessor.Store.
func (s *Store) MaxBlockWriteBatchNum() int {
	return s.maxBlockWriteBatchNum
}

// BeginWrite implements blockprocessor.Store: it opens a batched write
// transaction that stages every Put/Delete until Commit flushes it to the
// database as one atomic write.
func (s *Store) BeginWrite() (ledger.Transaction, error) {
	return &Transaction{store: s, batch: new(leveldb.Batch)}, nil
}

// BeginRead opens a read-only transaction pinned to a consistent
// snapshot of the database, for callers that need more than one read to
// observe the same point in time.
func (s *Store) BeginRead() (*Transaction, error) {
	snapshot, err := s.db.GetSnapshot()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Transaction{store: s, snapshot: snapshot}, nil
}

func blockKey(hash [32]byte) []byte {
	return append([]byte{prefixBlock}, hash[:]...)
}

func confirmedKey(hash [32]byte) []byte {
	return append([]byte{prefixConfirmed}, hash[:]...)
}

func accountKey(account [32]byte) []byte {
	return append([]byte{prefixAccount}, account[:]...)
}

func pendingKey(hash [32]byte) []byte {
	return append([]byte{prefixPending}, hash[:]...)
}

func peerKey(endpoint string) []byte {
	return append([]byte{prefixPeer}, []byte(endpoint)...)
}
