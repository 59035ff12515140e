package store

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// Transaction is the store-backed ledger.Transaction: a write transaction
// stages its mutations in a batch applied atomically on Commit; a read
// transaction pins a snapshot so a sequence of reads observes one
// consistent point in time.
type Transaction struct {
	store    *Store
	batch    *leveldb.Batch // nil for a read transaction
	snapshot *leveldb.Snapshot
	closed   bool
}

// ErrTransactionClosed is returned by any operation attempted on a
// transaction that has already committed or rolled back.
var ErrTransactionClosed = errors.New("store: transaction already closed")

// ErrReadOnly is returned by a write operation attempted on a read
// transaction.
var ErrReadOnly = errors.New("store: transaction is read-only")

// Commit implements ledger.Transaction. For a write transaction it
// flushes the staged batch atomically; for a read transaction it releases
// the snapshot.
func (t *Transaction) Commit() error {
	if t.closed {
		return ErrTransactionClosed
	}
	t.closed = true
	if t.batch == nil {
		t.snapshot.Release()
		return nil
	}
	return errors.WithStack(t.store.db.Write(t.batch, nil))
}

// Rollback implements ledger.Transaction. For a write transaction it
// discards the staged batch without touching the database; for a read
// transaction it releases the snapshot.
func (t *Transaction) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.batch != nil {
		t.batch.Reset()
		return nil
	}
	t.snapshot.Release()
	return nil
}

func (t *Transaction) get(key []byte) ([]byte, error) {
	if t.snapshot != nil {
		data, err := t.snapshot.Get(key, nil)
		return data, translateNotFound(err)
	}
	data, err := t.store.db.Get(key, nil)
	return data, translateNotFound(err)
}

func (t *Transaction) put(key, value []byte) error {
	if t.batch == nil {
		return ErrReadOnly
	}
	t.batch.Put(key, value)
	return nil
}

func (t *Transaction) delete(key []byte) error {
	if t.batch == nil {
		return ErrReadOnly
	}
	t.batch.Delete(key)
	return nil
}

// ErrNotFound is returned by a Get-style accessor when the key does not
// exist.
var ErrNotFound = leveldb.ErrNotFound

func translateNotFound(err error) error {
	if err == nil || err == leveldb.ErrNotFound {
		return err
	}
	return errors.WithStack(err)
}
