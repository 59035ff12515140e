package store

import (
	"github.com/latticenet/latticenode/block"
)

// PutBlock stages blk under txn, keyed by its own hash.
func (txn *Transaction) PutBlock(blk *block.Block) error {
	return txn.put(blockKey(blk.Hash()), encodeBlock(blk))
}

// GetBlock returns the block stored under hash, or found == false if no
// such record exists.
func (txn *Transaction) GetBlock(hash block.Hash) (blk *block.Block, found bool, err error) {
	data, err := txn.get(blockKey(hash))
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	blk, err = decodeBlock(data)
	if err != nil {
		return nil, false, err
	}
	return blk, true, nil
}

// MarkConfirmed records that hash's block has been finalized by an
// election, the flag Store.Lookup reports to scheduler.BlockLookup
// callers.
func (txn *Transaction) MarkConfirmed(hash block.Hash) error {
	return txn.put(confirmedKey(hash), []byte{1})
}

// IsConfirmed reports whether hash has been marked confirmed.
func (txn *Transaction) IsConfirmed(hash block.Hash) (bool, error) {
	_, err := txn.get(confirmedKey(hash))
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Lookup implements scheduler.BlockLookup directly against the latest
// committed state, for callers outside any transaction's scope.
func (s *Store) Lookup(hash block.Hash) (root block.QualifiedRoot, confirmed bool, found bool) {
	txn, err := s.BeginRead()
	if err != nil {
		log.Errorf("lookup: failed to open read transaction: %v", err)
		return block.QualifiedRoot{}, false, false
	}
	defer txn.Rollback()

	blk, ok, err := txn.GetBlock(hash)
	if err != nil || !ok {
		return block.QualifiedRoot{}, false, false
	}
	isConfirmed, err := txn.IsConfirmed(hash)
	if err != nil {
		log.Errorf("lookup: failed to read confirmed flag for %s: %v", hash, err)
	}
	return blk.QualifiedRoot(), isConfirmed, true
}
