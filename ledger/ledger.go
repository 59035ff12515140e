// Package ledger names the narrow interface the block processor drives:
// applying one block at a time under a caller-supplied write transaction
// and reporting the tagged result. The validation rules a concrete ledger
// enforces — balance arithmetic, signature placement, epoch upgrades — are
// this network's consensus semantics and are deliberately not specified
// here; only the shape of the collaboration is.
package ledger

import (
	"github.com/latticenet/latticenode/block"
)

// Transaction is the minimal contract the ledger needs from a store
// transaction: enough to read and write account/block/pending records
// without the ledger package depending on a particular store
// implementation.
type Transaction interface {
	// Commit finalizes the transaction's writes. Only meaningful for a
	// write transaction.
	Commit() error

	// Rollback discards the transaction's writes, or is a no-op for a
	// read transaction.
	Rollback() error
}

// Ledger is the collaborator the block processor drives. A concrete
// implementation owns account chains, pending (unreceived send) records,
// and the arithmetic that decides whether a block may extend its chain.
type Ledger interface {
	// Process validates and, if valid, applies block under txn,
	// returning the tagged outcome. Process never returns a Go error
	// for a semantically invalid block: invalidity is itself the
	// ProcessResult.
	Process(txn Transaction, blk *block.Block) ProcessResult

	// Successor returns the block currently occupying qualifiedRoot, or
	// nil if that chain position is still open.
	Successor(txn Transaction, root block.QualifiedRoot) *block.Block

	// Rollback removes hash and every block that transitively depends
	// on it from their account chains, appending each removed block to
	// out in the order they were rolled back (deepest dependent first).
	Rollback(txn Transaction, hash block.Hash, out *[]*block.Block) error

	// BlockSource returns the dependency hash a gap_source result
	// should key the unchecked map on for blk: the paired send hash for
	// a receive-shaped block.
	BlockSource(txn Transaction, blk *block.Block) block.Hash
}
