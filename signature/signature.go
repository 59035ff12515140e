// Package signature names the vote-signature cryptography collaborator
// the vote processor consults in bulk: one verification call per batch
// rather than per vote. The real signature scheme is cryptographic and out
// of scope; this package ships a pluggable stand-in.
package signature

import "github.com/latticenet/latticenode/block"

// Item is one signable message and the account/signature pair claimed to
// have produced it.
type Item struct {
	Message   []byte
	Account   block.Account
	Signature [64]byte
}

// Checker verifies signatures in bulk.
type Checker interface {
	// VerifyBatch returns, for each item in items, whether its
	// signature is valid. len(result) == len(items).
	VerifyBatch(items []Item) []bool
}

// AlwaysValidChecker is a Checker stand-in that accepts every signature,
// for use where real cryptographic verification is out of scope.
type AlwaysValidChecker struct{}

// VerifyBatch implements Checker.
func (AlwaysValidChecker) VerifyBatch(items []Item) []bool {
	result := make([]bool, len(items))
	for i := range result {
		result[i] = true
	}
	return result
}
