// Package workvalidator names the proof-of-work collaborator the block
// processor consults before admitting a block: whether the attached work
// value meets the difficulty required for that block's position. The real
// proof-of-work function is cryptographic and out of scope; this package
// ships a pluggable stand-in.
package workvalidator

import (
	"github.com/pkg/errors"

	"github.com/latticenet/latticenode/block"
)

// ErrInsufficientWork is returned by ValidateEntry when a block's attached
// work does not meet its required difficulty.
var ErrInsufficientWork = errors.New("insufficient work")

// Validator is the work collaborator.
type Validator interface {
	// ValidateEntry returns ErrInsufficientWork if blk's work does not
	// meet the difficulty required for its position, nil otherwise.
	ValidateEntry(blk *block.Block) error

	// Difficulty returns the minimum Block.Work() value required for
	// blk's position.
	Difficulty(blk *block.Block) uint64
}

// ThresholdValidator is a Validator that accepts any block whose Work
// value is at least a fixed threshold: SendThreshold for send-shaped
// blocks, BaseThreshold for all others.
type ThresholdValidator struct {
	BaseThreshold uint64
	SendThreshold uint64
}

// NewThresholdValidator constructs a ThresholdValidator. If sendThreshold
// is zero, it defaults to baseThreshold.
func NewThresholdValidator(baseThreshold, sendThreshold uint64) *ThresholdValidator {
	if sendThreshold == 0 {
		sendThreshold = baseThreshold
	}
	return &ThresholdValidator{BaseThreshold: baseThreshold, SendThreshold: sendThreshold}
}

// Difficulty implements Validator.
func (v *ThresholdValidator) Difficulty(blk *block.Block) uint64 {
	if blk.IsSend() {
		return v.SendThreshold
	}
	return v.BaseThreshold
}

// ValidateEntry implements Validator.
func (v *ThresholdValidator) ValidateEntry(blk *block.Block) error {
	if blk.Work() < v.Difficulty(blk) {
		return ErrInsufficientWork
	}
	return nil
}
