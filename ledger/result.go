package ledger

// ProcessResult is the tagged outcome ledger validation returns for a
// single block. None of these tags are fatal: each maps to a specific
// counter and, for a handful of them, to a specific unchecked-map
// insertion performed by the block processor.
type ProcessResult int

// ProcessResult tags.
const (
	// Progress means the block was accepted and extends its account's
	// chain.
	Progress ProcessResult = iota

	// GapPrevious means the block's previous hash is not yet on the
	// ledger.
	GapPrevious

	// GapSource means a receive-shaped block's paired send is not yet
	// on the ledger.
	GapSource

	// GapEpochOpenPending means an epoch-upgrade open block is waiting
	// on the account's existing chain to reach a compatible epoch.
	GapEpochOpenPending

	// Old means the block (or an equivalent) is already on the ledger.
	Old

	// BadSignature means the block's signature failed verification.
	BadSignature

	// NegativeSpend means a send block would spend more than the
	// account's balance.
	NegativeSpend

	// Unreceivable means a receive-shaped block references a send that
	// was already received, or that doesn't exist for this account.
	Unreceivable

	// Fork means the block's qualified root already has a different
	// successor.
	Fork

	// OpenedBurnAccount means an open block names the all-zero burn
	// account, which can never be opened.
	OpenedBurnAccount

	// BalanceMismatch means a state block's declared balance disagrees
	// with the ledger's computed balance.
	BalanceMismatch

	// RepresentativeMismatch means a change-shaped block names a
	// representative inconsistent with prior sideband state.
	RepresentativeMismatch

	// BlockPosition means a state block's subtype is inconsistent with
	// its position in the chain (e.g. a send-shaped block with no
	// balance decrease).
	BlockPosition

	// InsufficientWork means the block's attached work does not meet
	// the difficulty threshold for its position.
	InsufficientWork
)

func (r ProcessResult) String() string {
	switch r {
	case Progress:
		return "progress"
	case GapPrevious:
		return "gap_previous"
	case GapSource:
		return "gap_source"
	case GapEpochOpenPending:
		return "gap_epoch_open_pending"
	case Old:
		return "old"
	case BadSignature:
		return "bad_signature"
	case NegativeSpend:
		return "negative_spend"
	case Unreceivable:
		return "unreceivable"
	case Fork:
		return "fork"
	case OpenedBurnAccount:
		return "opened_burn_account"
	case BalanceMismatch:
		return "balance_mismatch"
	case RepresentativeMismatch:
		return "representative_mismatch"
	case BlockPosition:
		return "block_position"
	case InsufficientWork:
		return "insufficient_work"
	default:
		return "unknown"
	}
}
