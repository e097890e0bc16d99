// Package verify implements the caller-driven verification state machine:
// decoding a header, locating its parent, deriving inherited consensus and
// finality context, invoking the (externally supplied, contract-only)
// consensus verifier, and on success producing an insert handle that
// atomically appends the block to a blocktree.Tree.
package verify

import "fmt"

// InvalidHeader reports that the raw header bytes failed to decode.
type InvalidHeader struct {
	Err error
}

func (e *InvalidHeader) Error() string { return fmt.Sprintf("verify: invalid header: %v", e.Err) }
func (e *InvalidHeader) Unwrap() error { return e.Err }

// UnknownConsensusEngine reports that the chain's finalized consensus is
// FinalizedUnknown and allow_unknown_consensus_engines is not set.
type UnknownConsensusEngine struct{}

func (*UnknownConsensusEngine) Error() string { return "verify: unknown consensus engine" }

// ConsensusMismatch reports that the header's own pre-runtime digest
// (AuraPreRuntime or BabePreRuntime) names a different engine than the one
// inherited from its parent's BlockConsensus.
type ConsensusMismatch struct{}

func (*ConsensusMismatch) Error() string { return "verify: consensus engine mismatch" }

// BadParent reports that the header's parent_hash is neither the finalized
// hash nor any known non-finalized block.
type BadParent struct {
	ParentHash [32]byte
}

func (e *BadParent) Error() string { return fmt.Sprintf("verify: bad parent %x", e.ParentHash) }

// VerificationFailed wraps an error surfaced by the (opaque, host-supplied)
// consensus verifier.
type VerificationFailed struct {
	Err error
}

func (e *VerificationFailed) Error() string {
	return fmt.Sprintf("verify: consensus verification failed: %v", e.Err)
}
func (e *VerificationFailed) Unwrap() error { return e.Err }

// Duplicate is not an error in the Go sense (verification completed, it
// just learned nothing new) but is modelled as a distinct outcome rather
// than folded into a generic success, matching the protocol's "duplicate
// detection is not an error but a distinct success variant" rule.
type Duplicate struct {
	Hash [32]byte
}
