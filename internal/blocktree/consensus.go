// Package blocktree holds the non-finalized tree's container state: the
// fork tree of blocks, the hash index, the finalized cursor, the current
// best block, and the per-engine consensus/finality descriptors that the
// verification state machine reads and derives from. It owns no
// verification logic itself -- that lives in internal/verify, which
// mutates a Tree only through Insert after a successful verification.
package blocktree

import "github.com/hugh-onf/lightcore/internal/header"

// EngineKind distinguishes which block-production engine a chain runs.
type EngineKind int

const (
	EngineAura EngineKind = iota
	EngineBabe
)

// FinalityKind distinguishes which finality gadget a chain runs.
type FinalityKind int

const (
	FinalityOutsourced FinalityKind = iota
	FinalityGrandpa
)

// EpochInfo describes one Babe epoch: its index, optional start slot, the
// authority set and claim parameters in force for its duration.
type EpochInfo struct {
	EpochIndex      uint64
	StartSlot       *uint64
	Authorities     []header.AuthorityID
	Randomness      [32]byte
	C1, C2          uint64
	AllowedSlotsOnly bool // true restricts claims to the primary (non-secondary) slot method
}

// Clone returns a deep-enough copy of e suitable for attaching to a new
// block node (authority lists are treated as immutable once built, so they
// are shared rather than copied).
func (e EpochInfo) Clone() EpochInfo {
	return e
}

// BlockConsensus is the tagged variant describing which engine produced a
// block and that engine's per-block state. Exactly one of the Kind-selected
// fields is meaningful.
type BlockConsensus struct {
	Kind EngineKind

	// Aura
	AuraAuthorities []header.AuthorityID

	// Babe
	BabeCurrentEpoch *EpochInfo // nil before the first epoch boundary
	BabeNextEpoch    EpochInfo
}

// BlockFinality is the tagged variant describing a block's finality-gadget
// state.
type BlockFinality struct {
	Kind FinalityKind

	// Grandpa
	PrevAuthChangeTriggerNumber *uint64
	TriggeredAuthorities        []header.AuthorityID
	TriggersChange              bool
	ScheduledChange              *ScheduledChange
	AfterBlockAuthoritiesSetID   uint64
}

// ScheduledChange is a pending Grandpa authority-set rotation: at
// TriggerHeight, NextAuthorities takes effect.
type ScheduledChange struct {
	TriggerHeight   uint64
	NextAuthorities []header.AuthorityID
}

// FinalizedConsensusKind extends EngineKind with Unknown, permitted only
// when the tree allows unrecognised consensus engines.
type FinalizedConsensusKind int

const (
	FinalizedAura FinalizedConsensusKind = iota
	FinalizedBabe
	FinalizedUnknown
)

// FinalizedConsensus mirrors BlockConsensus at the finalized head.
type FinalizedConsensus struct {
	Kind FinalizedConsensusKind

	AuraAuthorities []header.AuthorityID

	BabeCurrentEpoch *EpochInfo
	BabeNextEpoch    EpochInfo
}
