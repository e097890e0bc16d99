package verify

import (
	"github.com/hugh-onf/lightcore/internal/blocktree"
	"github.com/hugh-onf/lightcore/internal/forktree"
	"github.com/hugh-onf/lightcore/internal/header"
	"github.com/hugh-onf/lightcore/internal/log"
)

// HeaderOutcome is the sum type a successful call to VerifyHeader steps
// through to: either Duplicate (the hash was already known, nothing
// mutated) or a *HeaderInsert handle the caller may choose to Insert.
type HeaderOutcome interface {
	isHeaderOutcome()
}

func (Duplicate) isHeaderOutcome() {}

// HeaderInsert is the header path's insert handle: verification has
// already succeeded and computed everything Insert needs, but the tree is
// not mutated until Insert is called. Discarding the handle without
// calling Insert leaves the tree untouched, matching the abort semantics
// that apply identically to the body path's suspensions.
type HeaderInsert struct {
	tree        *blocktree.Tree
	parent      *forktree.NodeIndex
	block       blocktree.Block
	isNewBest   bool
	blockHeight uint64
}

func (*HeaderInsert) isHeaderOutcome() {}

// BlockHeight returns the height of the block this handle would insert.
func (h *HeaderInsert) BlockHeight() uint64 { return h.blockHeight }

// IsNewBest reports whether inserting this block would advance the tree's
// current-best cursor.
func (h *HeaderInsert) IsNewBest() bool { return h.isNewBest }

// Insert appends the verified block to the tree and returns its node
// index. It is the only point at which VerifyHeader's work takes effect.
func (h *HeaderInsert) Insert() forktree.NodeIndex {
	return h.tree.Insert(h.parent, h.block, h.isNewBest)
}

// HeaderVerifier is the host-supplied, contract-only collaborator that
// performs the actual slot/signature/epoch arithmetic this core treats as
// opaque. Exactly one of the two result fields is meaningful, selected by
// which EngineKind the tree's finalized consensus carries.
type HeaderVerifier interface {
	VerifyAura(h *header.Header, now uint64, parent blocktree.BlockConsensus) (AuraResult, error)
	VerifyBabe(h *header.Header, now uint64, parent blocktree.BlockConsensus) (BabeResult, error)
}

// VerifyHeader runs the shared prologue followed by the header-only path:
// decode, duplicate check, parent lookup, inherited-context derivation,
// engine dispatch, and (on success) post-block derivation producing a
// HeaderInsert. raw is the header's raw wire bytes.
func VerifyHeader(tree *blocktree.Tree, verifier HeaderVerifier, raw []byte, now uint64) (HeaderOutcome, error) {
	h, err := header.Decode(raw, tree.BlockNumberBytes())
	if err != nil {
		return nil, &InvalidHeader{Err: err}
	}

	hash := header.HashRaw(raw)
	if tree.HasHash(hash) {
		if m := tree.Metrics(); m != nil {
			m.VerificationDuplicate.Inc()
		}
		return Duplicate{Hash: hash}, nil
	}

	parentRef, ok := tree.LocateParent(h.ParentHash)
	if !ok {
		return nil, &BadParent{ParentHash: h.ParentHash}
	}

	parentConsensus, parentFinality, err := inheritedContext(tree, parentRef)
	if err != nil {
		return nil, err
	}
	if err := checkConsensusDigestMatches(h, parentConsensus); err != nil {
		return nil, err
	}

	var consensus blocktree.BlockConsensus
	switch parentConsensus.Kind {
	case blocktree.EngineAura:
		result, err := verifier.VerifyAura(h, now, parentConsensus)
		if err != nil {
			if m := tree.Metrics(); m != nil {
				m.VerificationFailed.Inc()
			}
			return nil, &VerificationFailed{Err: err}
		}
		consensus = deriveAuraConsensus(parentConsensus, result)
	case blocktree.EngineBabe:
		result, err := verifier.VerifyBabe(h, now, parentConsensus)
		if err != nil {
			if m := tree.Metrics(); m != nil {
				m.VerificationFailed.Inc()
			}
			return nil, &VerificationFailed{Err: err}
		}
		consensus = deriveBabeConsensus(parentConsensus, result)
	}

	finality, err := deriveFinality(parentFinality, h)
	if err != nil {
		return nil, &VerificationFailed{Err: err}
	}

	bestNumber, bestSlot := currentBestSlotInfo(tree)
	candidateSlot := slotNumberOf(consensus, h)
	newBest := !hasCurrentBest(tree) || isNewBest(h.Number, bestNumber, candidateSlot, bestSlot)

	block := blocktree.Block{Header: h, Hash: hash, Consensus: consensus, Finality: finality}

	var parentIdx *forktree.NodeIndex
	if !parentRef.IsFinalized {
		idx := parentRef.Index
		parentIdx = &idx
	}

	verifyLog := log.Default().Module("verify")
	if consensus.Kind == blocktree.EngineAura {
		verifyLog = verifyLog.With("authorities_fingerprint", authoritiesFingerprint(consensus.AuraAuthorities))
	}
	verifyLog.Debug("header verified", log.Hash("hash", hash), "height", h.Number, "is_new_best", newBest)
	if m := tree.Metrics(); m != nil {
		m.BlocksVerifiedTotal.WithLabelValues("accepted").Inc()
	}

	return &HeaderInsert{
		tree:        tree,
		parent:      parentIdx,
		block:       block,
		isNewBest:   newBest,
		blockHeight: h.Number,
	}, nil
}

// inheritedContext derives the BlockConsensus/BlockFinality a new block
// should inherit from, reading either the finalized descriptors (parent is
// the finalized head) or a known non-finalized parent's own state.
func inheritedContext(tree *blocktree.Tree, parent blocktree.ParentRef) (blocktree.BlockConsensus, blocktree.BlockFinality, error) {
	if !parent.IsFinalized {
		b := tree.BlockAt(parent.Index)
		return b.Consensus, b.Finality, nil
	}

	fc := tree.FinalizedConsensus()
	if fc.Kind == blocktree.FinalizedUnknown {
		if !tree.AllowUnknownConsensusEngines() {
			return blocktree.BlockConsensus{}, blocktree.BlockFinality{}, &UnknownConsensusEngine{}
		}
	}
	var consensus blocktree.BlockConsensus
	switch fc.Kind {
	case blocktree.FinalizedAura:
		consensus = blocktree.BlockConsensus{Kind: blocktree.EngineAura, AuraAuthorities: fc.AuraAuthorities}
	case blocktree.FinalizedBabe:
		consensus = blocktree.BlockConsensus{Kind: blocktree.EngineBabe, BabeCurrentEpoch: fc.BabeCurrentEpoch, BabeNextEpoch: fc.BabeNextEpoch}
	}
	return consensus, tree.Finality(), nil
}

func deriveFinality(parent blocktree.BlockFinality, h *header.Header) (blocktree.BlockFinality, error) {
	if parent.Kind != blocktree.FinalityGrandpa {
		return blocktree.BlockFinality{Kind: blocktree.FinalityOutsourced}, nil
	}
	return deriveGrandpaFinality(parent, h.Number, h.Digest)
}

func hasCurrentBest(tree *blocktree.Tree) bool {
	_, ok := tree.CurrentBest()
	return ok
}

func currentBestSlotInfo(tree *blocktree.Tree) (uint64, *uint64) {
	idx, ok := tree.CurrentBest()
	if !ok {
		return 0, nil
	}
	b := tree.BlockAt(idx)
	return b.Header.Number, slotNumberOf(b.Consensus, b.Header)
}
