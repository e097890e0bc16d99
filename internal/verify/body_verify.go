package verify

import (
	"github.com/hugh-onf/lightcore/internal/blocktree"
	"github.com/hugh-onf/lightcore/internal/forktree"
	"github.com/hugh-onf/lightcore/internal/header"
	"github.com/hugh-onf/lightcore/internal/log"
	"github.com/hugh-onf/lightcore/internal/trie"
)

// BodyOutcome is the sum type the body verification state machine steps
// through: Duplicate, *ParentRuntimeRequired, *StorageGet,
// *StoragePrefixKeys, *StorageNextKey, *RuntimeCompilation, *BodyInsert, or
// *BodyFailed.
type BodyOutcome interface {
	isBodyOutcome()
}

func (Duplicate) isBodyOutcome() {}

// BodyStep is what the host-supplied BodyVerifier returns at every step of
// extrinsic execution. Exactly one concrete type is returned per call.
type BodyStep interface {
	isBodyStep()
}

// BodyFinishedOK reports successful execution; exactly one of AuraResult
// or BabeResult is set, matching the tree's engine.
type BodyFinishedOK struct {
	AuraResult *AuraResult
	BabeResult *BabeResult
}

func (BodyFinishedOK) isBodyStep() {}

// BodyFinishedErr reports that extrinsic execution failed, returning the
// parent runtime for reuse.
type BodyFinishedErr struct {
	Err           error
	ParentRuntime any
}

func (BodyFinishedErr) isBodyStep() {}

// BodyStorageGetStep is the BodyVerifier's raw request for a value-by-key
// read.
type BodyStorageGetStep struct {
	Key    []byte
	Resume func(value []byte, version trie.TrieEntryVersion, hasValue bool) BodyStep
}

func (BodyStorageGetStep) isBodyStep() {}

// BodyStoragePrefixKeysStep is the BodyVerifier's raw request for every key
// under a prefix, in lexicographic order.
type BodyStoragePrefixKeysStep struct {
	Prefix []byte
	Resume func(keys [][]byte) BodyStep
}

func (BodyStoragePrefixKeysStep) isBodyStep() {}

// BodyStorageNextKeyStep is the BodyVerifier's raw request for the first
// key strictly greater than Key.
type BodyStorageNextKeyStep struct {
	Key    []byte
	Resume func(next []byte, hasNext bool) BodyStep
}

func (BodyStorageNextKeyStep) isBodyStep() {}

// BodyRuntimeCompilationStep is the BodyVerifier's request to compile the
// runtime before it can be instantiated; Build is a zero-argument,
// synchronous resumption so the caller can benchmark the compile step
// separately from everything else.
type BodyRuntimeCompilationStep struct {
	Build func() BodyStep
}

func (BodyRuntimeCompilationStep) isBodyStep() {}

// BodyVerifier is the host-supplied, contract-only collaborator that
// actually executes the block body against the parent runtime. This core
// only threads its suspension points through to the caller; it never
// interprets extrinsics, storage contents, or runtime bytecode itself.
type BodyVerifier interface {
	Start(h *header.Header, now uint64, parentConsensus blocktree.BlockConsensus, parentRuntime any, body [][]byte, cache *trie.Cache) BodyStep
}

// ParentRuntimeRequired is the body path's first suspension: the prologue
// has succeeded and the caller must supply the parent runtime, the body,
// and (optionally) a calculation cache before execution can proceed.
type ParentRuntimeRequired struct {
	tree            *blocktree.Tree
	h               *header.Header
	hash            [32]byte
	parentRef       blocktree.ParentRef
	parentConsensus blocktree.BlockConsensus
	parentFinality  blocktree.BlockFinality
}

func (*ParentRuntimeRequired) isBodyOutcome() {}

// NthAncestor returns the index of the n-th ancestor of the block being
// verified, where n=0 is its parent. It returns false once the walk would
// cross into the finalized head.
func (p *ParentRuntimeRequired) NthAncestor(n int) (forktree.NodeIndex, bool) {
	if p.parentRef.IsFinalized {
		return 0, false
	}
	return p.tree.NthAncestor(p.parentRef.Index, n)
}

// NonFinalizedAncestorCount returns how many non-finalized ancestors sit
// between the block being verified and the finalized head.
func (p *ParentRuntimeRequired) NonFinalizedAncestorCount() int {
	if p.parentRef.IsFinalized {
		return 0
	}
	return p.tree.NonFinalizedAncestorCount(p.parentRef.Index) + 1
}

// Abort returns the tree unmodified. Every suspension in the body path
// offers the same guarantee: nothing is mutated until BodyInsert.Insert is
// called.
func (p *ParentRuntimeRequired) Abort() *blocktree.Tree { return p.tree }

// Resume supplies the parent runtime, block body, and optional cache,
// starting extrinsic execution.
func (p *ParentRuntimeRequired) Resume(verifier BodyVerifier, parentRuntime any, body [][]byte, cache *trie.Cache, now uint64) BodyOutcome {
	step := verifier.Start(p.h, now, p.parentConsensus, parentRuntime, body, cache)
	return p.wrap(step)
}

// wrap adapts a raw BodyStep from the host verifier into this package's
// BodyOutcome, applying post-block derivation on success and preserving
// ancestor-accessor context across every intermediate suspension.
func (p *ParentRuntimeRequired) wrap(step BodyStep) BodyOutcome {
	switch s := step.(type) {
	case BodyFinishedOK:
		return p.finish(s)

	case BodyFinishedErr:
		return &BodyFailed{Err: s.Err, ParentRuntime: s.ParentRuntime}

	case BodyStorageGetStep:
		return &StorageGet{parent: p, Key: s.Key, resume: s.Resume}

	case BodyStoragePrefixKeysStep:
		return &StoragePrefixKeys{parent: p, Prefix: s.Prefix, resume: s.Resume}

	case BodyStorageNextKeyStep:
		return &StorageNextKey{parent: p, Key: s.Key, resume: s.Resume}

	case BodyRuntimeCompilationStep:
		return &RuntimeCompilation{parent: p, build: s.Build}

	default:
		panic("verify: unrecognised BodyStep from BodyVerifier")
	}
}

func (p *ParentRuntimeRequired) finish(s BodyFinishedOK) BodyOutcome {
	var consensus blocktree.BlockConsensus
	switch p.parentConsensus.Kind {
	case blocktree.EngineAura:
		consensus = deriveAuraConsensus(p.parentConsensus, *s.AuraResult)
	case blocktree.EngineBabe:
		consensus = deriveBabeConsensus(p.parentConsensus, *s.BabeResult)
	}

	finality, err := deriveFinality(p.parentFinality, p.h)
	if err != nil {
		return &BodyFailed{Err: err}
	}

	bestNumber, bestSlot := currentBestSlotInfo(p.tree)
	candidateSlot := slotNumberOf(consensus, p.h)
	newBest := !hasCurrentBest(p.tree) || isNewBest(p.h.Number, bestNumber, candidateSlot, bestSlot)

	block := blocktree.Block{Header: p.h, Hash: p.hash, Consensus: consensus, Finality: finality}

	var parentIdx *forktree.NodeIndex
	if !p.parentRef.IsFinalized {
		idx := p.parentRef.Index
		parentIdx = &idx
	}

	log.Default().Module("verify").Debug("body verified", log.Hash("hash", p.hash), "height", p.h.Number, "is_new_best", newBest)

	return &BodyInsert{tree: p.tree, parent: parentIdx, block: block, isNewBest: newBest, blockHeight: p.h.Number}
}

// StorageGet suspends execution awaiting the value stored at Key.
type StorageGet struct {
	parent *ParentRuntimeRequired
	Key    []byte
	resume func(value []byte, version trie.TrieEntryVersion, hasValue bool) BodyStep
}

func (*StorageGet) isBodyOutcome() {}
func (g *StorageGet) Abort() *blocktree.Tree { return g.parent.tree }
func (g *StorageGet) Inject(value []byte, version trie.TrieEntryVersion, hasValue bool) BodyOutcome {
	return g.parent.wrap(g.resume(value, version, hasValue))
}

// StoragePrefixKeys suspends execution awaiting every key under Prefix.
type StoragePrefixKeys struct {
	parent *ParentRuntimeRequired
	Prefix []byte
	resume func(keys [][]byte) BodyStep
}

func (*StoragePrefixKeys) isBodyOutcome() {}
func (g *StoragePrefixKeys) Abort() *blocktree.Tree { return g.parent.tree }
func (g *StoragePrefixKeys) Inject(keys [][]byte) BodyOutcome {
	return g.parent.wrap(g.resume(keys))
}

// StorageNextKey suspends execution awaiting the first key strictly
// greater than Key.
type StorageNextKey struct {
	parent *ParentRuntimeRequired
	Key    []byte
	resume func(next []byte, hasNext bool) BodyStep
}

func (*StorageNextKey) isBodyOutcome() {}
func (g *StorageNextKey) Abort() *blocktree.Tree { return g.parent.tree }
func (g *StorageNextKey) Inject(next []byte, hasNext bool) BodyOutcome {
	return g.parent.wrap(g.resume(next, hasNext))
}

// RuntimeCompilation is a benchmarkable suspension: Build resumes
// synchronously once the caller has compiled (or fetched a cached compile
// of) the parent runtime.
type RuntimeCompilation struct {
	parent *ParentRuntimeRequired
	build  func() BodyStep
}

func (*RuntimeCompilation) isBodyOutcome() {}
func (g *RuntimeCompilation) Abort() *blocktree.Tree { return g.parent.tree }
func (g *RuntimeCompilation) Build() BodyOutcome { return g.parent.wrap(g.build()) }

// BodyFailed reports that extrinsic execution failed; ParentRuntime is
// returned for reuse, matching Finished(Err(error, parent_runtime)).
type BodyFailed struct {
	Err           error
	ParentRuntime any
}

func (*BodyFailed) isBodyOutcome() {}

// BodyInsert is the body path's insert handle, produced once execution
// finished successfully and post-block derivation has run. Like
// HeaderInsert, nothing is mutated until Insert is called.
type BodyInsert struct {
	tree        *blocktree.Tree
	parent      *forktree.NodeIndex
	block       blocktree.Block
	isNewBest   bool
	blockHeight uint64
}

func (*BodyInsert) isBodyOutcome() {}

func (b *BodyInsert) BlockHeight() uint64 { return b.blockHeight }
func (b *BodyInsert) IsNewBest() bool     { return b.isNewBest }
func (b *BodyInsert) Insert() forktree.NodeIndex {
	return b.tree.Insert(b.parent, b.block, b.isNewBest)
}

// VerifyBody runs the shared prologue and, on success, returns a
// ParentRuntimeRequired suspension. The tree is taken by value in spirit
// (ownership-transfer semantics in the reference) but passed by reference
// here since Go has no move semantics; every suspension's Abort() and
// every non-terminal BodyOutcome guarantee the tree is left unmodified
// until BodyInsert.Insert is actually called.
func VerifyBody(tree *blocktree.Tree, raw []byte) (BodyOutcome, error) {
	h, err := header.Decode(raw, tree.BlockNumberBytes())
	if err != nil {
		return nil, &InvalidHeader{Err: err}
	}

	hash := header.HashRaw(raw)
	if tree.HasHash(hash) {
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

	return &ParentRuntimeRequired{
		tree:            tree,
		h:               h,
		hash:            hash,
		parentRef:       parentRef,
		parentConsensus: parentConsensus,
		parentFinality:  parentFinality,
	}, nil
}
