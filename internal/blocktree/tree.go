package blocktree

import (
	"errors"

	"github.com/hugh-onf/lightcore/internal/forktree"
	"github.com/hugh-onf/lightcore/internal/header"
	"github.com/hugh-onf/lightcore/internal/log"
	"github.com/hugh-onf/lightcore/internal/metrics"
)

// ErrNotFound indicates an operation referenced a hash or index this tree
// does not know about; outside of the verification prologue's BadParent
// handling (which is not an error here, just a lookup miss), callers
// hitting this after the prologue indicates a programmer error.
var ErrNotFound = errors.New("blocktree: not found")

// Block is one non-finalized node's payload: its decoded header, hash,
// derived consensus/finality state, and an opaque caller payload (e.g. a
// reference-counted body or execution trace) the tree never inspects.
type Block struct {
	Header    *header.Header
	Hash      [32]byte
	Consensus BlockConsensus
	Finality  BlockFinality
	Payload   any
}

// Tree is the non-finalized tree's container: the fork tree of blocks plus
// the hash index, finalized cursor, current best pointer, and chain
// configuration. The verification package is the only mutator; every
// exported method here is a pure read or an Apply-style insert meant to be
// called once a verification has already succeeded.
type Tree struct {
	blocks       *forktree.Tree[Block]
	blocksByHash map[[32]byte]forktree.NodeIndex

	finalizedHeader *header.Header
	finalizedHash   [32]byte
	finalizedConsensus FinalizedConsensus
	finality           BlockFinality

	currentBest *forktree.NodeIndex

	blockNumberBytes            int
	allowUnknownConsensusEngines bool

	log     *log.Logger
	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry; subsequent inserts update its
// counters and gauges. Passing nil detaches instrumentation.
func (t *Tree) SetMetrics(r *metrics.Registry) { t.metrics = r }

// Metrics returns the tree's attached metrics registry, or nil if none was
// set.
func (t *Tree) Metrics() *metrics.Registry { return t.metrics }

// Config carries the chain-configuration fields a NonFinalizedTree needs at
// construction: the finalized head it is anchored to and the parameters
// that stay constant for the tree's lifetime.
type Config struct {
	FinalizedHeader              *header.Header
	FinalizedHash                [32]byte
	FinalizedConsensus           FinalizedConsensus
	Finality                     BlockFinality
	BlockNumberBytes             int
	AllowUnknownConsensusEngines bool
}

// DefaultConfig returns a Config with the reference chain's 4-byte block
// number width and unrecognised consensus engines disallowed.
func DefaultConfig() Config {
	return Config{BlockNumberBytes: 4}
}

// New constructs an empty non-finalized tree anchored at cfg's finalized
// head.
func New(cfg Config) *Tree {
	return &Tree{
		blocks:                       forktree.New[Block](),
		blocksByHash:                 make(map[[32]byte]forktree.NodeIndex),
		finalizedHeader:              cfg.FinalizedHeader,
		finalizedHash:                cfg.FinalizedHash,
		finalizedConsensus:           cfg.FinalizedConsensus,
		finality:                     cfg.Finality,
		blockNumberBytes:             cfg.BlockNumberBytes,
		allowUnknownConsensusEngines: cfg.AllowUnknownConsensusEngines,
		log:                          log.Default().Module("blocktree"),
	}
}

// BlockNumberBytes returns the chain's configured block-number width.
func (t *Tree) BlockNumberBytes() int { return t.blockNumberBytes }

// AllowUnknownConsensusEngines reports whether FinalizedUnknown is a
// permitted finalized-consensus kind for this tree.
func (t *Tree) AllowUnknownConsensusEngines() bool { return t.allowUnknownConsensusEngines }

// FinalizedHash returns the hash of the tree's finalized head.
func (t *Tree) FinalizedHash() [32]byte { return t.finalizedHash }

// FinalizedHeader returns the tree's finalized head header.
func (t *Tree) FinalizedHeader() *header.Header { return t.finalizedHeader }

// FinalizedConsensus returns the consensus descriptor at the finalized
// head.
func (t *Tree) FinalizedConsensus() FinalizedConsensus { return t.finalizedConsensus }

// Finality returns the finality descriptor at the finalized head.
func (t *Tree) Finality() BlockFinality { return t.finality }

// Len returns the number of non-finalized blocks in the tree.
func (t *Tree) Len() int { return t.blocks.Len() }

// BlockAt returns the block node at idx. It panics if idx is out of range,
// which indicates a caller holding a stale or foreign index rather than a
// recoverable condition.
func (t *Tree) BlockAt(idx forktree.NodeIndex) *Block {
	return t.blocks.Get(idx)
}

// ByHash looks up a block by hash.
func (t *Tree) ByHash(hash [32]byte) (*Block, forktree.NodeIndex, bool) {
	idx, ok := t.blocksByHash[hash]
	if !ok {
		return nil, 0, false
	}
	return t.blocks.Get(idx), idx, true
}

// HasHash reports whether hash is already present as a non-finalized block
// (used by the verification prologue's duplicate check).
func (t *Tree) HasHash(hash [32]byte) bool {
	_, ok := t.blocksByHash[hash]
	return ok
}

// ParentRef identifies a block's parent: IsFinalized true means the parent
// is the finalized head (Index is then unused); otherwise Index is the
// parent's node in the non-finalized tree.
type ParentRef struct {
	Index    forktree.NodeIndex
	IsFinalized bool
}

// LocateParent implements the prologue's parent-lookup step: if parentHash
// equals the finalized hash, the parent is the finalized head (no index);
// otherwise it must be a known non-finalized block.
func (t *Tree) LocateParent(parentHash [32]byte) (ParentRef, bool) {
	if parentHash == t.finalizedHash {
		return ParentRef{IsFinalized: true}, true
	}
	idx, ok := t.blocksByHash[parentHash]
	if !ok {
		return ParentRef{}, false
	}
	return ParentRef{Index: idx}, true
}

// CurrentBest returns the index of the current best block, if any.
func (t *Tree) CurrentBest() (forktree.NodeIndex, bool) {
	if t.currentBest == nil {
		return 0, false
	}
	return *t.currentBest, true
}

// Insert appends a new block under parent (nil meaning the finalized head)
// and, if isNewBest, advances the current-best cursor. It is the single
// tree mutation point; the verification package calls it only after a
// successful header or body verification (the "Apply" step of an insert
// handle).
func (t *Tree) Insert(parent *forktree.NodeIndex, block Block, isNewBest bool) forktree.NodeIndex {
	idx := t.blocks.Insert(parent, block)
	t.blocksByHash[block.Hash] = idx
	if isNewBest {
		t.currentBest = &idx
	}
	t.log.Debug("block inserted", log.Hash("hash", block.Hash), "number", block.Header.Number, "is_new_best", isNewBest)
	if t.metrics != nil {
		t.metrics.BlocksInsertedTotal.Inc()
		if isNewBest {
			t.metrics.CurrentBestNumber.Set(float64(block.Header.Number))
		}
	}
	return idx
}

// NthAncestor walks up n steps from idx (n=0 returns idx itself), as used
// by the body path's ParentRuntimeRequired accessor for "n-th ancestor,
// 0 = parent" semantics relative to a block's parent index.
func (t *Tree) NthAncestor(idx forktree.NodeIndex, n int) (forktree.NodeIndex, bool) {
	cur := idx
	for i := 0; i < n; i++ {
		parent, ok := t.blocks.Parent(cur)
		if !ok {
			return 0, false
		}
		cur = parent
	}
	return cur, true
}

// NonFinalizedAncestorCount returns the number of non-finalized ancestors
// above idx (i.e. the node's depth above the finalized head).
func (t *Tree) NonFinalizedAncestorCount(idx forktree.NodeIndex) int {
	count := 0
	cur := idx
	for {
		parent, ok := t.blocks.Parent(cur)
		if !ok {
			return count
		}
		count++
		cur = parent
	}
}

// ShrinkToFit releases unused fork-tree arena capacity.
func (t *Tree) ShrinkToFit() { t.blocks.ShrinkToFit() }
