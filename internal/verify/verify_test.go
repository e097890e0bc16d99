package verify

import (
	"errors"
	"testing"

	"github.com/hugh-onf/lightcore/internal/blocktree"
	"github.com/hugh-onf/lightcore/internal/header"
)

type fakeVerifier struct {
	auraErr error
	babeErr error
}

func (f fakeVerifier) VerifyAura(h *header.Header, now uint64, parent blocktree.BlockConsensus) (AuraResult, error) {
	if f.auraErr != nil {
		return AuraResult{}, f.auraErr
	}
	return AuraResult{}, nil
}

func (f fakeVerifier) VerifyBabe(h *header.Header, now uint64, parent blocktree.BlockConsensus) (BabeResult, error) {
	if f.babeErr != nil {
		return BabeResult{}, f.babeErr
	}
	return BabeResult{SlotNumber: now}, nil
}

func newAuraTree() *blocktree.Tree {
	cfg := blocktree.DefaultConfig()
	cfg.FinalizedHeader = &header.Header{Number: 0}
	cfg.FinalizedHash = [32]byte{}
	cfg.FinalizedConsensus = blocktree.FinalizedConsensus{Kind: blocktree.FinalizedAura}
	cfg.Finality = blocktree.BlockFinality{Kind: blocktree.FinalityOutsourced}
	return blocktree.New(cfg)
}

func newBabeTree() *blocktree.Tree {
	cfg := blocktree.DefaultConfig()
	cfg.FinalizedHeader = &header.Header{Number: 0}
	cfg.FinalizedHash = [32]byte{}
	cfg.FinalizedConsensus = blocktree.FinalizedConsensus{Kind: blocktree.FinalizedBabe}
	cfg.Finality = blocktree.BlockFinality{Kind: blocktree.FinalityOutsourced}
	return blocktree.New(cfg)
}

func encodeOrFatal(t *testing.T, h *header.Header, tree *blocktree.Tree) []byte {
	t.Helper()
	raw, err := header.Encode(h, tree.BlockNumberBytes())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func TestVerifyHeaderFinalizedParentBecomesBest(t *testing.T) {
	tree := newAuraTree()
	h := &header.Header{ParentHash: tree.FinalizedHash(), Number: 1}
	raw := encodeOrFatal(t, h, tree)

	outcome, err := VerifyHeader(tree, fakeVerifier{}, raw, 0)
	if err != nil {
		t.Fatalf("VerifyHeader: %v", err)
	}
	insert, ok := outcome.(*HeaderInsert)
	if !ok {
		t.Fatalf("outcome = %T, want *HeaderInsert", outcome)
	}
	if !insert.IsNewBest() {
		t.Fatalf("expected the first block onto an empty tree to be the new best")
	}
	insert.Insert()
	if tree.Len() != 1 {
		t.Fatalf("tree len = %d, want 1", tree.Len())
	}
}

func TestVerifyHeaderDuplicate(t *testing.T) {
	tree := newAuraTree()
	h := &header.Header{ParentHash: tree.FinalizedHash(), Number: 1}
	raw := encodeOrFatal(t, h, tree)

	outcome, err := VerifyHeader(tree, fakeVerifier{}, raw, 0)
	if err != nil {
		t.Fatalf("VerifyHeader: %v", err)
	}
	outcome.(*HeaderInsert).Insert()

	again, err := VerifyHeader(tree, fakeVerifier{}, raw, 0)
	if err != nil {
		t.Fatalf("VerifyHeader (second): %v", err)
	}
	if _, ok := again.(Duplicate); !ok {
		t.Fatalf("outcome = %T, want Duplicate", again)
	}
	if tree.Len() != 1 {
		t.Fatalf("duplicate verification must not mutate the tree; len = %d", tree.Len())
	}
}

func TestVerifyHeaderBadParent(t *testing.T) {
	tree := newAuraTree()
	h := &header.Header{ParentHash: [32]byte{0x01, 0x02}, Number: 1}
	raw := encodeOrFatal(t, h, tree)

	_, err := VerifyHeader(tree, fakeVerifier{}, raw, 0)
	var badParent *BadParent
	if !errors.As(err, &badParent) {
		t.Fatalf("err = %v, want *BadParent", err)
	}
	if tree.Len() != 0 {
		t.Fatalf("BadParent must not mutate the tree; len = %d", tree.Len())
	}
}

func TestVerifyHeaderVerificationFailed(t *testing.T) {
	tree := newAuraTree()
	h := &header.Header{ParentHash: tree.FinalizedHash(), Number: 1}
	raw := encodeOrFatal(t, h, tree)

	_, err := VerifyHeader(tree, fakeVerifier{auraErr: errors.New("bad slot claim")}, raw, 0)
	var failed *VerificationFailed
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want *VerificationFailed", err)
	}
}

func TestVerifyHeaderConsensusMismatch(t *testing.T) {
	tree := newAuraTree()
	h := &header.Header{
		ParentHash: tree.FinalizedHash(),
		Number:     1,
		Digest:     []header.DigestItem{header.BabePreRuntime{Slot: 1}},
	}
	raw := encodeOrFatal(t, h, tree)

	_, err := VerifyHeader(tree, fakeVerifier{}, raw, 0)
	var mismatch *ConsensusMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want *ConsensusMismatch", err)
	}
	if tree.Len() != 0 {
		t.Fatalf("ConsensusMismatch must not mutate the tree; len = %d", tree.Len())
	}
}

func TestVerifyHeaderInvalidHeader(t *testing.T) {
	tree := newAuraTree()
	_, err := VerifyHeader(tree, fakeVerifier{}, []byte{0x01}, 0)
	var invalid *InvalidHeader
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *InvalidHeader", err)
	}
}

// TestVerifyHeaderBabeTiebreakUsesBlocksOwnSlot builds two Babe siblings at
// the same height, claiming different slots via their own BabePreRuntime
// digest, and checks that the lower-slot sibling displaces the higher-slot
// one as current best -- the §4.4 tiebreak -- and that a third, higher-slot
// sibling at the same height does not in turn displace it. Regression
// coverage for using the block's own claimed slot (not the shared,
// epoch-wide BabeCurrentEpoch.StartSlot) as the tiebreak key: the latter is
// identical for every block in an epoch and can never actually resolve a
// same-height fork.
func TestVerifyHeaderBabeTiebreakUsesBlocksOwnSlot(t *testing.T) {
	tree := newBabeTree()
	verifier := fakeVerifier{}

	highSlot := &header.Header{
		ParentHash: tree.FinalizedHash(),
		Number:     1,
		Digest:     []header.DigestItem{header.BabePreRuntime{Slot: 10}},
	}
	outcome, err := VerifyHeader(tree, verifier, encodeOrFatal(t, highSlot, tree), 0)
	if err != nil {
		t.Fatalf("VerifyHeader (high slot): %v", err)
	}
	insert, ok := outcome.(*HeaderInsert)
	if !ok {
		t.Fatalf("outcome = %T, want *HeaderInsert", outcome)
	}
	if !insert.IsNewBest() {
		t.Fatalf("first block onto an empty tree must become best")
	}
	insert.Insert()

	lowSlot := &header.Header{
		ParentHash: tree.FinalizedHash(),
		Number:     1,
		Digest:     []header.DigestItem{header.BabePreRuntime{Slot: 5}},
	}
	outcome, err = VerifyHeader(tree, verifier, encodeOrFatal(t, lowSlot, tree), 0)
	if err != nil {
		t.Fatalf("VerifyHeader (low slot): %v", err)
	}
	insert, ok = outcome.(*HeaderInsert)
	if !ok {
		t.Fatalf("outcome = %T, want *HeaderInsert", outcome)
	}
	if !insert.IsNewBest() {
		t.Fatalf("a same-height Babe sibling with a lower slot must displace the current best")
	}
	insert.Insert()

	higherSlotAgain := &header.Header{
		ParentHash: tree.FinalizedHash(),
		Number:     1,
		Digest:     []header.DigestItem{header.BabePreRuntime{Slot: 20}},
	}
	outcome, err = VerifyHeader(tree, verifier, encodeOrFatal(t, higherSlotAgain, tree), 0)
	if err != nil {
		t.Fatalf("VerifyHeader (higher slot again): %v", err)
	}
	insert, ok = outcome.(*HeaderInsert)
	if !ok {
		t.Fatalf("outcome = %T, want *HeaderInsert", outcome)
	}
	if insert.IsNewBest() {
		t.Fatalf("a same-height Babe sibling with a higher slot must not displace the current best")
	}
}

func TestVerifyBodyAbortLeavesTreeUnchanged(t *testing.T) {
	tree := newAuraTree()
	h := &header.Header{ParentHash: tree.FinalizedHash(), Number: 1}
	raw := encodeOrFatal(t, h, tree)

	outcome, err := VerifyBody(tree, raw)
	if err != nil {
		t.Fatalf("VerifyBody: %v", err)
	}
	prr, ok := outcome.(*ParentRuntimeRequired)
	if !ok {
		t.Fatalf("outcome = %T, want *ParentRuntimeRequired", outcome)
	}
	_ = prr.Abort()
	if tree.Len() != 0 {
		t.Fatalf("aborting the body path must not mutate the tree; len = %d", tree.Len())
	}
}
