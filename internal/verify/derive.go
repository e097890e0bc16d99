package verify

import (
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/uint256"

	"github.com/hugh-onf/lightcore/internal/blocktree"
	"github.com/hugh-onf/lightcore/internal/header"
)

// authoritiesFingerprint returns a cheap, non-cryptographic fingerprint of
// an authority list for log correlation: printing every 32-byte authority
// key on every consensus-derivation log line would be unreadable, but a
// single 64-bit fingerprint lets an operator tell "same set" from
// "different set" across log lines at a glance.
func authoritiesFingerprint(authorities []header.AuthorityID) uint64 {
	d := xxhash.New()
	for _, a := range authorities {
		_, _ = d.Write(a[:])
	}
	return d.Sum64()
}

// ErrTriggerHeightOverflow reports that a Grandpa scheduled change's
// trigger height (block number + delay) would overflow uint64, which the
// scheduled-change invariant (trigger height above the block's own height)
// requires never to silently wrap.
var ErrTriggerHeightOverflow = errors.New("verify: scheduled-change trigger height overflow")

// digestEngineKind reports which engine's pre-runtime digest item h's
// digest carries, and whether exactly one such item was found (zero or
// more than one leaves the header's own claimed engine ambiguous, which
// this core does not try to resolve itself).
func digestEngineKind(h *header.Header) (blocktree.EngineKind, bool) {
	var found blocktree.EngineKind
	count := 0
	for _, item := range h.Digest {
		switch item.(type) {
		case header.AuraPreRuntime:
			found = blocktree.EngineAura
			count++
		case header.BabePreRuntime:
			found = blocktree.EngineBabe
			count++
		}
	}
	if count != 1 {
		return 0, false
	}
	return found, true
}

// checkConsensusDigestMatches verifies that h's own pre-runtime digest item,
// when present and unambiguous, names the same engine the block inherits
// from its parent's BlockConsensus. Surfaces *ConsensusMismatch otherwise.
func checkConsensusDigestMatches(h *header.Header, parent blocktree.BlockConsensus) error {
	kind, ok := digestEngineKind(h)
	if !ok {
		return nil
	}
	if kind != parent.Kind {
		return &ConsensusMismatch{}
	}
	return nil
}

// babeSlotOf returns the slot number h's own digest claims via a
// BabePreRuntime item, or nil if h carries no such item. The slot is
// re-derived from the header rather than cached on BlockConsensus (which is
// shared, epoch-wide state, not a per-block value) so that two Babe blocks
// at the same height with the same epoch can still be told apart.
func babeSlotOf(h *header.Header) *uint64 {
	for _, item := range h.Digest {
		if p, ok := item.(header.BabePreRuntime); ok {
			slot := p.Slot
			return &slot
		}
	}
	return nil
}

// slotNumberOf returns the block's own claimed slot number when c is a Babe
// block, or nil otherwise (including for Aura, which has no slot-based
// tiebreak).
func slotNumberOf(c blocktree.BlockConsensus, h *header.Header) *uint64 {
	if c.Kind != blocktree.EngineBabe {
		return nil
	}
	return babeSlotOf(h)
}

// isNewBest implements the "better block" ordering: higher block number
// wins; ties broken by a consensus-specific rule (Babe: lower slot number
// wins; Aura: no tiebreak beyond number, so a tie never displaces the
// current best).
func isNewBest(candidateNumber, bestNumber uint64, candidateSlot, bestSlot *uint64) bool {
	if candidateNumber != bestNumber {
		return candidateNumber > bestNumber
	}
	if candidateSlot != nil && bestSlot != nil {
		return *candidateSlot < *bestSlot
	}
	return false
}

// AuraResult is the opaque Aura verifier's report: whether the block's
// digest carries an authorities_change and, if so, the new list (sourced
// from the digest, which this core treats as opaque per the reference's
// open question on where that list actually comes from).
type AuraResult struct {
	AuthoritiesChange    bool
	NewAuthorities       []header.AuthorityID
}

// deriveAuraConsensus implements §4.4's Aura consensus derivation.
func deriveAuraConsensus(parent blocktree.BlockConsensus, result AuraResult) blocktree.BlockConsensus {
	authorities := parent.AuraAuthorities
	if result.AuthoritiesChange {
		authorities = result.NewAuthorities
	}
	return blocktree.BlockConsensus{Kind: blocktree.EngineAura, AuraAuthorities: authorities}
}

// BabeResult is the opaque Babe verifier's report.
type BabeResult struct {
	SlotNumber            uint64
	EpochTransitionTarget *blocktree.EpochInfo
}

// deriveBabeConsensus implements §4.4's Babe consensus derivation.
func deriveBabeConsensus(parent blocktree.BlockConsensus, result BabeResult) blocktree.BlockConsensus {
	if result.EpochTransitionTarget == nil {
		return blocktree.BlockConsensus{
			Kind:             blocktree.EngineBabe,
			BabeCurrentEpoch: parent.BabeCurrentEpoch,
			BabeNextEpoch:    parent.BabeNextEpoch,
		}
	}

	promoted := parent.BabeNextEpoch.Clone()
	if promoted.StartSlot == nil {
		slot := result.SlotNumber
		promoted.StartSlot = &slot
	}
	return blocktree.BlockConsensus{
		Kind:             blocktree.EngineBabe,
		BabeCurrentEpoch: &promoted,
		BabeNextEpoch:    *result.EpochTransitionTarget,
	}
}

// deriveGrandpaFinality implements §4.4's Grandpa finality derivation: it
// scans the header's digest for GrandpaScheduledChange items, applies
// first-schedule-wins, and then checks whether the pending schedule
// triggers at this exact block height.
func deriveGrandpaFinality(parent blocktree.BlockFinality, blockNumber uint64, digest []header.DigestItem) (blocktree.BlockFinality, error) {
	next := blocktree.BlockFinality{
		Kind:                       blocktree.FinalityGrandpa,
		TriggeredAuthorities:       parent.TriggeredAuthorities,
		AfterBlockAuthoritiesSetID: parent.AfterBlockAuthoritiesSetID,
		ScheduledChange:            parent.ScheduledChange,
	}

	for _, item := range digest {
		sc, ok := item.(header.GrandpaScheduledChange)
		if !ok {
			continue
		}
		if next.ScheduledChange != nil {
			continue // first-schedule-wins
		}
		// uint256 gives the addition 256 bits of headroom, so the sum
		// itself never wraps; the only overflow that can occur is on the
		// narrowing back to the uint64 block-height domain.
		number := uint256.NewInt(blockNumber)
		delay := uint256.NewInt(sc.Delay)
		trigger := new(uint256.Int).Add(number, delay)
		if !trigger.IsUint64() {
			return blocktree.BlockFinality{}, ErrTriggerHeightOverflow
		}
		next.ScheduledChange = &blocktree.ScheduledChange{
			TriggerHeight:   trigger.Uint64(),
			NextAuthorities: sc.NextAuthorities,
		}
	}

	if next.ScheduledChange != nil && next.ScheduledChange.TriggerHeight == blockNumber {
		next.TriggersChange = true
		next.TriggeredAuthorities = next.ScheduledChange.NextAuthorities
		next.ScheduledChange = nil
	}

	if parent.TriggersChange {
		prev := blockNumber - 1
		next.PrevAuthChangeTriggerNumber = &prev
	} else {
		next.PrevAuthChangeTriggerNumber = parent.PrevAuthChangeTriggerNumber
	}

	if next.TriggersChange {
		next.AfterBlockAuthoritiesSetID = parent.AfterBlockAuthoritiesSetID + 1
	}

	return next, nil
}
