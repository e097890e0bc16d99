package header

import "fmt"

// DigestItem is one entry of a header's digest log. The recognised kinds
// mirror the consensus annotations the verification protocol reads out of
// the header: Aura and Babe pre-runtime claims, a Grandpa scheduled
// authority-set change, and a Babe next-epoch descriptor. Any other
// annotation is carried as Unknown (its own wire tag) and passed through
// unexamined; a tag byte outside the known set fails to decode. The
// verification prologue does not reject a header for carrying Unknown
// items, whatever allow_unknown_consensus_engines says: it raises
// UnknownConsensusEngine only when the finalized consensus itself is
// FinalizedUnknown.
type DigestItem interface {
	encode() ([]byte, error)
	isDigestItem()
}

const (
	digestKindAuraPreRuntime        = 0
	digestKindBabePreRuntime        = 1
	digestKindGrandpaScheduledChange = 2
	digestKindBabeNextEpoch         = 3
	digestKindUnknown               = 4
)

// AuraPreRuntime is an Aura slot claim: the slot number the block author
// claims to be producing for.
type AuraPreRuntime struct {
	Slot uint64
}

func (AuraPreRuntime) isDigestItem() {}
func (d AuraPreRuntime) encode() ([]byte, error) {
	buf := make([]byte, 9)
	buf[0] = digestKindAuraPreRuntime
	putUint64(buf[1:], d.Slot)
	return buf, nil
}

// BabePreRuntime is a Babe slot claim carrying the slot number and the
// author's VRF output for that slot.
type BabePreRuntime struct {
	Slot      uint64
	VRFOutput [32]byte
}

func (BabePreRuntime) isDigestItem() {}
func (d BabePreRuntime) encode() ([]byte, error) {
	buf := make([]byte, 1+8+32)
	buf[0] = digestKindBabePreRuntime
	putUint64(buf[1:9], d.Slot)
	copy(buf[9:], d.VRFOutput[:])
	return buf, nil
}

// AuthorityID identifies a consensus authority; both Aura and Grandpa
// authority lists use this same shape.
type AuthorityID [32]byte

// GrandpaScheduledChange announces a future Grandpa authority-set change:
// Delay blocks after the block carrying this digest, authority becomes
// NextAuthorities.
type GrandpaScheduledChange struct {
	Delay           uint64
	NextAuthorities []AuthorityID
}

func (GrandpaScheduledChange) isDigestItem() {}
func (d GrandpaScheduledChange) encode() ([]byte, error) {
	buf := []byte{digestKindGrandpaScheduledChange}
	var delayBuf [8]byte
	putUint64(delayBuf[:], d.Delay)
	buf = append(buf, delayBuf[:]...)
	buf = append(buf, scaleCompactUint(uint64(len(d.NextAuthorities)))...)
	for _, a := range d.NextAuthorities {
		buf = append(buf, a[:]...)
	}
	return buf, nil
}

// BabeNextEpoch announces the authority set, randomness, and claim
// parameters for the upcoming Babe epoch.
type BabeNextEpoch struct {
	EpochIndex  uint64
	Authorities []AuthorityID
	Randomness  [32]byte
	C1, C2      uint64 // allowed-slot constant c, expressed as a c1/c2 ratio
}

func (BabeNextEpoch) isDigestItem() {}
func (d BabeNextEpoch) encode() ([]byte, error) {
	buf := []byte{digestKindBabeNextEpoch}
	var tmp [8]byte
	putUint64(tmp[:], d.EpochIndex)
	buf = append(buf, tmp[:]...)
	buf = append(buf, scaleCompactUint(uint64(len(d.Authorities)))...)
	for _, a := range d.Authorities {
		buf = append(buf, a[:]...)
	}
	buf = append(buf, d.Randomness[:]...)
	putUint64(tmp[:], d.C1)
	buf = append(buf, tmp[:]...)
	putUint64(tmp[:], d.C2)
	buf = append(buf, tmp[:]...)
	return buf, nil
}

// Unknown preserves an unrecognised digest item's raw payload bytes.
type Unknown struct {
	Payload []byte
}

func (Unknown) isDigestItem() {}
func (d Unknown) encode() ([]byte, error) {
	buf := []byte{digestKindUnknown}
	buf = append(buf, scaleCompactUint(uint64(len(d.Payload)))...)
	return append(buf, d.Payload...), nil
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getUint64(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}

func decodeDigestItem(raw []byte, offset int) (DigestItem, int, error) {
	if offset >= len(raw) {
		return nil, offset, ErrTruncated
	}
	kind := raw[offset]
	offset++

	switch kind {
	case digestKindAuraPreRuntime:
		if offset+8 > len(raw) {
			return nil, offset, ErrTruncated
		}
		slot := getUint64(raw[offset : offset+8])
		return AuraPreRuntime{Slot: slot}, offset + 8, nil

	case digestKindBabePreRuntime:
		if offset+8+32 > len(raw) {
			return nil, offset, ErrTruncated
		}
		slot := getUint64(raw[offset : offset+8])
		var vrf [32]byte
		copy(vrf[:], raw[offset+8:offset+40])
		return BabePreRuntime{Slot: slot, VRFOutput: vrf}, offset + 40, nil

	case digestKindGrandpaScheduledChange:
		if offset+8 > len(raw) {
			return nil, offset, ErrTruncated
		}
		delay := getUint64(raw[offset : offset+8])
		offset += 8
		count, next, err := decodeCompactUint(raw, offset)
		if err != nil {
			return nil, offset, err
		}
		offset = next
		auths := make([]AuthorityID, count)
		for i := range auths {
			if offset+32 > len(raw) {
				return nil, offset, ErrTruncated
			}
			copy(auths[i][:], raw[offset:offset+32])
			offset += 32
		}
		return GrandpaScheduledChange{Delay: delay, NextAuthorities: auths}, offset, nil

	case digestKindBabeNextEpoch:
		if offset+8 > len(raw) {
			return nil, offset, ErrTruncated
		}
		epochIndex := getUint64(raw[offset : offset+8])
		offset += 8
		count, next, err := decodeCompactUint(raw, offset)
		if err != nil {
			return nil, offset, err
		}
		offset = next
		auths := make([]AuthorityID, count)
		for i := range auths {
			if offset+32 > len(raw) {
				return nil, offset, ErrTruncated
			}
			copy(auths[i][:], raw[offset:offset+32])
			offset += 32
		}
		if offset+32+16 > len(raw) {
			return nil, offset, ErrTruncated
		}
		var randomness [32]byte
		copy(randomness[:], raw[offset:offset+32])
		offset += 32
		c1 := getUint64(raw[offset : offset+8])
		c2 := getUint64(raw[offset+8 : offset+16])
		offset += 16
		return BabeNextEpoch{EpochIndex: epochIndex, Authorities: auths, Randomness: randomness, C1: c1, C2: c2}, offset, nil

	case digestKindUnknown:
		length, next, err := decodeCompactUint(raw, offset)
		if err != nil {
			return nil, offset, err
		}
		offset = next
		if offset+int(length) > len(raw) {
			return nil, offset, ErrTruncated
		}
		payload := make([]byte, length)
		copy(payload, raw[offset:offset+int(length)])
		return Unknown{Payload: payload}, offset + int(length), nil

	default:
		return nil, offset, fmt.Errorf("unrecognised digest kind %d", kind)
	}
}
