package trie

import (
	"github.com/bits-and-blooms/bitset"
	"golang.org/x/crypto/blake2b"
)

// nodeKind is the 2-bit discriminator stored in the top bits of a node's
// header byte.
type nodeKind byte

const (
	kindLeaf       nodeKind = 0b01
	kindBranchNoV  nodeKind = 0b10
	kindBranchValV nodeKind = 0b11
)

// lenSentinel is the maximum partial-key length representable directly in
// the 6 low bits of the header byte; longer keys continue the length as a
// run of extra bytes.
const lenSentinel = 0x3f

// encodeHeader writes a node's (kind, partial-key length) header, inline for
// short keys and sentinel+continuation for long ones.
func encodeHeader(kind nodeKind, pkLen int) []byte {
	if pkLen < lenSentinel {
		return []byte{byte(kind)<<6 | byte(pkLen)}
	}
	out := []byte{byte(kind)<<6 | lenSentinel}
	rem := pkLen - lenSentinel
	for rem >= 0xff {
		out = append(out, 0xff)
		rem -= 0xff
	}
	return append(out, byte(rem))
}

// packNibbles packs a nibble sequence into bytes, two nibbles per byte, high
// nibble first. An odd trailing nibble occupies the high nibble of a final
// byte whose low nibble is zero-padded.
func packNibbles(nibbles []byte) []byte {
	out := make([]byte, (len(nibbles)+1)/2)
	i := 0
	for ; i+1 < len(nibbles); i += 2 {
		out[i/2] = nibbles[i]<<4 | nibbles[i+1]
	}
	if i < len(nibbles) {
		out[i/2] = nibbles[i] << 4
	}
	return out
}

// scaleCompactUint encodes n using the SCALE compact-integer format: the two
// low bits of the first byte select a mode (1/2/4/N bytes), as used
// throughout Substrate-family wire formats for lengths and small integers.
func scaleCompactUint(n uint64) []byte {
	switch {
	case n < 1<<6:
		return []byte{byte(n << 2)}
	case n < 1<<14:
		v := uint16(n<<2) | 0b01
		return []byte{byte(v), byte(v >> 8)}
	case n < 1<<30:
		v := uint32(n<<2) | 0b10
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	default:
		var buf []byte
		for n > 0 {
			buf = append(buf, byte(n))
			n >>= 8
		}
		out := make([]byte, 0, len(buf)+1)
		out = append(out, byte((len(buf)-4)<<2)|0b11)
		return append(out, buf...)
	}
}

// hashedValueMarker precedes a value's compact length when that value is
// stored by its Blake2b-256 hash rather than inline (TrieEntryVersion V1,
// value length >= hashedValueThreshold). Its absence is what keeps a V0
// encoding and a V1 encoding of the same short value byte-identical, per the
// version-agnosticism-on-short-values property.
const hashedValueMarker = 0x01

// hashedValueThreshold is the storage-value length, in bytes, at or above
// which a V1 entry stores the value's hash instead of the value itself.
const hashedValueThreshold = 33

// encodeValue appends value's on-the-wire representation to buf: inline for
// V0 and for V1 values shorter than hashedValueThreshold, hashed for longer
// V1 values.
func encodeValue(buf []byte, value []byte, version TrieEntryVersion) []byte {
	if version == V1 && len(value) >= hashedValueThreshold {
		sum := blake2b.Sum256(value)
		buf = append(buf, hashedValueMarker)
		buf = append(buf, scaleCompactUint(32)...)
		return append(buf, sum[:]...)
	}
	buf = append(buf, scaleCompactUint(uint64(len(value)))...)
	return append(buf, value...)
}

// encodeLeaf returns the raw node encoding for a leaf holding value at
// version.
func encodeLeaf(partialKey []byte, value []byte, version TrieEntryVersion) []byte {
	buf := encodeHeader(kindLeaf, len(partialKey))
	buf = append(buf, packNibbles(partialKey)...)
	return encodeValue(buf, value, version)
}

// branchChild describes one of a branch's 16 potential children for
// encoding purposes: either absent, or present with a precomputed Merkle
// value.
type branchChild struct {
	present bool
	merkle  []byte
}

// encodeBranch returns the raw node encoding for a branch node. value is nil
// when the branch carries no storage value of its own.
func encodeBranch(partialKey []byte, children [16]branchChild, value []byte, hasValue bool, version TrieEntryVersion) []byte {
	kind := kindBranchNoV
	if hasValue {
		kind = kindBranchValV
	}
	buf := encodeHeader(kind, len(partialKey))
	buf = append(buf, packNibbles(partialKey)...)

	occupancy := bitset.New(16)
	for i, c := range children {
		if c.present {
			occupancy.Set(uint(i))
		}
	}
	// BitSet packs bits into 64-bit words; our 16-bit occupancy map always
	// fits entirely in the first word.
	words := occupancy.Bytes()
	var bitmap uint16
	if len(words) > 0 {
		bitmap = uint16(words[0])
	}
	buf = append(buf, byte(bitmap), byte(bitmap>>8))

	if hasValue {
		buf = encodeValue(buf, value, version)
	}
	for _, c := range children {
		if !c.present {
			continue
		}
		buf = append(buf, scaleCompactUint(uint64(len(c.merkle)))...)
		buf = append(buf, c.merkle...)
	}
	return buf
}

// merkleValueThreshold is the encoded-node size, in bytes, at or above which
// a node's Merkle value is its hash rather than its raw encoding.
const merkleValueThreshold = 32

// merkleValue returns the Merkle value of an already-encoded node: the
// encoding itself if short, otherwise its Blake2b-256 hash. force bypasses
// the length check, always hashing; the trie root is always computed with
// force set so that callers get a fixed-size 32-byte hash regardless of how
// small the root node's own encoding happens to be.
func merkleValue(encoding []byte, force bool) []byte {
	if !force && len(encoding) < merkleValueThreshold {
		return encoding
	}
	sum := blake2b.Sum256(encoding)
	return sum[:]
}

// emptyTrieRoot is the root hash of a trie with no entries.
func emptyTrieRoot() [32]byte {
	return blake2b.Sum256([]byte{0x00})
}
