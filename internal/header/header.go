// Package header decodes and hashes block headers using the chain's
// SCALE-like wire format. The codec is parameterised by block_number_bytes
// so that chains using narrower or wider block numbers than the reference
// 4-byte width still decode correctly.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrTruncated is wrapped into DecodeError when the raw bytes end before a
// fixed-width field or a declared-length section has been fully consumed.
var ErrTruncated = errors.New("header: truncated")

// DecodeError wraps a lower-level decode failure with the byte offset where
// it was detected, mirroring the "InvalidHeader(decode error)" taxonomy
// entry from the verification protocol.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("header: decode error at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Header is a decoded block header. Digest is left in its raw, still-tagged
// form; callers (the verification state machine, consensus derivation)
// pick out the digest items they recognise by type-switching on Digest.
type Header struct {
	ParentHash     [32]byte
	Number         uint64
	StateRoot      [32]byte
	ExtrinsicsRoot [32]byte
	Digest         []DigestItem
}

// Hash returns the Blake2b-256 hash of header's raw encoding. Per the
// external-interfaces contract, the hash is taken over the raw bytes as
// decoded, not a re-encoding of the struct, so callers should prefer
// HashRaw on the original bytes when they still have them; Hash here
// re-encodes for callers that only kept the struct.
func (h *Header) Hash(blockNumberBytes int) ([32]byte, error) {
	raw, err := Encode(h, blockNumberBytes)
	if err != nil {
		return [32]byte{}, err
	}
	return HashRaw(raw), nil
}

// HashRaw hashes an already-encoded header.
func HashRaw(raw []byte) [32]byte {
	return blake2b.Sum256(raw)
}

// scaleCompactUint mirrors trie.scaleCompactUint; duplicated locally to
// keep the header codec independent of the trie package (both are
// leaf-level components with no reason to depend on one another).
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

func decodeCompactUint(buf []byte, offset int) (uint64, int, error) {
	if offset >= len(buf) {
		return 0, offset, ErrTruncated
	}
	mode := buf[offset] & 0b11
	switch mode {
	case 0b00:
		return uint64(buf[offset] >> 2), offset + 1, nil
	case 0b01:
		if offset+2 > len(buf) {
			return 0, offset, ErrTruncated
		}
		v := binary.LittleEndian.Uint16(buf[offset : offset+2])
		return uint64(v >> 2), offset + 2, nil
	case 0b10:
		if offset+4 > len(buf) {
			return 0, offset, ErrTruncated
		}
		v := binary.LittleEndian.Uint32(buf[offset : offset+4])
		return uint64(v >> 2), offset + 4, nil
	default:
		n := int(buf[offset]>>2) + 4
		if offset+1+n > len(buf) {
			return 0, offset, ErrTruncated
		}
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[offset+1+i])
		}
		return v, offset + 1 + n, nil
	}
}

// Encode serialises h using the SCALE-like layout: parent hash, a
// blockNumberBytes-wide little-endian block number, state root, extrinsics
// root, and a compact-length-prefixed digest sequence.
func Encode(h *Header, blockNumberBytes int) ([]byte, error) {
	if blockNumberBytes <= 0 || blockNumberBytes > 8 {
		return nil, fmt.Errorf("header: invalid block_number_bytes %d", blockNumberBytes)
	}
	buf := make([]byte, 0, 32+blockNumberBytes+32+32+16)
	buf = append(buf, h.ParentHash[:]...)

	numBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(numBuf, h.Number)
	buf = append(buf, numBuf[:blockNumberBytes]...)
	for i := blockNumberBytes; i < 8; i++ {
		if numBuf[i] != 0 {
			return nil, fmt.Errorf("header: block number %d overflows %d-byte width", h.Number, blockNumberBytes)
		}
	}

	buf = append(buf, h.StateRoot[:]...)
	buf = append(buf, h.ExtrinsicsRoot[:]...)

	buf = append(buf, scaleCompactUint(uint64(len(h.Digest)))...)
	for _, item := range h.Digest {
		encoded, err := item.encode()
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	}
	return buf, nil
}

// Decode parses raw into a Header using blockNumberBytes for the
// block-number field's width.
func Decode(raw []byte, blockNumberBytes int) (*Header, error) {
	if blockNumberBytes <= 0 || blockNumberBytes > 8 {
		return nil, &DecodeError{Offset: 0, Err: fmt.Errorf("invalid block_number_bytes %d", blockNumberBytes)}
	}
	offset := 0
	h := &Header{}

	if len(raw) < offset+32 {
		return nil, &DecodeError{Offset: offset, Err: ErrTruncated}
	}
	copy(h.ParentHash[:], raw[offset:offset+32])
	offset += 32

	if len(raw) < offset+blockNumberBytes {
		return nil, &DecodeError{Offset: offset, Err: ErrTruncated}
	}
	numBuf := make([]byte, 8)
	copy(numBuf, raw[offset:offset+blockNumberBytes])
	h.Number = binary.LittleEndian.Uint64(numBuf)
	offset += blockNumberBytes

	if len(raw) < offset+32 {
		return nil, &DecodeError{Offset: offset, Err: ErrTruncated}
	}
	copy(h.StateRoot[:], raw[offset:offset+32])
	offset += 32

	if len(raw) < offset+32 {
		return nil, &DecodeError{Offset: offset, Err: ErrTruncated}
	}
	copy(h.ExtrinsicsRoot[:], raw[offset:offset+32])
	offset += 32

	count, newOffset, err := decodeCompactUint(raw, offset)
	if err != nil {
		return nil, &DecodeError{Offset: offset, Err: err}
	}
	offset = newOffset

	h.Digest = make([]DigestItem, 0, count)
	for i := uint64(0); i < count; i++ {
		item, next, err := decodeDigestItem(raw, offset)
		if err != nil {
			return nil, &DecodeError{Offset: offset, Err: err}
		}
		h.Digest = append(h.Digest, item)
		offset = next
	}

	return h, nil
}
