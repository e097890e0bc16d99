package header

import "testing"

func roundTrip(t *testing.T, h *Header, blockNumberBytes int) *Header {
	t.Helper()
	raw, err := Encode(h, blockNumberBytes)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw, blockNumberBytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

func TestRoundTripNoDigest(t *testing.T) {
	h := &Header{Number: 42}
	h.ParentHash[0] = 0xaa
	h.StateRoot[0] = 0xbb
	h.ExtrinsicsRoot[0] = 0xcc

	got := roundTrip(t, h, 4)
	if got.Number != 42 || got.ParentHash != h.ParentHash {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Digest) != 0 {
		t.Fatalf("expected no digest items, got %d", len(got.Digest))
	}
}

func TestRoundTripWithDigests(t *testing.T) {
	h := &Header{
		Number: 7,
		Digest: []DigestItem{
			AuraPreRuntime{Slot: 1234},
			GrandpaScheduledChange{Delay: 10, NextAuthorities: []AuthorityID{{0x01}, {0x02}}},
			Unknown{Payload: []byte{0xde, 0xad, 0xbe, 0xef}},
		},
	}
	got := roundTrip(t, h, 4)
	if len(got.Digest) != 3 {
		t.Fatalf("expected 3 digest items, got %d", len(got.Digest))
	}
	aura, ok := got.Digest[0].(AuraPreRuntime)
	if !ok || aura.Slot != 1234 {
		t.Fatalf("digest[0] = %#v, want AuraPreRuntime{Slot: 1234}", got.Digest[0])
	}
	gsc, ok := got.Digest[1].(GrandpaScheduledChange)
	if !ok || gsc.Delay != 10 || len(gsc.NextAuthorities) != 2 {
		t.Fatalf("digest[1] = %#v, want GrandpaScheduledChange{Delay: 10, len 2}", got.Digest[1])
	}
}

func TestBlockNumberWidthOverflow(t *testing.T) {
	h := &Header{Number: 1 << 20}
	if _, err := Encode(h, 2); err == nil {
		t.Fatalf("expected overflow error encoding a large number into a 2-byte width")
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02}, 4); err == nil {
		t.Fatalf("expected a truncation error decoding a too-short buffer")
	}
}

func TestHashDependsOnContent(t *testing.T) {
	h1 := &Header{Number: 1}
	h2 := &Header{Number: 2}
	hash1, err := h1.Hash(4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hash2, err := h2.Hash(4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash1 == hash2 {
		t.Fatalf("headers with different numbers must hash differently")
	}
}
