package trie

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/blake2b"
)

// runFull drives a fresh calculation (no cache reuse) against the given
// key/value store to completion, injecting every value under version, and
// returns the resulting root and cache.
func runFull(store map[string][]byte, version TrieEntryVersion) ([32]byte, *Cache) {
	return runFullVersioned(store, func(string) TrieEntryVersion { return version })
}

// runFullVersioned is like runFull but looks up each key's TrieEntryVersion
// individually, so a store can mix V0 and V1 entries in one calculation.
func runFullVersioned(store map[string][]byte, versionOf func(key string) TrieEntryVersion) ([32]byte, *Cache) {
	calc := RootMerkleValue(NewCache())
	for {
		switch step := calc.(type) {
		case *AllKeysRequest:
			keys := make([][]byte, 0, len(store))
			for k := range store {
				keys = append(keys, []byte(k))
			}
			calc = step.Inject(keys)
		case *StorageValueRequest:
			key := string(step.Key)
			calc = step.Inject(store[key], versionOf(key))
		case Finished:
			return step.Root, step.Cache
		default:
			panic("unreachable calculation step")
		}
	}
}

func TestEmptyTrieRoot(t *testing.T) {
	root, _ := runFull(map[string][]byte{}, V0)
	want := emptyTrieRoot()
	if root != want {
		t.Fatalf("empty trie root = %x, want %x", root, want)
	}
}

func TestSingleEntryMatchesManualEncoding(t *testing.T) {
	store := map[string][]byte{"\xaa": {0xbb}}
	root, _ := runFull(store, V0)

	// Leaf, partial key nibbles [a,a] (2 nibbles), inline 1-byte value: the
	// encoding smoldot-family trie codecs produce for this exact vector is
	// 0x42 0xaa 0x04 0xbb (header 0b01<<6|2, packed nibbles 0xaa, SCALE
	// compact length 1, value byte).
	expected := []byte{0x42, 0xaa, 0x04, 0xbb}
	want := blake2b.Sum256(expected)
	if root != want {
		t.Fatalf("root = %x, want %x (encoding %x)", root, want, expected)
	}
}

func TestTwoEntriesShareBranch(t *testing.T) {
	store := map[string][]byte{
		"\xaa\xaa": {0x01},
		"\xaa\xbb": {0x02},
	}
	root, _ := runFull(store, V0)
	if root == emptyTrieRoot() {
		t.Fatalf("two-entry root must not equal the empty root")
	}
}

func TestCacheReuseMatchesFullRecompute(t *testing.T) {
	store := map[string][]byte{
		"\x01": {0x01},
		"\x02": {0x02},
		"\x03": {0x03},
	}
	_, cache := runFull(store, V0)

	// Mutate: overwrite one value and add a new key.
	store["\x02"] = []byte{0x99}
	store["\x04"] = []byte{0x04}
	cache.StorageValueUpdate([]byte("\x02"), true)
	cache.StorageValueUpdate([]byte("\x04"), true)

	incremental := RootMerkleValue(cache)
	var incrementalRoot [32]byte
	for {
		switch step := incremental.(type) {
		case *StorageValueRequest:
			incremental = step.Inject(store[string(step.Key)], V0)
		case Finished:
			incrementalRoot = step.Root
			goto done
		default:
			t.Fatalf("unexpected AllKeysRequest on a primed cache")
		}
	}
done:

	fullRoot, _ := runFull(store, V0)
	if incrementalRoot != fullRoot {
		t.Fatalf("incremental root %x != full recompute root %x", incrementalRoot, fullRoot)
	}
}

func TestPrefixRemoveUpdateDropsSubtree(t *testing.T) {
	store := map[string][]byte{
		"\xaa\x01": {0x01},
		"\xaa\x02": {0x02},
		"\xbb":     {0x03},
	}
	_, cache := runFull(store, V0)

	delete(store, "\xaa\x01")
	delete(store, "\xaa\x02")
	cache.PrefixRemoveUpdate([]byte("\xaa"))

	remaining := RootMerkleValue(cache)
	var remainingRoot [32]byte
	for {
		switch step := remaining.(type) {
		case *StorageValueRequest:
			remaining = step.Inject(store[string(step.Key)], V0)
		case Finished:
			remainingRoot = step.Root
			goto done2
		default:
			t.Fatalf("unexpected AllKeysRequest on a primed cache")
		}
	}
done2:

	expectedStore := map[string][]byte{"\xbb": {0x03}}
	expectedRoot, _ := runFull(expectedStore, V0)
	if remainingRoot != expectedRoot {
		t.Fatalf("root after prefix removal %x != expected %x", remainingRoot, expectedRoot)
	}
}

func TestV0AndV1AgreeOnShortValues(t *testing.T) {
	store := map[string][]byte{"\x10": bytes.Repeat([]byte{0x7}, 10)}
	v0Root, _ := runFull(store, V0)
	v1Root, _ := runFull(store, V1)
	if v0Root != v1Root {
		t.Fatalf("V0 root %x != V1 root %x for a value shorter than the hashing threshold", v0Root, v1Root)
	}
}

func TestV1HashesLongValues(t *testing.T) {
	store := map[string][]byte{"\x10": bytes.Repeat([]byte{0x7}, 64)}
	v0Root, _ := runFull(store, V0)
	v1Root, _ := runFull(store, V1)
	if v0Root == v1Root {
		t.Fatalf("V0 and V1 roots must differ once the value is hashed under V1")
	}
}

// TestMixedVersionTrieMatchesPerEntryEncoding exercises the realistic
// post-migration case: a single trie holding both a V0 entry and a V1 entry
// whose long value must be hashed. Each entry's TrieEntryVersion is a
// property of that entry alone, not of the calculation as a whole, so the
// combined root must equal hashing each node with its own recorded version,
// not the version of whichever entry happened to be injected first.
func TestMixedVersionTrieMatchesPerEntryEncoding(t *testing.T) {
	shortValue := []byte{0x01}
	longValue := bytes.Repeat([]byte{0x7}, 64)
	store := map[string][]byte{
		"\xaa\xaa": shortValue,
		"\xaa\xbb": longValue,
	}
	versionOf := map[string]TrieEntryVersion{
		"\xaa\xaa": V0,
		"\xaa\xbb": V1,
	}
	mixedRoot, _ := runFullVersioned(store, func(key string) TrieEntryVersion { return versionOf[key] })

	// A trie with every entry forced to V1 hashes the long value identically
	// (it is long enough to be hashed under V1 regardless of what its
	// sibling does) but must diverge on the short entry's encoding only if
	// V0/V1 disagree on short values — they don't (TestV0AndV1AgreeOnShortValues)
	// — so the real assertion is that mixing versions per entry, rather than
	// collapsing to one version for the whole calculation, is what Inject
	// actually threads through.
	allV1Root, _ := runFull(store, V1)
	if mixedRoot != allV1Root {
		t.Fatalf("mixed-version root %x != all-V1 root %x; a V0 short value and a V1 short value must encode identically", mixedRoot, allV1Root)
	}

	// Now make the short entry long enough to diverge under V1, so a
	// V0-for-this-entry injection genuinely produces a different encoding
	// than V1-for-this-entry would: the mixed calculation must track that
	// per entry, not apply one version everywhere.
	store["\xaa\xaa"] = bytes.Repeat([]byte{0x9}, 64)
	mixedRoot2, _ := runFullVersioned(store, func(key string) TrieEntryVersion { return versionOf[key] })
	allV0Root2, _ := runFull(store, V0)
	allV1Root2, _ := runFull(store, V1)
	if mixedRoot2 == allV0Root2 {
		t.Fatalf("mixed root must differ from all-V0: the \\xaa\\xbb entry is V1 and long enough to hash")
	}
	if mixedRoot2 == allV1Root2 {
		t.Fatalf("mixed root must differ from all-V1: the \\xaa\\xaa entry is V0 and must stay inline despite its length")
	}
}
