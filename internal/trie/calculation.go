package trie

// Calculation is the sum type returned at every step of a root Merkle value
// computation. Exactly one of Finished, AllKeysRequest, or
// StorageValueRequest describes the current step; callers type-switch on it
// and either read the result or answer the request to obtain the next step.
type Calculation interface {
	isCalculation()
}

// Finished carries the completed root hash and the cache to keep around for
// the next calculation against the same (possibly since-mutated) trie.
type Finished struct {
	Root  [32]byte
	Cache *Cache
}

func (Finished) isCalculation() {}

// AllKeysRequest is emitted at most once per calculation, only when the
// supplied cache has no primed skeleton yet. The caller must answer with
// every key currently in the storage backing this trie.
type AllKeysRequest struct {
	resume func(keys [][]byte) Calculation
}

func (*AllKeysRequest) isCalculation() {}

// Inject answers an AllKeysRequest and returns the next step.
func (r *AllKeysRequest) Inject(keys [][]byte) Calculation { return r.resume(keys) }

// StorageValueRequest asks the caller for the current value stored at Key.
// It is only ever emitted for a node whose cached Merkle value is stale
// (or absent) and which is known, from the skeleton, to hold a value. The
// injected TrieEntryVersion is a property of this one value, not of the
// calculation as a whole: a trie populated across a version migration
// legitimately holds a mix of V0 and V1 entries, and each must be encoded
// with its own recorded version for the root to come out correct.
type StorageValueRequest struct {
	Key []byte

	resume func(value []byte, version TrieEntryVersion) Calculation
}

func (*StorageValueRequest) isCalculation() {}

// Inject answers a StorageValueRequest with the stored value and the
// version it was written under, and returns the next step.
func (r *StorageValueRequest) Inject(value []byte, version TrieEntryVersion) Calculation {
	return r.resume(value, version)
}

// RootMerkleValue begins (or resumes after a mutation) the computation of a
// trie's root hash. cache may be freshly constructed via NewCache (in which
// case the first step is always an AllKeysRequest) or a cache retained from
// a previous calculation, in which case only the nodes invalidated by
// StorageValueUpdate/PrefixRemoveUpdate since then will be re-requested.
// Per-value TrieEntryVersion is supplied at each StorageValueRequest, not
// here, since different entries in the same trie may carry different
// versions.
func RootMerkleValue(cache *Cache) Calculation {
	if cache == nil {
		cache = NewCache()
	}
	if !cache.primed {
		return &AllKeysRequest{resume: func(keys [][]byte) Calculation {
			for _, k := range keys {
				cache.root = insert(cache.root, bytesToNibbles(k))
			}
			cache.primed = true
			return continueCalculation(cache)
		}}
	}
	return continueCalculation(cache)
}

// storedValue is a storage value as injected into a calculation, paired
// with the TrieEntryVersion it was injected under.
type storedValue struct {
	value   []byte
	version TrieEntryVersion
}

// continueCalculation collects every dirty value-bearing node in the
// skeleton and threads StorageValueRequests through them one at a time,
// finishing with a single bottom-up Merkle value pass once every value is
// in hand.
func continueCalculation(cache *Cache) Calculation {
	var pending []dirtyNode
	collectDirty(cache.root, nil, &pending)

	values := make(map[string]storedValue, len(pending))
	return requestNext(cache, pending, values, 0)
}

type dirtyNode struct {
	path []byte // nibble path from the trie root
}

// collectDirty walks the skeleton depth-first, recording the nibble path of
// every node whose cached Merkle value is stale and which carries a storage
// value (branch-with-value or leaf). Nodes with a still-valid cached value
// are skipped entirely, along with their subtrees when also clean; a branch
// whose own value is clean may still contain dirty descendants, so its
// children are always visited.
func collectDirty(node *skeletonNode, prefix []byte, out *[]dirtyNode) {
	if node == nil {
		return
	}
	path := append(append([]byte{}, prefix...), node.partialKey...)

	if node.merkle == nil && node.hasValue {
		*out = append(*out, dirtyNode{path: cloneNibbles(path)})
	}
	if node.isBranch {
		for i, c := range node.children {
			if c == nil {
				continue
			}
			childPath := append(append([]byte{}, path...), byte(i))
			collectDirty(c, childPath, out)
		}
	}
}

// requestNext either emits the next StorageValueRequest or, once every
// pending value has been collected, performs the Merkle computation and
// returns Finished.
func requestNext(cache *Cache, pending []dirtyNode, values map[string]storedValue, i int) Calculation {
	if i >= len(pending) {
		root := computeMerkle(cache.root, nil, values, true)
		var out [32]byte
		if cache.root == nil {
			out = emptyTrieRoot()
		} else {
			copy(out[:], root)
		}
		if cache.metrics != nil {
			cache.metrics.TrieRootComputations.Inc()
		}
		return Finished{Root: out, Cache: cache}
	}
	key := nibblesToBytes(pending[i].path)
	if cache.metrics != nil {
		cache.metrics.TrieStorageRequests.Inc()
	}
	return &StorageValueRequest{
		Key: key,
		resume: func(value []byte, version TrieEntryVersion) Calculation {
			values[string(pending[i].path)] = storedValue{value: value, version: version}
			return requestNext(cache, pending, values, i+1)
		},
	}
}

// computeMerkle returns node's Merkle value, recomputing (and caching) it
// when stale. force always hashes rather than embedding, used for the trie
// root so the final result is a fixed 32-byte hash. Each value-bearing
// node's own injected TrieEntryVersion (carried in values) governs how its
// value is encoded; a branch or leaf with no pending value lookup (value
// unchanged since the last calculation) recomputes nothing and is never
// consulted here at all, since a clean node's cached merkle is returned
// directly above.
func computeMerkle(node *skeletonNode, path []byte, values map[string]storedValue, force bool) []byte {
	if node == nil {
		return nil
	}
	// node.merkle already reflects whatever hashing rule applied the last
	// time it was computed (the root's own force-hash included), so a
	// cached value is reusable regardless of force.
	if node.merkle != nil {
		return node.merkle
	}

	var encoding []byte
	if node.isBranch {
		var childInfos [16]branchChild
		for i, c := range node.children {
			if c == nil {
				continue
			}
			childPath := append(append([]byte{}, path...), node.partialKey...)
			childPath = append(childPath, byte(i))
			childInfos[i] = branchChild{present: true, merkle: computeMerkle(c, childPath, values, false)}
		}
		var val []byte
		var version TrieEntryVersion
		if node.hasValue {
			fullPath := append(append([]byte{}, path...), node.partialKey...)
			sv := values[string(fullPath)]
			val, version = sv.value, sv.version
		}
		encoding = encodeBranch(node.partialKey, childInfos, val, node.hasValue, version)
	} else {
		fullPath := append(append([]byte{}, path...), node.partialKey...)
		sv := values[string(fullPath)]
		encoding = encodeLeaf(node.partialKey, sv.value, sv.version)
	}

	mv := merkleValue(encoding, force)
	node.merkle = mv
	return mv
}
