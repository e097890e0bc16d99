package trie

import "github.com/hugh-onf/lightcore/internal/metrics"

// Cache retains the trie's structural skeleton (which nibble paths are
// branches or leaves) and each node's last-computed Merkle value across
// independent root-hash calculations, so that a calculation following a
// small mutation only has to recompute the Merkle values on the path from
// the change back to the root instead of re-deriving the whole trie.
//
// A Cache starts empty (root == nil, primed == false). The first
// calculation run against an empty Cache must still request AllKeys to
// build the skeleton; every later calculation against that same Cache
// reuses it and only asks for StorageValue on nodes whose cached Merkle
// value was invalidated.
type Cache struct {
	root   *skeletonNode
	primed bool

	metrics *metrics.Registry
}

// NewCache returns an empty, unprimed cache.
func NewCache() *Cache {
	return &Cache{}
}

// SetMetrics attaches a metrics registry; subsequent calculations against
// this cache report root-computation and storage-request counts to it.
// Passing nil detaches instrumentation.
func (c *Cache) SetMetrics(r *metrics.Registry) { c.metrics = r }

// StorageValueUpdate tells the cache that key's value changed (inserted,
// overwritten, or deleted, depending on hasValue). It must be called for
// every storage mutation the caller makes; skipping a call leaves the
// skeleton out of sync with the real store and silently produces a wrong
// root on the next calculation.
func (c *Cache) StorageValueUpdate(key []byte, hasValue bool) {
	if !c.primed {
		return
	}
	path := bytesToNibbles(key)
	if hasValue {
		c.root = insert(c.root, path)
	} else {
		c.root = remove(c.root, path)
	}
}

// PrefixRemoveUpdate tells the cache that every key under prefix was
// deleted, as happens when an entire child trie or storage subtree is
// cleared in one operation. Like StorageValueUpdate, omitting this call
// after a prefix deletion leaves stale entries in the skeleton.
func (c *Cache) PrefixRemoveUpdate(prefix []byte) {
	if !c.primed {
		return
	}
	c.root = prefixRemove(c.root, bytesToNibbles(prefix))
}

// ShrinkToFit is a hint that the cache may release any memory it is
// holding beyond what its current skeleton needs. The skeleton is a plain
// pointer graph with no separate backing arena to compact, so for this
// implementation the call is a no-op; it exists so callers can treat
// Cache uniformly alongside forktree.Tree, whose arena-backed storage
// does benefit from shrinking.
func (c *Cache) ShrinkToFit() {}
