package rootsync

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// blobCacheState is the engine-local blob cache's tri-state sentinel
// ("each entry is a blob+proof or a negative asked-once sentinel"):
// an index is either never consulted, holds a resolved proof, or was asked
// once and came back empty, in which case RootSync must not ask the engine
// for it again this round.
type blobCacheState int

const (
	blobUnknown blobCacheState = iota
	blobPresent
	blobAskedNegative
)

type blobCacheEntry struct {
	state blobCacheState
	proof *iface.BlobProof
}

// engineBlobCache is the bounded LRU named in the cache discipline:
// ~512 entries (one epoch × ~16 blobs/block). When full, golang-lru's Add
// evicts the least-recently-used entry, and a lookup through get counts as
// a use, so the drop order is LRU rather than insertion (FIFO) order.
type engineBlobCache struct {
	cache *lru.Cache
}

func newEngineBlobCache(cfg *config.BlockInputConfig) *engineBlobCache {
	c, err := lru.New(cfg.EngineBlobCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size; the config default is
		// always positive, so this path is unreachable in practice.
		c, _ = lru.New(1)
	}
	return &engineBlobCache{cache: c}
}

func (e *engineBlobCache) get(hash primitives.Root) (blobCacheEntry, bool) {
	v, ok := e.cache.Get(hash)
	if !ok {
		return blobCacheEntry{}, false
	}
	return v.(blobCacheEntry), true
}

func (e *engineBlobCache) setPresent(hash primitives.Root, proof *iface.BlobProof) {
	e.cache.Add(hash, blobCacheEntry{state: blobPresent, proof: proof})
}

func (e *engineBlobCache) setNegative(hash primitives.Root) {
	e.cache.Add(hash, blobCacheEntry{state: blobAskedNegative})
}

// retryTracker is the bounded set of block-roots for which the engine-local
// cache has already been consulted once: subsequent download rounds
// for the same root skip straight to the peer path.
type retryTracker struct {
	cache *lru.Cache
}

func newRetryTracker(size int) *retryTracker {
	c, err := lru.New(size)
	if err != nil {
		c, _ = lru.New(1)
	}
	return &retryTracker{cache: c}
}

func (r *retryTracker) consulted(root primitives.Root) bool {
	_, ok := r.cache.Get(root)
	return ok
}

func (r *retryTracker) markConsulted(root primitives.Root) {
	r.cache.Add(root, struct{}{})
}
