// Package seen implements the SeenBlockInput cache: the single
// registry of in-flight BlockInput entities, keyed by block root. There is
// no secondary index: a sidecar finds (or creates) its entity through the
// block root carried in its signed block header (BlockRoot()).
package seen

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nodewright/blockinput/blockinput"
	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

var log = logrus.WithField("prefix", "blockinput/seen")

var (
	entriesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "block_input_seen_entries_created_total",
		Help: "Number of SeenBlockInput entries created, labeled by the artifact that triggered creation.",
	}, []string{"source"})
	duplicateSightings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "block_input_seen_duplicate_sightings_total",
		Help: "Number of sightings of an artifact already recorded in its BlockInput.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(entriesCreated, duplicateSightings)
}

// Cache is the SeenBlockInput registry. It is safe for concurrent use.
type Cache struct {
	cfg *config.BlockInputConfig
	crypto iface.CryptoVerifier
	clock iface.Clock

	mu sync.RWMutex
	byRoot map[primitives.Root]*blockinput.BlockInput
	createdAt map[primitives.Root]time.Time

	// dup is the go-cache-backed duplicate-sighting suppressor: it lets the
	// driver ask "have I logged a duplicate for this root recently" without
	// growing byRoot, auto-expiring entries so a chatty peer can't pin
	// memory.
	dup *gocache.Cache
}

// New builds an empty cache. clock may be nil, in which case every entity is
// treated as within the DA retention window.
func New(cfg *config.BlockInputConfig, crypto iface.CryptoVerifier, clock iface.Clock) *Cache {
	return &Cache{
		cfg: cfg,
		crypto: crypto,
		clock: clock,
		byRoot: make(map[primitives.Root]*blockinput.BlockInput),
		createdAt: make(map[primitives.Root]time.Time),
		dup: gocache.New(time.Minute, 5*time.Minute),
	}
}

// isOutOfRange reports whether slot is older than cfg.DARetentionEpochs,
// measured against the clock's current slot.
func (c *Cache) isOutOfRange(slot primitives.Slot) bool {
	if c.clock == nil {
		return false
	}
	current := c.clock.CurrentSlot()
	if current < slot {
		return false
	}
	currentEpoch := current.ToEpoch()
	slotEpoch := slot.ToEpoch()
	if currentEpoch < slotEpoch {
		return false
	}
	return uint64(currentEpoch-slotEpoch) > c.cfg.DARetentionEpochs
}

// seenDuplicateRecently reports whether a duplicate sighting for key was
// already logged within the suppression window, marking it seen if not.
func (c *Cache) seenDuplicateRecently(key string) bool {
	if _, found := c.dup.Get(key); found {
		return true
	}
	c.dup.SetDefault(key, struct{}{})
	return false
}

// GetByRoot returns the entity for root, if any.
func (c *Cache) GetByRoot(root primitives.Root) (*blockinput.BlockInput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bi, ok := c.byRoot[root]
	return bi, ok
}

// GetOrCreateFromBlock returns the existing entity for the block's root,
// adding the block to it, or constructs and registers a new one.
func (c *Cache) GetOrCreateFromBlock(block iface.SignedBeaconBlock, source iface.SourceTag, seenAt time.Time, daType iface.DAType, numColumns uint64, custodyColumns, sampledColumns []uint64) (*blockinput.BlockInput, bool, error) {
	root, err := block.Root()
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bi, ok := c.byRoot[root]; ok {
		duplicateSightings.WithLabelValues("block").Inc()
		if !c.seenDuplicateRecently("block:" + root.String()) {
			log.WithField("root", root).Debug("duplicate block sighting")
		}
		if err := bi.AddBlock(block, source, seenAt, blockinput.AddOpts{}); err != nil {
			return nil, false, err
		}
		return bi, false, nil
	}
	bi, err := blockinput.NewFromBlock(c.cfg, c.crypto, block, source, seenAt, daType, numColumns, custodyColumns, sampledColumns, c.isOutOfRange(block.Slot()))
	if err != nil {
		return nil, false, err
	}
	c.byRoot[root] = bi
	c.createdAt[root] = seenAt
	entriesCreated.WithLabelValues("block").Inc()
	log.WithField("root", root).Debug("created block input from block")
	return bi, true, nil
}

// GetOrCreateFromBlob returns the existing entity for the blob's block root,
// or constructs and registers a new one, adding the blob to it.
func (c *Cache) GetOrCreateFromBlob(sidecar iface.BlobSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID) (*blockinput.BlockInput, bool, error) {
	root := sidecar.BlockRoot()

	c.mu.Lock()
	if bi, ok := c.byRoot[root]; ok {
		if !c.seenDuplicateRecently("blob:" + root.String()) {
			duplicateSightings.WithLabelValues("blob").Inc()
		}
		c.mu.Unlock()
		if err := bi.AddBlob(sidecar, source, seenAt, p, blockinput.AddOpts{}); err != nil {
			return nil, false, err
		}
		return bi, false, nil
	}
	defer c.mu.Unlock()

	bi, err := blockinput.NewFromBlob(c.cfg, c.crypto, sidecar, source, seenAt, p, c.isOutOfRange(sidecar.BlockSlot()))
	if err != nil {
		return nil, false, err
	}
	c.byRoot[root] = bi
	c.createdAt[root] = seenAt
	entriesCreated.WithLabelValues("blob").Inc()
	log.WithField("root", root).Debug("created block input from blob")
	return bi, true, nil
}

// GetOrCreateFromColumn is the Columns-variant analogue of
// GetOrCreateFromBlob.
func (c *Cache) GetOrCreateFromColumn(sidecar iface.ColumnSidecar, numColumns uint64, custodyColumns, sampledColumns []uint64, source iface.SourceTag, seenAt time.Time, p peer.ID) (*blockinput.BlockInput, bool, error) {
	root := sidecar.BlockRoot()

	c.mu.Lock()
	if bi, ok := c.byRoot[root]; ok {
		if !c.seenDuplicateRecently("column:" + root.String()) {
			duplicateSightings.WithLabelValues("column").Inc()
		}
		c.mu.Unlock()
		if err := bi.AddColumn(sidecar, source, seenAt, p, blockinput.AddOpts{}); err != nil {
			return nil, false, err
		}
		return bi, false, nil
	}
	defer c.mu.Unlock()

	bi, err := blockinput.NewFromColumn(c.cfg, c.crypto, sidecar, numColumns, custodyColumns, sampledColumns, source, seenAt, p, c.isOutOfRange(sidecar.BlockSlot()))
	if err != nil {
		return nil, false, err
	}
	c.byRoot[root] = bi
	c.createdAt[root] = seenAt
	entriesCreated.WithLabelValues("column").Inc()
	log.WithField("root", root).Debug("created block input from column")
	return bi, true, nil
}

// Delete removes root's entity from the cache, used by persistence and by
// the driver once a block has been fully processed or permanently rejected.
func (c *Cache) Delete(root primitives.Root) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byRoot, root)
	delete(c.createdAt, root)
}

// Len reports the number of entities currently tracked, for metrics and
// tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byRoot)
}

// Prune removes entities older than maxAge whose data never completed,
// preventing an eternally-incomplete entity (e.g. one created from a lone
// late blob whose block never showed up) from leaking memory forever.
func (c *Cache) Prune(now time.Time, maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for root, bi := range c.byRoot {
		if bi.HasBlockAndAllData() {
			continue
		}
		created, ok := c.createdAt[root]
		if !ok || now.Sub(created) < maxAge {
			continue
		}
		delete(c.byRoot, root)
		delete(c.createdAt, root)
		removed++
	}
	return removed
}
