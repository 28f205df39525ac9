// Package blockinput implements the per-(slot, block-root) BlockInput entity
// that is the single point of truth tracking, for one candidate block,
// whether the block body and its associated blob or data-column sidecars
// have all been seen, and lets callers wait for either or both without
// polling.
package blockinput

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

var log = logrus.WithField("prefix", "blockinput")

// BlockInput owns everything known so far about a single candidate block and
// its data-availability artifacts. Its identity (root, slot, parentRoot,
// daType) is immutable once constructed; everything else is guarded by mu
// because, unlike a single-threaded scheduler, goroutines here genuinely
// race to add blobs, add columns, and add the block.
type BlockInput struct {
	cfg *config.BlockInputConfig
	crypto iface.CryptoVerifier

	root primitives.Root
	slot primitives.Slot
	parentRoot primitives.Root
	daType iface.DAType

	// daOutOfRange is fixed at construction: true when slot falls outside
	// the DA retention window at the time this entity was created.
	daOutOfRange bool

	// custodyColumns/sampledColumns are fixed at construction for the
	// Columns variant and nil otherwise.
	custodyColumns columnSet
	sampledColumns columnSet

	mu sync.Mutex

	hasBlock bool
	block iface.SignedBeaconBlock
	blockSource iface.SourceTag
	versionedHashes []primitives.Root

	blobs map[uint64]blobCacheEntry
	columns map[uint64]columnCacheEntry

	timeComplete int64 // unix seconds; zero means not yet complete

	blockPromise *promise
	dataPromise *promise
}

func newBlockInput(cfg *config.BlockInputConfig, crypto iface.CryptoVerifier, root primitives.Root, slot primitives.Slot, parentRoot primitives.Root, daType iface.DAType, custody, sampled columnSet, daOutOfRange bool) *BlockInput {
	return &BlockInput{
		cfg: cfg,
		crypto: crypto,
		root: root,
		slot: slot,
		parentRoot: parentRoot,
		daType: daType,
		daOutOfRange: daOutOfRange,
		custodyColumns: custody,
		sampledColumns: sampled,
		blobs: make(map[uint64]blobCacheEntry),
		columns: make(map[uint64]columnCacheEntry),
		blockPromise: newPromise(),
		dataPromise: newPromise(),
	}
}

// NewFromBlock creates a BlockInput whose block half is already known. daType
// must reflect the fork active at slot (pre-Deneb PreData, pre-Fulu Blobs, or
// post-Fulu Columns) since the block alone cannot reveal which DA variant
// applies. custodyColumns/sampledColumns are only consulted when daType is
// DATypeColumns. crypto is consulted for versioned-hash derivation and for
// validating any sidecars subsequently added. daOutOfRange marks a slot
// already past the DA retention window; a zero-commitment block or an
// out-of-range slot starts complete immediately.
func NewFromBlock(cfg *config.BlockInputConfig, crypto iface.CryptoVerifier, block iface.SignedBeaconBlock, source iface.SourceTag, seenAt time.Time, daType iface.DAType, numColumns uint64, custodyColumns, sampledColumns []uint64, daOutOfRange bool) (*BlockInput, error) {
	root, err := block.Root()
	if err != nil {
		return nil, errors.Wrap(err, "compute block root")
	}
	bi := newBlockInput(cfg, crypto, root, block.Slot(), block.ParentRoot(), daType,
		newColumnSet(numColumns, custodyColumns), newColumnSet(numColumns, sampledColumns), daOutOfRange)
	if err := bi.setBlock(block, source, seenAt); err != nil {
		return nil, err
	}
	return bi, nil
}

// NewFromBlob creates a BlockInput discovered via a blob sidecar arriving
// before its block. The variant is implicitly Blobs.
func NewFromBlob(cfg *config.BlockInputConfig, crypto iface.CryptoVerifier, sidecar iface.BlobSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID, daOutOfRange bool) (*BlockInput, error) {
	bi := newBlockInput(cfg, crypto, sidecar.BlockRoot(), sidecar.BlockSlot(), sidecar.BlockParentRoot(), iface.DATypeBlobs, columnSet{}, columnSet{}, daOutOfRange)
	if err := bi.addBlobLocked(sidecar, source, seenAt, p, AddOpts{}); err != nil {
		return nil, err
	}
	return bi, nil
}

// NewFromColumn is the Columns-variant analogue of NewFromBlob. If sidecar
// carries zero commitments, sampledColumns is empty, or daOutOfRange is set,
// the entity starts with hasAllData true even though the block is unknown.
func NewFromColumn(cfg *config.BlockInputConfig, crypto iface.CryptoVerifier, sidecar iface.ColumnSidecar, numColumns uint64, custodyColumns, sampledColumns []uint64, source iface.SourceTag, seenAt time.Time, p peer.ID, daOutOfRange bool) (*BlockInput, error) {
	bi := newBlockInput(cfg, crypto, sidecar.BlockRoot(), sidecar.BlockSlot(), sidecar.BlockParentRoot(), iface.DATypeColumns,
		newColumnSet(numColumns, custodyColumns), newColumnSet(numColumns, sampledColumns), daOutOfRange)
	if err := bi.addColumnLocked(sidecar, source, seenAt, p, AddOpts{}); err != nil {
		return nil, err
	}
	return bi, nil
}

// Root, Slot, ParentRoot and DAType expose the entity's immutable identity.
func (b *BlockInput) Root() primitives.Root { return b.root }
func (b *BlockInput) Slot() primitives.Slot { return b.slot }
func (b *BlockInput) ParentRoot() primitives.Root { return b.parentRoot }
func (b *BlockInput) DAType() iface.DAType { return b.daType }

// DAOutOfRange reports whether this entity's slot was already outside the
// DA retention window when it was constructed.
func (b *BlockInput) DAOutOfRange() bool { return b.daOutOfRange }

// HasBlock reports whether the block body has been added.
func (b *BlockInput) HasBlock() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasBlock
}

// HasAllData reports whether every required data artifact for this entity's
// daType has been collected.
func (b *BlockInput) HasAllData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasAllDataLocked()
}

func (b *BlockInput) hasAllDataLocked() bool {
	switch b.daType {
	case iface.DATypePreData:
		return b.hasBlock
	case iface.DATypeBlobs:
		if b.daOutOfRange {
			return true
		}
		if !b.hasBlock {
			return false
		}
		return len(b.blobs) >= len(b.versionedHashes)
	case iface.DATypeColumns:
		if b.daOutOfRange || len(b.sampledColumns.indices()) == 0 {
			return true
		}
		if b.hasBlock {
			if len(b.versionedHashes) == 0 {
				return true
			}
		} else {
			for _, entry := range b.columns {
				return len(entry.sidecar.KZGCommitments()) == 0
			}
			return false
		}
		present := make(map[uint64]bool, len(b.columns))
		for idx := range b.columns {
			present[idx] = true
		}
		return len(b.sampledColumns.missing(present)) == 0
	default:
		return false
	}
}

// HasBlockAndAllData is the conjunction that gates the one-shot completion
// promise.
func (b *BlockInput) HasBlockAndAllData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasBlock && b.hasAllDataLocked()
}

// HasBlob reports whether a blob at index idx has been recorded.
func (b *BlockInput) HasBlob(idx uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[idx]
	return ok
}

// HasColumn reports whether a column at idx has been recorded.
func (b *BlockInput) HasColumn(idx uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.columns[idx]
	return ok
}

// GetBlock returns the stored block, or ErrMissingBlock if AddBlock/
// NewFromBlock has not yet run.
func (b *BlockInput) GetBlock() (iface.SignedBeaconBlock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasBlock {
		return nil, ErrMissingBlock
	}
	return b.block, nil
}

// GetBlockSource returns the source the block was first added from.
func (b *BlockInput) GetBlockSource() (iface.SourceTag, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasBlock {
		return "", ErrMissingBlock
	}
	return b.blockSource, nil
}

// GetTimeComplete returns the unix-seconds timestamp at which
// HasBlockAndAllData first became true, or ErrMissingTimeComplete.
func (b *BlockInput) GetTimeComplete() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timeComplete == 0 {
		return 0, ErrMissingTimeComplete
	}
	return b.timeComplete, nil
}

// GetVersionedHashes returns the commitments' derived versioned hashes. They
// are set once, when the block is added; before that the slice is empty.
func (b *BlockInput) GetVersionedHashes() []primitives.Root {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]primitives.Root, len(b.versionedHashes))
	copy(out, b.versionedHashes)
	return out
}

// GetMissingBlobMeta lists the not-yet-seen blob indices, valid only for the
// Blobs variant and only once the block is known (otherwise the total count
// is unknown).
func (b *BlockInput) GetMissingBlobMeta() ([]MissingMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.daType != iface.DATypeBlobs {
		return nil, nil
	}
	if !b.hasBlock {
		return nil, ErrMissingBlock
	}
	var out []MissingMeta
	for idx, h := range b.versionedHashes {
		if _, ok := b.blobs[uint64(idx)]; !ok {
			out = append(out, MissingMeta{Index: uint64(idx), VersionedHash: h})
		}
	}
	return out, nil
}

// GetMissingSampledColumnMeta lists sampled-but-not-yet-seen column indices,
// valid only for the Columns variant.
func (b *BlockInput) GetMissingSampledColumnMeta() ([]MissingMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.daType != iface.DATypeColumns {
		return nil, nil
	}
	if !b.hasBlock {
		return nil, ErrMissingBlock
	}
	present := make(map[uint64]bool, len(b.columns))
	for idx := range b.columns {
		present[idx] = true
	}
	missing := b.sampledColumns.missing(present)
	out := make([]MissingMeta, len(missing))
	for i, idx := range missing {
		out[i] = MissingMeta{Index: idx}
	}
	return out, nil
}

// GetCustodyColumns returns the column indices this node custodies, for the
// Columns variant only.
func (b *BlockInput) GetCustodyColumns() []uint64 { return b.custodyColumns.indices() }

// GetSampledColumns returns the column indices this node samples.
func (b *BlockInput) GetSampledColumns() []uint64 { return b.sampledColumns.indices() }

// WaitForBlock blocks until the block is known, the context is cancelled, or
// timeout elapses.
func (b *BlockInput) WaitForBlock(ctx context.Context, timeout time.Duration) error {
	return b.blockPromise.wait(ctx, timeout)
}

// WaitForAllData blocks until dataPromise resolves, the context is cancelled,
// or timeout elapses. dataPromise resolves only once the block is known as
// well as every data artifact required by daType, so a Columns entity that
// holds all its sampled columns but no block still waits here.
func (b *BlockInput) WaitForAllData(ctx context.Context, timeout time.Duration) error {
	return b.dataPromise.wait(ctx, timeout)
}

// WaitForBlockAndAllData blocks until both promises resolve, bounding total
// wait by timeout rather than by timeout-per-stage.
func (b *BlockInput) WaitForBlockAndAllData(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		if err := b.blockPromise.wait(ctx, 0); err != nil {
			return err
		}
		return b.dataPromise.wait(ctx, 0)
	}
	if err := b.blockPromise.wait(ctx, time.Until(deadline)); err != nil {
		return err
	}
	return b.dataPromise.wait(ctx, time.Until(deadline))
}

// maybeCompleteLocked resolves dataPromise and stamps timeComplete the first
// time hasBlock && hasAllData becomes true. Must be called with mu held.
func (b *BlockInput) maybeCompleteLocked(now time.Time) {
	if b.timeComplete != 0 {
		return
	}
	if !b.hasBlock || !b.hasAllDataLocked() {
		return
	}
	b.timeComplete = now.Unix()
	b.dataPromise.resolve()
}
