package blockinput

import (
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"

	"github.com/nodewright/blockinput/iface"
)

// AddColumn records a data-column sidecar. Unlike blobs, a column's pairing
// rule is against the block's FULL commitment vector rather than a single
// index, since each column carries a proof over every commitment in the
// block.
func (b *BlockInput) AddColumn(sidecar iface.ColumnSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID, opts AddOpts) error {
	if sidecar.BlockRoot() != b.root {
		return &MismatchedRootError{Expected: b.root, Got: sidecar.BlockRoot()}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addColumnLockedWithOpts(sidecar, source, seenAt, p, opts)
}

func (b *BlockInput) addColumnLocked(sidecar iface.ColumnSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID, opts AddOpts) error {
	return b.addColumnLockedWithOpts(sidecar, source, seenAt, p, opts)
}

func (b *BlockInput) addColumnLockedWithOpts(sidecar iface.ColumnSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID, opts AddOpts) error {
	idx := sidecar.ColumnIndex()

	if _, ok := b.columns[idx]; ok {
		if opts.ThrowOnDuplicateAdd {
			return &DuplicateConstructionError{Kind: "column"}
		}
		return nil
	}

	if b.hasBlock {
		commitments, err := b.block.BlobKZGCommitments()
		if err != nil {
			return err
		}
		if !commitmentsEqual(sidecar.KZGCommitments(), commitments) {
			return &MismatchedCommitmentError{Index: idx}
		}
	}

	if err := b.crypto.ValidateBlockDataColumnSidecars(b.slot, b.root, len(b.versionedHashes), []iface.ColumnSidecar{sidecar}); err != nil {
		return errors.Wrap(err, "validate column sidecar")
	}

	b.columns[idx] = columnCacheEntry{sidecar: sidecar, source: source, seenAt: seenAt, peer: p}
	b.maybeCompleteLocked(seenAt)
	log.WithField("root", b.root).WithField("index", idx).Debug("column added to block input")
	return nil
}
