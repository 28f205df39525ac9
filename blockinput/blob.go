package blockinput

import (
	"bytes"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"

	"github.com/nodewright/blockinput/iface"
)

// AddBlob records a blob sidecar at its index. Identity is checked against
// this entity's root; pairing is checked against the block's commitment at
// the same index, if the block is already known. A second add at an
// already-filled index is a no-op unless opts.ThrowOnDuplicateAdd is set.
func (b *BlockInput) AddBlob(sidecar iface.BlobSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID, opts AddOpts) error {
	if sidecar.BlockRoot() != b.root {
		return &MismatchedRootError{Expected: b.root, Got: sidecar.BlockRoot()}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addBlobLockedWithOpts(sidecar, source, seenAt, p, opts)
}

// addBlobLocked is the construction-time entry point (NewFromBlob), always
// treating the first add as fresh.
func (b *BlockInput) addBlobLocked(sidecar iface.BlobSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID, opts AddOpts) error {
	return b.addBlobLockedWithOpts(sidecar, source, seenAt, p, opts)
}

func (b *BlockInput) addBlobLockedWithOpts(sidecar iface.BlobSidecar, source iface.SourceTag, seenAt time.Time, p peer.ID, opts AddOpts) error {
	idx := sidecar.Index()

	if existing, ok := b.blobs[idx]; ok {
		if opts.ThrowOnDuplicateAdd {
			return &DuplicateConstructionError{Kind: "blob"}
		}
		_ = existing
		return nil
	}

	if b.hasBlock {
		if idx >= uint64(len(b.versionedHashes)) || !bytes.Equal(sidecar.KZGCommitment(), b.blockCommitmentAt(idx)) {
			return &MismatchedCommitmentError{Index: idx}
		}
	}

	if err := b.crypto.ValidateBlockBlobSidecars(b.slot, b.root, len(b.versionedHashes), []iface.BlobSidecar{sidecar}); err != nil {
		return errors.Wrap(err, "validate blob sidecar")
	}

	b.blobs[idx] = blobCacheEntry{sidecar: sidecar, source: source, seenAt: seenAt, peer: p}
	b.maybeCompleteLocked(seenAt)
	log.WithField("root", b.root).WithField("index", idx).Debug("blob added to block input")
	return nil
}

// blockCommitmentAt returns the block's raw KZG commitment bytes at idx,
// assuming hasBlock and idx are already validated by the caller. It
// re-derives from the stored block rather than trusting versionedHashes
// alone, since versionedHashes is a derived value.
func (b *BlockInput) blockCommitmentAt(idx uint64) []byte {
	commitments, err := b.block.BlobKZGCommitments()
	if err != nil || idx >= uint64(len(commitments)) {
		return nil
	}
	return commitments[idx]
}
