package blockinput

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// AddBlock adds the block body to this entity. It is idempotent: a second
// add of the identical root is a no-op unless opts.ThrowOnDuplicateAdd is
// set, in which case it returns a DuplicateConstructionError. A block whose
// root does not match this entity's identity is always rejected with a
// MismatchedRootError regardless of opts, since that is an identity
// violation rather than a duplicate.
func (b *BlockInput) AddBlock(block iface.SignedBeaconBlock, source iface.SourceTag, seenAt time.Time, opts AddOpts) error {
	root, err := block.Root()
	if err != nil {
		return errors.Wrap(err, "compute block root")
	}
	if root != b.root {
		return &MismatchedRootError{Expected: b.root, Got: root}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasBlock {
		if opts.ThrowOnDuplicateAdd {
			return &DuplicateConstructionError{Kind: "block"}
		}
		return nil
	}
	return b.setBlockLocked(block, source, seenAt)
}

// setBlock is the constructor-time equivalent of AddBlock, used when the
// caller already holds no lock and b.hasBlock is known to be false.
func (b *BlockInput) setBlock(block iface.SignedBeaconBlock, source iface.SourceTag, seenAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setBlockLocked(block, source, seenAt)
}

func (b *BlockInput) setBlockLocked(block iface.SignedBeaconBlock, source iface.SourceTag, seenAt time.Time) error {
	commitments, err := block.BlobKZGCommitments()
	if err != nil {
		return errors.Wrap(err, "read blob kzg commitments")
	}

	if b.daType == iface.DATypeBlobs || b.daType == iface.DATypeColumns {
		hashes := make([]primitives.Root, len(commitments))
		for i, c := range commitments {
			hashes[i] = b.crypto.KZGCommitmentToVersionedHash(c)
		}
		b.versionedHashes = hashes
	}

	// Pairing sweep: a cached sidecar that predates the block and does not
	// pair with its commitments is ejected from the cache rather than
	// rejecting the block add outright — the block is authoritative, and
	// unpaired sidecars are presumed to belong to a different (reorged-out
	// or equivocating) block at the same root-adjacent slot.
	if b.daType == iface.DATypeBlobs {
		for idx, entry := range b.blobs {
			if idx >= uint64(len(commitments)) || !bytes.Equal(entry.sidecar.KZGCommitment(), commitments[idx]) {
				delete(b.blobs, idx)
			}
		}
	}
	if b.daType == iface.DATypeColumns {
		for idx, entry := range b.columns {
			if !commitmentsEqual(entry.sidecar.KZGCommitments(), commitments) {
				delete(b.columns, idx)
			}
		}
	}

	b.block = block
	b.blockSource = source
	b.hasBlock = true

	b.blockPromise.resolve()
	b.maybeCompleteLocked(seenAt)
	log.WithField("root", b.root).WithField("source", source).Debug("block added to block input")
	return nil
}

func commitmentsEqual(a, c [][]byte) bool {
	if len(a) != len(c) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], c[i]) {
			return false
		}
	}
	return true
}
