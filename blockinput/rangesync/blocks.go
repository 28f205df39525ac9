// Package rangesync validates by-range block/blob/column responses against
// their originating requests and against the carrying blocks.
package rangesync

import (
	"bytes"

	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// BlocksRequest identifies a by-range block request.
type BlocksRequest struct {
	StartSlot primitives.Slot
	Count uint64
}

// ValidateBlocks checks a by-range block response against req. An empty
// response is treated as a hard error: empty epochs during a liveness
// incident are exactly when an operator needs to know the request failed,
// not silently proceed as if the range were vacant.
func ValidateBlocks(req BlocksRequest, blocks []iface.SignedBeaconBlock) error {
	if len(blocks) == 0 {
		return ErrEmptyResponse
	}
	if uint64(len(blocks)) > req.Count {
		return ErrTooManyBlocks
	}

	end := req.StartSlot + primitives.Slot(req.Count)
	var prevSlot primitives.Slot
	var prevRoot primitives.Root
	havePrev := false

	for i, blk := range blocks {
		slot := blk.Slot()
		if slot < req.StartSlot || slot >= end {
			return ErrSlotOutOfRange
		}
		if havePrev && slot <= prevSlot {
			return ErrOutOfOrderBlocks
		}
		if havePrev && blk.ParentRoot() != prevRoot {
			return ErrParentRootMismatch
		}
		root, err := blk.Root()
		if err != nil {
			return err
		}
		prevSlot = slot
		prevRoot = root
		havePrev = true
		_ = i
	}
	return nil
}

// ValidateBlobs checks a by-range blob response against the blocks it was
// returned alongside: the total count must equal the sum of commitment
// counts across blocks, and each block's run of sidecars must be indexed
// 0..n-1 in order. Each block's sidecars are also run through crypto's KZG
// verification before being accepted as valid.
func ValidateBlobs(crypto iface.CryptoVerifier, blocks []iface.SignedBeaconBlock, blobsByBlock [][]iface.BlobSidecar) error {
	if len(blobsByBlock) != len(blocks) {
		return ErrBlobCountMismatch
	}
	total := 0
	for i, blk := range blocks {
		commitments, err := blk.BlobKZGCommitments()
		if err != nil {
			return err
		}
		sidecars := blobsByBlock[i]
		if len(sidecars) != len(commitments) {
			return ErrBlobCountMismatch
		}
		for idx, sc := range sidecars {
			if sc.Index() != uint64(idx) {
				return ErrBlobIndexMismatch
			}
			if !bytes.Equal(sc.KZGCommitment(), commitments[idx]) {
				return ErrBlobIndexMismatch
			}
		}
		if len(sidecars) > 0 {
			root, err := blk.Root()
			if err != nil {
				return err
			}
			if err := crypto.ValidateBlockBlobSidecars(blk.Slot(), root, len(commitments), sidecars); err != nil {
				return err
			}
		}
		total += len(sidecars)
	}
	expected := 0
	for _, blk := range blocks {
		c, err := blk.BlobKZGCommitments()
		if err != nil {
			return err
		}
		expected += len(c)
	}
	if total != expected {
		return ErrBlobCountMismatch
	}
	return nil
}
