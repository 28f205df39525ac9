package rangesync

import (
	"fmt"

	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// ColumnWarning is a non-fatal validation finding: the caller keeps the
// returned data and logs, rather than rejecting the whole response, since a
// peer returning partial data is a warning, not a ban.
type ColumnWarning struct {
	Kind string
	Detail string
}

func (w ColumnWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
}

type slotIndex struct {
	slot primitives.Slot
	index uint64
}

// ValidateColumns checks a by-range column sidecar response against the
// blocks it accompanies. expectedForkSeq is the fork sequence number the
// request itself was made under (derived by the caller from the request's
// start slot); every carrying block in the response must belong to that
// same fork. Errors are fatal (duplicate or out-of-order (slot,index), a
// column for a block with zero commitments, a cross-fork column, or a
// column that fails crypto's KZG verification against its block); warnings
// are returned alongside a nil error and the caller decides what to do with
// the (possibly partial) data.
func ValidateColumns(crypto iface.CryptoVerifier, forkSeq func(primitives.Slot) int, expectedForkSeq int, expectedColumns []uint64, blocksBySlot map[primitives.Slot]iface.SignedBeaconBlock, columns []iface.ColumnSidecar) ([]ColumnWarning, error) {
	var warnings []ColumnWarning
	seen := make(map[slotIndex]bool, len(columns))
	var prev *slotIndex

	seenPerSlot := make(map[primitives.Slot]map[uint64]bool)
	sidecarsPerSlot := make(map[primitives.Slot][]iface.ColumnSidecar)

	for _, col := range columns {
		slot := col.BlockSlot()
		key := slotIndex{slot: slot, index: col.ColumnIndex()}

		if seen[key] {
			return warnings, ErrDuplicateColumn
		}
		if prev != nil {
			if slot < prev.slot || (slot == prev.slot && key.index <= prev.index) {
				return warnings, ErrOutOfOrderColumns
			}
		}
		seen[key] = true
		prevCopy := key
		prev = &prevCopy

		blk, ok := blocksBySlot[slot]
		if ok {
			commitments, err := blk.BlobKZGCommitments()
			if err != nil {
				return warnings, err
			}
			if len(commitments) == 0 {
				return warnings, ErrColumnForEmptyCommitments
			}
			if forkSeq != nil && forkSeq(blk.Slot()) != expectedForkSeq {
				return warnings, ErrCrossForkColumn
			}
		} else {
			warnings = append(warnings, ColumnWarning{Kind: "extra_column", Detail: fmt.Sprintf("slot %d has no corresponding block in response", slot)})
		}

		if seenPerSlot[slot] == nil {
			seenPerSlot[slot] = make(map[uint64]bool)
		}
		seenPerSlot[slot][key.index] = true
		sidecarsPerSlot[slot] = append(sidecarsPerSlot[slot], col)
	}

	for slot, sidecars := range sidecarsPerSlot {
		blk, ok := blocksBySlot[slot]
		if !ok {
			continue
		}
		commitments, err := blk.BlobKZGCommitments()
		if err != nil {
			return warnings, err
		}
		root, err := blk.Root()
		if err != nil {
			return warnings, err
		}
		if err := crypto.ValidateBlockDataColumnSidecars(slot, root, len(commitments), sidecars); err != nil {
			return warnings, err
		}
	}

	for slot := range blocksBySlot {
		present := seenPerSlot[slot]
		for _, idx := range expectedColumns {
			if !present[idx] {
				warnings = append(warnings, ColumnWarning{Kind: "missing_column", Detail: fmt.Sprintf("slot %d missing column %d", slot, idx)})
			}
		}
	}

	return warnings, nil
}
