package rangesync

import "github.com/pkg/errors"

// Block response errors — all fatal.
var (
	ErrTooManyBlocks = errors.New("range sync: response block count exceeds requested count")
	ErrSlotOutOfRange = errors.New("range sync: block slot outside requested range")
	ErrOutOfOrderBlocks = errors.New("range sync: block slots not strictly ascending")
	ErrParentRootMismatch = errors.New("range sync: adjacent block parent root mismatch")
	ErrEmptyResponse = errors.New("range sync: empty response")
)

// Blob response errors — all fatal.
var (
	ErrBlobCountMismatch = errors.New("range sync: blob sidecar count does not match expected commitment count")
	ErrBlobIndexMismatch = errors.New("range sync: blob sidecar index out of sequence")
)

// Column response errors — fatal; see ColumnWarning for the non-fatal
// class.
var (
	ErrDuplicateColumn = errors.New("range sync: duplicate (slot, index) column sidecar")
	ErrOutOfOrderColumns = errors.New("range sync: column sidecars not ordered by (slot, index)")
	ErrColumnForEmptyCommitments = errors.New("range sync: column sidecar for a block with zero commitments")
	ErrCrossForkColumn = errors.New("range sync: column sidecar fork does not match block fork")
)
