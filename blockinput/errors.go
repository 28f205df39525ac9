package blockinput

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/nodewright/blockinput/primitives"
)

// Missing-precondition errors: programmer errors, raised when a caller
// reads a field before checking the corresponding predicate.
var (
	ErrMissingBlock = errors.New("block input: block not yet known")
	ErrMissingTimeComplete = errors.New("block input: data not yet complete")
)

// Wait-related sentinels.
var (
	ErrWaitCancelled = errors.New("block input: wait cancelled")
	ErrWaitTimeout = errors.New("block input: wait timed out")
)

// ErrDuplicateSidecar is not returned by this package: AddBlob/AddColumn
// report a strict (ThrowOnDuplicateAdd) duplicate sidecar add as a
// *DuplicateConstructionError with Kind "blob" or "column".
var ErrDuplicateSidecar = errors.New("block input: duplicate sidecar add")

// MismatchedRootError is an identity violation: the computed root of an
// incoming block, or the root carried by a sidecar's signed block header,
// does not match this BlockInput's identity.
type MismatchedRootError struct {
	Expected primitives.Root
	Got primitives.Root
}

func (e *MismatchedRootError) Error() string {
	return fmt.Sprintf("block input: mismatched root, expected %s got %s", e.Expected, e.Got)
}

// MismatchedCommitmentError is a pairing violation: a sidecar's KZG
// commitment(s) do not pair with the block's commitment vector.
type MismatchedCommitmentError struct {
	Index uint64
}

func (e *MismatchedCommitmentError) Error() string {
	return fmt.Sprintf("block input: mismatched kzg commitment at index %d", e.Index)
}

// DuplicateConstructionError is a construction violation: an add call
// observed a second sighting of the same artifact with ThrowOnDuplicateAdd
// set.
type DuplicateConstructionError struct {
	Kind string // "block", "blob", or "column"
}

func (e *DuplicateConstructionError) Error() string {
	return fmt.Sprintf("block input: duplicate %s add", e.Kind)
}
