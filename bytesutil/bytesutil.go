// Package bytesutil provides the small byte-slice helpers the block-input
// subsystem needs for root/commitment comparisons, trimmed to what this
// subsystem consumes.
package bytesutil

import "github.com/nodewright/blockinput/primitives"

// ToBytes32 copies the first 32 bytes of b into a primitives.Root, zero
// padding if b is shorter.
func ToBytes32(b []byte) primitives.Root {
	var r primitives.Root
	copy(r[:], b)
	return r
}

// PadTo returns a copy of b padded with trailing zero bytes to length l. If
// b is already at least l bytes, it is returned unchanged.
func PadTo(b []byte, l int) []byte {
	if len(b) >= l {
		return b
	}
	padded := make([]byte, l)
	copy(padded, b)
	return padded
}

// SafeCopyBytes returns a deep copy of b, or nil if b is nil. Use this when
// retaining a reference beyond the lifetime of the caller's buffer, e.g.
// stashing a sidecar's commitment bytes in a long-lived cache entry.
func SafeCopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
