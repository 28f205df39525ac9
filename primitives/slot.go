// Package primitives holds the small value types shared across the
// block-input subsystem: slot and epoch counters and a block-root type,
// trimmed to exactly what this subsystem consumes.
package primitives

import "fmt"

// Slot is a beacon-chain slot number.
type Slot uint64

// Epoch is a beacon-chain epoch number.
type Epoch uint64

// Root is a 32-byte block root.
type Root [32]byte

// String renders an abbreviated "short hex" form for logging. Per the data
// model, this is a logging convenience only and must never be used for
// equality checks.
func (r Root) String() string {
	full := fmt.Sprintf("%x", r[:])
	if len(full) <= 12 {
		return full
	}
	return full[:6] + ".." + full[len(full)-6:]
}

// IsZero reports whether the root is the zero value.
func (r Root) IsZero() bool {
	return r == Root{}
}

// Sub returns s-other, floored at zero to avoid underflow wraparound when
// used for "seconds ago"-style computations.
func (s Slot) Sub(other Slot) Slot {
	if other > s {
		return 0
	}
	return s - other
}

// SlotsPerEpoch is the number of slots in one epoch. It is a package-level
// var (rather than a config field) because it is fixed by the protocol, not
// by subsystem configuration.
var SlotsPerEpoch = Slot(32)

// ToEpoch converts a slot to the epoch containing it.
func (s Slot) ToEpoch() Epoch {
	return Epoch(uint64(s) / uint64(SlotsPerEpoch))
}
