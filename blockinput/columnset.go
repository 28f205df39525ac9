package blockinput

import (
	bitfield "github.com/prysmaticlabs/go-bitfield"
)

// columnSet is a compact column-index set backed by an SSZ-style bitlist,
// used for the Columns variant's immutable sampledColumns/custodyColumns
// fields and for intersecting them against a data cache.
type columnSet struct {
	bits bitfield.Bitlist
	n uint64
}

// newColumnSet builds a columnSet over a universe of n column indices with
// the given indices set.
func newColumnSet(n uint64, indices []uint64) columnSet {
	bits := bitfield.NewBitlist(n)
	for _, idx := range indices {
		if idx < n {
			bits.SetBitAt(idx, true)
		}
	}
	return columnSet{bits: bits, n: n}
}

func (s columnSet) contains(idx uint64) bool {
	if s.n == 0 || idx >= s.n {
		return false
	}
	return s.bits.BitAt(idx)
}

func (s columnSet) len() int {
	if s.n == 0 {
		return 0
	}
	return int(s.bits.Count())
}

// indices returns the sorted set of column indices present in the set.
func (s columnSet) indices() []uint64 {
	if s.n == 0 {
		return nil
	}
	raw := s.bits.BitIndices()
	out := make([]uint64, len(raw))
	for i, v := range raw {
		out[i] = uint64(v)
	}
	return out
}

// intersectCache returns the sorted indices that are both in this set and
// present as keys in the supplied presence map, such as the Columns
// variant's data cache.
func (s columnSet) intersectCache(present map[uint64]bool) []uint64 {
	var out []uint64
	for _, idx := range s.indices() {
		if present[idx] {
			out = append(out, idx)
		}
	}
	return out
}

// missing returns the sorted indices in this set that are absent from
// present, for getMissingSampledColumnMeta.
func (s columnSet) missing(present map[uint64]bool) []uint64 {
	var out []uint64
	for _, idx := range s.indices() {
		if !present[idx] {
			out = append(out, idx)
		}
	}
	return out
}
