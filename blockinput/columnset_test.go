package blockinput

import "testing"

func TestColumnSetContainsAndIndices(t *testing.T) {
	s := newColumnSet(8, []uint64{1, 3, 5})
	for _, idx := range []uint64{1, 3, 5} {
		if !s.contains(idx) {
			t.Fatalf("expected set to contain %d", idx)
		}
	}
	if s.contains(2) {
		t.Fatal("did not expect set to contain 2")
	}
	if s.len() != 3 {
		t.Fatalf("expected len 3, got %d", s.len())
	}
}

func TestColumnSetMissing(t *testing.T) {
	s := newColumnSet(8, []uint64{1, 3, 5})
	present := map[uint64]bool{1: true}
	missing := s.missing(present)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing, got %d (%v)", len(missing), missing)
	}
}
