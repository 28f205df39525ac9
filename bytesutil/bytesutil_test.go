package bytesutil

import (
	"bytes"
	"testing"
)

func TestToBytes32(t *testing.T) {
	r := ToBytes32([]byte("root"))
	if !bytes.Equal(r[:4], []byte("root")) {
		t.Errorf("unexpected prefix: %x", r[:4])
	}
	for _, b := range r[4:] {
		if b != 0 {
			t.Fatalf("expected zero padding, got %x", r)
		}
	}
}

func TestPadTo(t *testing.T) {
	got := PadTo([]byte("a"), 48)
	if len(got) != 48 {
		t.Fatalf("expected length 48, got %d", len(got))
	}
	if got[0] != 'a' {
		t.Fatalf("expected first byte to be preserved, got %v", got[0])
	}

	exact := make([]byte, 48)
	if &PadTo(exact, 48)[0] != &exact[0] {
		t.Fatalf("expected PadTo to return the same slice when already long enough")
	}
}

func TestSafeCopyBytes(t *testing.T) {
	if SafeCopyBytes(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
	orig := []byte{1, 2, 3}
	cp := SafeCopyBytes(orig)
	cp[0] = 9
	if orig[0] == 9 {
		t.Fatal("expected SafeCopyBytes to deep copy")
	}
}
