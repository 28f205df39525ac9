package blockinput

import (
	"github.com/nodewright/blockinput/bytesutil"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// fakeCrypto is a no-op iface.CryptoVerifier: versioned hashes are derived
// deterministically from the raw commitment bytes, and sidecar validation
// always succeeds unless err is set.
type fakeCrypto struct {
	err error
}

func (c fakeCrypto) KZGCommitmentToVersionedHash(commitment []byte) primitives.Root {
	return bytesutil.ToBytes32(commitment)
}

func (c fakeCrypto) ValidateBlockBlobSidecars(primitives.Slot, primitives.Root, int, []iface.BlobSidecar) error {
	return c.err
}

func (c fakeCrypto) ValidateBlockDataColumnSidecars(primitives.Slot, primitives.Root, int, []iface.ColumnSidecar) error {
	return c.err
}

var testCrypto = fakeCrypto{}

// fakeBlock is a minimal iface.SignedBeaconBlock for table-driven tests.
type fakeBlock struct {
	root        primitives.Root
	slot        primitives.Slot
	parentRoot  primitives.Root
	commitments [][]byte
	rootErr     error
	commitErr   error
}

func (f *fakeBlock) Root() (primitives.Root, error)    { return f.root, f.rootErr }
func (f *fakeBlock) Slot() primitives.Slot             { return f.slot }
func (f *fakeBlock) ParentRoot() primitives.Root       { return f.parentRoot }
func (f *fakeBlock) BlobKZGCommitments() ([][]byte, error) {
	return f.commitments, f.commitErr
}

type fakeBlob struct {
	index      uint64
	commitment []byte
	root       primitives.Root
	slot       primitives.Slot
	parentRoot primitives.Root
}

func (f *fakeBlob) Index() uint64                    { return f.index }
func (f *fakeBlob) KZGCommitment() []byte            { return f.commitment }
func (f *fakeBlob) BlockRoot() primitives.Root       { return f.root }
func (f *fakeBlob) BlockSlot() primitives.Slot       { return f.slot }
func (f *fakeBlob) BlockParentRoot() primitives.Root { return f.parentRoot }

type fakeColumn struct {
	index       uint64
	commitments [][]byte
	root        primitives.Root
	slot        primitives.Slot
	parentRoot  primitives.Root
}

func (f *fakeColumn) ColumnIndex() uint64              { return f.index }
func (f *fakeColumn) KZGCommitments() [][]byte         { return f.commitments }
func (f *fakeColumn) BlockRoot() primitives.Root       { return f.root }
func (f *fakeColumn) BlockSlot() primitives.Slot       { return f.slot }
func (f *fakeColumn) BlockParentRoot() primitives.Root { return f.parentRoot }

func mustRoot(b byte) primitives.Root {
	var r primitives.Root
	r[0] = b
	return r
}
