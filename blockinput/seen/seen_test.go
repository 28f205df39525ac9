package seen

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"

	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

type fakeBlock struct {
	root        primitives.Root
	slot        primitives.Slot
	parentRoot  primitives.Root
	commitments [][]byte
}

func (f *fakeBlock) Root() (primitives.Root, error)        { return f.root, nil }
func (f *fakeBlock) Slot() primitives.Slot                  { return f.slot }
func (f *fakeBlock) ParentRoot() primitives.Root            { return f.parentRoot }
func (f *fakeBlock) BlobKZGCommitments() ([][]byte, error) { return f.commitments, nil }

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

func root(b byte) primitives.Root {
	var r primitives.Root
	r[0] = b
	return r
}

type fakeCrypto struct{}

func (fakeCrypto) KZGCommitmentToVersionedHash(commitment []byte) primitives.Root {
	var r primitives.Root
	copy(r[:], commitment)
	return r
}

func (fakeCrypto) ValidateBlockBlobSidecars(primitives.Slot, primitives.Root, int, []iface.BlobSidecar) error {
	return nil
}

func (fakeCrypto) ValidateBlockDataColumnSidecars(primitives.Slot, primitives.Root, int, []iface.ColumnSidecar) error {
	return nil
}

func TestGetOrCreateFromBlock_SecondCallReturnsExisting(t *testing.T) {
	c := New(config.DefaultConfig(), fakeCrypto{}, nil)
	blk := &fakeBlock{root: root(1), slot: 1, parentRoot: root(0)}

	bi1, created1, err := c.GetOrCreateFromBlock(blk, iface.SourceGossip, time.Now(), iface.DATypePreData, 0, nil, nil)
	require.NoError(t, err)
	require.True(t, created1)

	bi2, created2, err := c.GetOrCreateFromBlock(blk, iface.SourceGossip, time.Now(), iface.DATypePreData, 0, nil, nil)
	require.NoError(t, err)
	require.False(t, created2)
	require.Same(t, bi1, bi2)
	require.Equal(t, 1, c.Len())
}

func TestGetOrCreateFromBlob_ThenBlockFindsSameEntity(t *testing.T) {
	c := New(config.DefaultConfig(), fakeCrypto{}, nil)
	r := root(9)
	blob := &fakeBlob{index: 0, commitment: []byte{0x01}, root: r, slot: 3, parentRoot: root(8)}

	bi1, created1, err := c.GetOrCreateFromBlob(blob, iface.SourceGossip, time.Now(), peer.ID("p1"))
	require.NoError(t, err)
	require.True(t, created1)
	require.False(t, bi1.HasBlock())

	blk := &fakeBlock{root: r, slot: 3, parentRoot: root(8), commitments: [][]byte{{0x01}}}
	bi2, created2, err := c.GetOrCreateFromBlock(blk, iface.SourceByRoot, time.Now(), iface.DATypeBlobs, 0, nil, nil)
	require.NoError(t, err)
	require.False(t, created2)
	require.Same(t, bi1, bi2)
	require.True(t, bi2.HasBlockAndAllData())
}

func TestDeleteRemovesEntity(t *testing.T) {
	c := New(config.DefaultConfig(), fakeCrypto{}, nil)
	blk := &fakeBlock{root: root(2), slot: 1, parentRoot: root(0)}
	_, _, err := c.GetOrCreateFromBlock(blk, iface.SourceGossip, time.Now(), iface.DATypePreData, 0, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Delete(root(2))
	require.Equal(t, 0, c.Len())
	_, ok := c.GetByRoot(root(2))
	require.False(t, ok)
}

func TestPruneRemovesOnlyStaleIncompleteEntities(t *testing.T) {
	c := New(config.DefaultConfig(), fakeCrypto{}, nil)
	now := time.Now()

	stale := &fakeBlob{index: 0, commitment: []byte{0x01}, root: root(3), slot: 1, parentRoot: root(0)}
	_, _, err := c.GetOrCreateFromBlob(stale, iface.SourceGossip, now.Add(-time.Hour), peer.ID("p1"))
	require.NoError(t, err)

	fresh := &fakeBlob{index: 0, commitment: []byte{0x02}, root: root(4), slot: 1, parentRoot: root(0)}
	_, _, err = c.GetOrCreateFromBlob(fresh, iface.SourceGossip, now, peer.ID("p1"))
	require.NoError(t, err)

	removed := c.Prune(now, 10*time.Minute)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, c.Len())
	_, ok := c.GetByRoot(root(4))
	require.True(t, ok)
}
