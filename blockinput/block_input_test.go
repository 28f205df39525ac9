package blockinput

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"

	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
)

func TestNewFromBlock_PreData(t *testing.T) {
	cfg := config.DefaultConfig()
	blk := &fakeBlock{root: mustRoot(1), slot: 10, parentRoot: mustRoot(0)}
	bi, err := NewFromBlock(cfg, testCrypto, blk, iface.SourceGossip, time.Now(), iface.DATypePreData, 0, nil, nil, false)
	require.NoError(t, err)
	require.True(t, bi.HasBlock())
	require.True(t, bi.HasAllData())
	require.True(t, bi.HasBlockAndAllData())
}

func TestAddBlock_MismatchedRootRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	first := &fakeBlock{root: mustRoot(1), slot: 10, parentRoot: mustRoot(0)}
	bi, err := NewFromBlock(cfg, testCrypto, first, iface.SourceGossip, time.Now(), iface.DATypePreData, 0, nil, nil, false)
	require.NoError(t, err)

	other := &fakeBlock{root: mustRoot(2), slot: 10, parentRoot: mustRoot(0)}
	err = bi.AddBlock(other, iface.SourceGossip, time.Now(), AddOpts{})
	require.Error(t, err)
	var mismatched *MismatchedRootError
	require.ErrorAs(t, err, &mismatched)
}

func TestAddBlock_DuplicateIsNoOpByDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	blk := &fakeBlock{root: mustRoot(1), slot: 10, parentRoot: mustRoot(0)}
	bi, err := NewFromBlock(cfg, testCrypto, blk, iface.SourceGossip, time.Now(), iface.DATypePreData, 0, nil, nil, false)
	require.NoError(t, err)

	require.NoError(t, bi.AddBlock(blk, iface.SourceGossip, time.Now(), AddOpts{}))

	err = bi.AddBlock(blk, iface.SourceGossip, time.Now(), AddOpts{ThrowOnDuplicateAdd: true})
	require.Error(t, err)
	var dup *DuplicateConstructionError
	require.ErrorAs(t, err, &dup)
}

// TestBlobFirstThenBlock exercises the case where a blob sidecar arrives and
// constructs the BlockInput before the block itself is known; once the
// block arrives it must pair successfully against the already-cached blob
// and flip HasBlockAndAllData.
func TestBlobFirstThenBlock(t *testing.T) {
	cfg := config.DefaultConfig()
	root := mustRoot(7)
	commitment := []byte{0xAA, 0xBB}

	blob := &fakeBlob{index: 0, commitment: commitment, root: root, slot: 5, parentRoot: mustRoot(6)}
	bi, err := NewFromBlob(cfg, testCrypto, blob, iface.SourceGossip, time.Now(), peer.ID("p1"), false)
	require.NoError(t, err)
	require.False(t, bi.HasBlock())
	require.False(t, bi.HasBlockAndAllData())

	blk := &fakeBlock{root: root, slot: 5, parentRoot: mustRoot(6), commitments: [][]byte{commitment}}
	require.NoError(t, bi.AddBlock(blk, iface.SourceByRoot, time.Now(), AddOpts{}))

	require.True(t, bi.HasBlock())
	require.True(t, bi.HasAllData())
	require.True(t, bi.HasBlockAndAllData())

	tc, err := bi.GetTimeComplete()
	require.NoError(t, err)
	require.NotZero(t, tc)
}

// Invariant 4: a cached blob that fails pairing against the incoming block's
// commitments is ejected from the cache, but the block add itself succeeds —
// the block is authoritative over a stale, mismatched sidecar.
func TestBlobFirstThenBlock_MismatchedCommitmentEjectedNotRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	root := mustRoot(7)

	blob := &fakeBlob{index: 0, commitment: []byte{0xAA}, root: root, slot: 5, parentRoot: mustRoot(6)}
	bi, err := NewFromBlob(cfg, testCrypto, blob, iface.SourceGossip, time.Now(), peer.ID("p1"), false)
	require.NoError(t, err)
	require.True(t, bi.HasBlob(0))

	blk := &fakeBlock{root: root, slot: 5, parentRoot: mustRoot(6), commitments: [][]byte{{0xFF}}}
	require.NoError(t, bi.AddBlock(blk, iface.SourceByRoot, time.Now(), AddOpts{}))

	require.True(t, bi.HasBlock())
	require.False(t, bi.HasBlob(0), "mismatched blob must be ejected from the cache")
	require.False(t, bi.HasAllData(), "block still awaits a correctly paired blob at index 0")
}

func TestWaitForBlock_TimesOutThenSucceedsAfterAdd(t *testing.T) {
	cfg := config.DefaultConfig()
	root := mustRoot(3)
	blob := &fakeBlob{index: 0, commitment: []byte{0x01}, root: root, slot: 1, parentRoot: mustRoot(0)}
	bi, err := NewFromBlob(cfg, testCrypto, blob, iface.SourceGossip, time.Now(), peer.ID("p1"), false)
	require.NoError(t, err)

	ctx := context.Background()
	err = bi.WaitForBlock(ctx, 10*time.Millisecond)
	require.Equal(t, ErrWaitTimeout, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		blk := &fakeBlock{root: root, slot: 1, parentRoot: mustRoot(0), commitments: [][]byte{{0x01}}}
		_ = bi.AddBlock(blk, iface.SourceByRoot, time.Now(), AddOpts{})
	}()
	require.NoError(t, bi.WaitForBlock(ctx, time.Second))
}

func TestGetMissingBlobMeta(t *testing.T) {
	cfg := config.DefaultConfig()
	root := mustRoot(9)
	blk := &fakeBlock{root: root, slot: 2, parentRoot: mustRoot(8), commitments: [][]byte{{0x01}, {0x02}, {0x03}}}
	bi, err := NewFromBlock(cfg, testCrypto, blk, iface.SourceGossip, time.Now(), iface.DATypeBlobs, 0, nil, nil, false)
	require.NoError(t, err)

	missing, err := bi.GetMissingBlobMeta()
	require.NoError(t, err)
	require.Len(t, missing, 3)

	blob := &fakeBlob{index: 1, commitment: []byte{0x02}, root: root, slot: 2, parentRoot: mustRoot(8)}
	require.NoError(t, bi.AddBlob(blob, iface.SourceGossip, time.Now(), peer.ID("p1"), AddOpts{}))

	missing, err = bi.GetMissingBlobMeta()
	require.NoError(t, err)
	require.Len(t, missing, 2)
	require.False(t, bi.HasAllData())
}
