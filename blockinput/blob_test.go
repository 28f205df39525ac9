package blockinput

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"

	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
)

func TestAddBlob_MismatchedRootRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	root := mustRoot(1)
	blob := &fakeBlob{index: 0, commitment: []byte{0x01}, root: root, slot: 1, parentRoot: mustRoot(0)}
	bi, err := NewFromBlob(cfg, testCrypto, blob, iface.SourceGossip, time.Now(), peer.ID("p1"), false)
	require.NoError(t, err)

	other := &fakeBlob{index: 1, commitment: []byte{0x02}, root: mustRoot(2), slot: 1, parentRoot: mustRoot(0)}
	err = bi.AddBlob(other, iface.SourceGossip, time.Now(), peer.ID("p2"), AddOpts{})
	require.Error(t, err)
	var mismatch *MismatchedRootError
	require.ErrorAs(t, err, &mismatch)
}

func TestAddBlob_DuplicateThrowsWhenOptedIn(t *testing.T) {
	cfg := config.DefaultConfig()
	root := mustRoot(1)
	blob := &fakeBlob{index: 0, commitment: []byte{0x01}, root: root, slot: 1, parentRoot: mustRoot(0)}
	bi, err := NewFromBlob(cfg, testCrypto, blob, iface.SourceGossip, time.Now(), peer.ID("p1"), false)
	require.NoError(t, err)

	err = bi.AddBlob(blob, iface.SourceGossip, time.Now(), peer.ID("p1"), AddOpts{ThrowOnDuplicateAdd: true})
	require.Error(t, err)
	var dup *DuplicateConstructionError
	require.ErrorAs(t, err, &dup)

	require.NoError(t, bi.AddBlob(blob, iface.SourceGossip, time.Now(), peer.ID("p1"), AddOpts{}))
}

func TestAddBlob_AfterBlockChecksCommitment(t *testing.T) {
	cfg := config.DefaultConfig()
	root := mustRoot(1)
	blk := &fakeBlock{root: root, slot: 1, parentRoot: mustRoot(0), commitments: [][]byte{{0xAA}, {0xBB}}}
	bi, err := NewFromBlock(cfg, testCrypto, blk, iface.SourceGossip, time.Now(), iface.DATypeBlobs, 0, nil, nil, false)
	require.NoError(t, err)

	good := &fakeBlob{index: 1, commitment: []byte{0xBB}, root: root, slot: 1, parentRoot: mustRoot(0)}
	require.NoError(t, bi.AddBlob(good, iface.SourceGossip, time.Now(), peer.ID("p1"), AddOpts{}))

	bad := &fakeBlob{index: 0, commitment: []byte{0xFF}, root: root, slot: 1, parentRoot: mustRoot(0)}
	err = bi.AddBlob(bad, iface.SourceGossip, time.Now(), peer.ID("p2"), AddOpts{})
	require.Error(t, err)
	var mismatch *MismatchedCommitmentError
	require.ErrorAs(t, err, &mismatch)
}
