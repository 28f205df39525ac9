package peerbalance

import (
	"testing"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"

	"github.com/nodewright/blockinput/config"
)

// TestColumnCoverageSelection exercises custody-coverage narrowing: missing set {5,10,15,20};
// peers A:{5,10}, B:{5,10,15}, C:{20}, each with 0 active requests.
// Expected: B chosen first (max intersection 3); after release, with
// missing now {20}, C is chosen next; A is never chosen for this round.
func TestColumnCoverageSelection(t *testing.T) {
	cfg := config.DefaultConfig()
	b := New(cfg)

	b.PeerConnected(peer.ID("A"), "lighthouse", 32, []uint64{5, 10})
	b.PeerConnected(peer.ID("B"), "prysm", 32, []uint64{5, 10, 15})
	b.PeerConnected(peer.ID("C"), "lodestar", 32, []uint64{20})

	missing := []uint64{5, 10, 15, 20}
	chosen, release, ok := b.BestPeer(missing, nil)
	require.True(t, ok)
	require.Equal(t, peer.ID("B"), chosen)
	release()

	missingNow := []uint64{20}
	chosen2, release2, ok := b.BestPeer(missingNow, nil)
	require.True(t, ok)
	require.Equal(t, peer.ID("C"), chosen2)
	release2()
}

func TestBestPeer_ExcludesOverCapacityPeer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxConcurrentRequestsPerPeer = 1
	b := New(cfg)
	b.PeerConnected(peer.ID("A"), "lighthouse", 0, nil)

	_, release, ok := b.BestPeer(nil, nil)
	require.True(t, ok)
	require.Equal(t, 1, b.ActiveRequests(peer.ID("A")))

	_, _, ok = b.BestPeer(nil, nil)
	require.False(t, ok)

	release()
	require.Equal(t, 0, b.ActiveRequests(peer.ID("A")))
}

func TestBestPeer_NoCandidatesWhenAllExcluded(t *testing.T) {
	cfg := config.DefaultConfig()
	b := New(cfg)
	b.PeerConnected(peer.ID("A"), "lighthouse", 0, nil)

	_, _, ok := b.BestPeer(nil, map[peer.ID]bool{peer.ID("A"): true})
	require.False(t, ok)
}

func TestPeerDisconnected_RemovesPeer(t *testing.T) {
	cfg := config.DefaultConfig()
	b := New(cfg)
	b.PeerConnected(peer.ID("A"), "lighthouse", 0, nil)
	b.PeerDisconnected(peer.ID("A"))

	_, _, ok := b.BestPeer(nil, nil)
	require.False(t, ok)
}
