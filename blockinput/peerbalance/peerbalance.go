// Package peerbalance implements the peer-balancer: it tracks
// per-peer custody-column coverage and in-flight request counts, and picks
// the best peer for a given missing-column set.
package peerbalance

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
	bitfield "github.com/prysmaticlabs/go-bitfield"
	"go.uber.org/atomic"

	"github.com/nodewright/blockinput/config"
)

var (
	totalActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "block_input_balancer_active_requests_total",
		Help: "Total in-flight by-root/by-range requests across all peers.",
	})
	perPeerActiveRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "block_input_balancer_peer_active_requests",
		Help: "In-flight requests for a single peer.",
	}, []string{"peer"})
)

func init() {
	prometheus.MustRegister(totalActiveRequests, perPeerActiveRequests)
}

// peerState is the per-peer sync metadata: identity, custody coverage, and
// live counters.
type peerState struct {
	id peer.ID
	client string
	custody bitfield.Bitlist
	numCols uint64
	active atomic.Int32
	requests *ratecounter.RateCounter
}

// Balancer maintains per-peer sync metadata and implements the peer
// selection algorithm.
type Balancer struct {
	cfg *config.BlockInputConfig

	mu sync.RWMutex
	peers map[peer.ID]*peerState
}

// New builds an empty Balancer.
func New(cfg *config.BlockInputConfig) *Balancer {
	return &Balancer{cfg: cfg, peers: make(map[peer.ID]*peerState)}
}

// PeerConnected registers (or re-registers) a peer's custody coverage.
func (b *Balancer) PeerConnected(id peer.ID, client string, numColumns uint64, custodyColumns []uint64) {
	bits := bitfield.NewBitlist(numColumns)
	for _, idx := range custodyColumns {
		if idx < numColumns {
			bits.SetBitAt(idx, true)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[id] = &peerState{
		id: id,
		client: client,
		custody: bits,
		numCols: numColumns,
		requests: ratecounter.NewRateCounter(time.Minute),
	}
}

// PeerDisconnected removes a peer from consideration.
func (b *Balancer) PeerDisconnected(id peer.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ps, ok := b.peers[id]; ok {
		totalActiveRequests.Sub(float64(ps.active.Load()))
		perPeerActiveRequests.DeleteLabelValues(string(id))
	}
	delete(b.peers, id)
}

// Release is returned by BestPeer and must be called exactly once, when the
// chosen peer's request has completed, to decrement its active count — a
// scoped-release pattern so callers can't forget to balance onRequest with
// onRequestCompleted.
type Release func()

// BestPeer implements the selection algorithm: filter by capacity and
// exclusion, narrow to maximal custody-coverage over pendingColumns (when
// supplied), shuffle, then pick the least-loaded survivor. A nil
// pendingColumns means any capable peer qualifies (e.g. a block-only
// by-root fetch).
func (b *Balancer) BestPeer(pendingColumns []uint64, excluded map[peer.ID]bool) (peer.ID, Release, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	type candidate struct {
		ps *peerState
		intersection int
	}
	var candidates []candidate

	for id, ps := range b.peers {
		if excluded[id] {
			continue
		}
		if int(ps.active.Load()) >= b.cfg.MaxConcurrentRequestsPerPeer {
			continue
		}
		intersection := 0
		if len(pendingColumns) > 0 {
			for _, idx := range pendingColumns {
				if idx < ps.numCols && ps.custody.BitAt(idx) {
					intersection++
				}
			}
			if intersection == 0 {
				continue
			}
		}
		candidates = append(candidates, candidate{ps: ps, intersection: intersection})
	}

	if len(candidates) == 0 {
		return "", nil, false
	}

	if len(pendingColumns) > 0 {
		max := 0
		for _, c := range candidates {
			if c.intersection > max {
				max = c.intersection
			}
		}
		filtered := candidates[:0]
		for _, c := range candidates {
			if c.intersection == max {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ps.active.Load() < candidates[j].ps.active.Load()
	})

	chosen := candidates[0].ps
	chosen.active.Inc()
	chosen.requests.Incr(1)
	totalActiveRequests.Inc()
	perPeerActiveRequests.WithLabelValues(string(chosen.id)).Set(float64(chosen.active.Load()))

	var once sync.Once
	release := func() {
		once.Do(func() {
			chosen.active.Dec()
			totalActiveRequests.Dec()
			perPeerActiveRequests.WithLabelValues(string(chosen.id)).Set(float64(chosen.active.Load()))
		})
	}
	return chosen.id, release, true
}

// ActiveRequests reports the current in-flight count for id, for tests and
// metrics introspection.
func (b *Balancer) ActiveRequests(id peer.ID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ps, ok := b.peers[id]
	if !ok {
		return 0
	}
	return int(ps.active.Load())
}
