package sync

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nodewright/blockinput/blockinput"
	"github.com/nodewright/blockinput/blockinput/peerbalance"
	"github.com/nodewright/blockinput/blockinput/rootsync"
	"github.com/nodewright/blockinput/blockinput/seen"
	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

var log = logrus.WithField("prefix", "blockinput/sync")

var pendingEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "block_input_sync_pending_evictions_total",
	Help: "Entries evicted from the driver's bounded pending maps.",
}, []string{"map"})

func init() {
	prometheus.MustRegister(pendingEvictions)
}

// Driver is the BlockInputSync driver. It owns the bounded
// pendingBlocks/knownBadBlocks maps and drives the download/process loop.
type Driver struct {
	cfg *config.BlockInputConfig
	seenCache *seen.Cache
	balancer *peerbalance.Balancer
	fetcher *rootsync.Fetcher
	chain iface.ChainClient
	forkChoice iface.ForkChoice
	emitter iface.Emitter

	mu sync.Mutex
	pendingBlocks *lru.Cache // primitives.Root -> *PendingBlockInput | *PendingRootHex
	knownBadBlocks *lru.Cache // primitives.Root -> struct{}

	// seenBlockProposers tracks, per slot, whether a gossip block from that
	// slot's proposer has already been observed, for the anti-unbundling
	// guard. Keyed by slot since this module does not own validator-index
	// resolution.
	seenBlockProposers map[primitives.Slot]time.Time

	trigger chan struct{}
	stop chan struct{}
	wg sync.WaitGroup
}

// New builds a Driver. SubscribeToNetwork subscribes it to emitter directly;
// the On* methods below remain exported for tests that want to drive the
// driver's state without going through the emitter bus.
func New(cfg *config.BlockInputConfig, seenCache *seen.Cache, balancer *peerbalance.Balancer, fetcher *rootsync.Fetcher, chain iface.ChainClient, forkChoice iface.ForkChoice, emitter iface.Emitter) *Driver {
	pending, _ := lru.NewWithEvict(cfg.MaxPendingBlocks, func(key, value interface{}) {
		pendingEvictions.WithLabelValues("pendingBlocks").Inc()
	})
	bad, _ := lru.NewWithEvict(cfg.MaxKnownBadBlocks, func(key, value interface{}) {
		pendingEvictions.WithLabelValues("knownBadBlocks").Inc()
	})
	return &Driver{
		cfg: cfg,
		seenCache: seenCache,
		balancer: balancer,
		fetcher: fetcher,
		chain: chain,
		forkChoice: forkChoice,
		emitter: emitter,
		pendingBlocks: pending,
		knownBadBlocks: bad,
		seenBlockProposers: make(map[primitives.Slot]time.Time),
		trigger: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// SubscribeToNetwork subscribes the driver to emitter for every signal named
// in spec §4.7 (unknownBlockRoot, incompleteBlockInput, unknownParent,
// peerConnected, peerDisconnected) and starts the driver's background loop.
// Events arriving on emitter are dispatched into the matching On* handler by
// dispatchEvents; the ticker-driven loop then drains whatever those handlers
// queued into pendingBlocks.
func (d *Driver) SubscribeToNetwork(ctx context.Context) {
	ch := make(chan Event, d.cfg.EventChannelBufferSize)
	sub := d.emitter.Subscribe(ch)

	d.wg.Add(1)
	go d.dispatchEvents(ctx, ch, sub)

	d.wg.Add(1)
	go d.loop(ctx)
}

// dispatchEvents drains emitter's Event channel and routes each one to the
// handler matching its Type, until ctx/d.stop fires or the subscription
// itself errors out.
func (d *Driver) dispatchEvents(ctx context.Context, ch chan Event, sub iface.Subscription) {
	defer d.wg.Done()
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case err := <-sub.Err():
			if err != nil {
				log.WithError(err).Warn("event subscription terminated")
			}
			return
		case ev := <-ch:
			d.handleEvent(ev)
		}
	}
}

// handleEvent type-asserts ev.Data against the payload its Type promises and
// forwards to the corresponding On* method. A mismatched payload is logged
// and dropped rather than panicking the dispatch loop over one bad event.
func (d *Driver) handleEvent(ev Event) {
	switch ev.Type {
	case EventUnknownBlockRoot:
		data, ok := ev.Data.(UnknownBlockRootData)
		if !ok {
			log.WithField("type", ev.Type).Warn("event: unexpected payload for EventUnknownBlockRoot")
			return
		}
		d.OnUnknownBlockRoot(data.Root, data.By)
	case EventIncompleteBlockInput:
		data, ok := ev.Data.(IncompleteBlockInputData)
		if !ok {
			log.WithField("type", ev.Type).Warn("event: unexpected payload for EventIncompleteBlockInput")
			return
		}
		d.OnIncompleteBlockInput(data.BI, data.By)
	case EventUnknownParent:
		data, ok := ev.Data.(UnknownParentData)
		if !ok {
			log.WithField("type", ev.Type).Warn("event: unexpected payload for EventUnknownParent")
			return
		}
		d.OnUnknownParent(data.BI, data.By)
	case EventPeerConnected:
		data, ok := ev.Data.(PeerConnectedData)
		if !ok {
			log.WithField("type", ev.Type).Warn("event: unexpected payload for EventPeerConnected")
			return
		}
		d.OnPeerConnected(data.ID, data.Client, data.NumColumns, data.CustodyColumns)
	case EventPeerDisconnected:
		data, ok := ev.Data.(PeerDisconnectedData)
		if !ok {
			log.WithField("type", ev.Type).Warn("event: unexpected payload for EventPeerDisconnected")
			return
		}
		d.OnPeerDisconnected(data.ID)
	default:
		log.WithField("type", ev.Type).Warn("event: unrecognized event type")
	}
}

// UnsubscribeFromNetwork and Close both stop the background loop; Close is
// idempotent and may be called more than once.
func (d *Driver) UnsubscribeFromNetwork() { d.Close() }

func (d *Driver) Close() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	d.wg.Wait()
}

func (d *Driver) wake() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// OnUnknownBlockRoot registers a root referenced by an attestation or API
// that is absent from fork-choice.
func (d *Driver) OnUnknownBlockRoot(root primitives.Root, by peer.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isKnownBad(root) {
		return
	}
	if _, ok := d.pendingBlocks.Get(root); !ok {
		d.pendingBlocks.Add(root, &PendingRootHex{Root: root, ReferencedBy: map[peer.ID]bool{by: true}, TimeAdded: time.Now()})
	}
	d.wake()
}

// OnIncompleteBlockInput registers a gossip-validated block whose data is
// not yet complete.
func (d *Driver) OnIncompleteBlockInput(bi *blockinput.BlockInput, by peer.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isKnownBad(bi.Root()) {
		return
	}
	if v, ok := d.pendingBlocks.Get(bi.Root()); ok {
		if p, ok := v.(*PendingBlockInput); ok {
			p.ReferencedBy[by] = true
			d.wake()
			return
		}
	}
	d.pendingBlocks.Add(bi.Root(), newPendingBlockInput(bi, by, time.Now()))
	d.wake()
}

// OnUnknownParent registers a validated block whose parent is absent from
// fork-choice.
func (d *Driver) OnUnknownParent(bi *blockinput.BlockInput, by peer.ID) {
	d.OnIncompleteBlockInput(bi, by)
}

// OnPeerConnected/OnPeerDisconnected forward to the balancer.
func (d *Driver) OnPeerConnected(id peer.ID, client string, numColumns uint64, custodyColumns []uint64) {
	d.balancer.PeerConnected(id, client, numColumns, custodyColumns)
	d.wake()
}

func (d *Driver) OnPeerDisconnected(id peer.ID) {
	d.balancer.PeerDisconnected(id)
}

// MarkBlockProposerSeen records that slot's proposer has been observed via
// gossip, for the anti-unbundling guard.
func (d *Driver) MarkBlockProposerSeen(slot primitives.Slot, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seenBlockProposers[slot] = at
}

func (d *Driver) isKnownBad(root primitives.Root) bool {
	_, ok := d.knownBadBlocks.Get(root)
	return ok
}

func (d *Driver) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-d.trigger:
			d.runCycle(ctx)
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// runCycle is the main loop body: collect unknowns/ancestors, process
// ancestors, schedule downloads for unknowns.
func (d *Driver) runCycle(ctx context.Context) {
	unknowns, ancestors := d.collect()

	for _, p := range ancestors {
		d.processAncestorChain(ctx, p)
	}
	for _, root := range unknowns {
		d.scheduleDownload(ctx, root)
	}
}

func (d *Driver) collect() (unknowns []primitives.Root, ancestors []*PendingBlockInput) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range d.pendingBlocks.Keys() {
		v, ok := d.pendingBlocks.Peek(key)
		if !ok {
			continue
		}
		root := key.(primitives.Root)
		switch p := v.(type) {
		case *PendingRootHex:
			unknowns = append(unknowns, root)
		case *PendingBlockInput:
			if p.Status == StatusDownloaded {
				if pr := p.BI.ParentRoot(); d.forkChoice.HasBlockHex(pr.String()) {
					ancestors = append(ancestors, p)
					continue
				}
			}
			if !p.BI.HasBlockAndAllData() {
				unknowns = append(unknowns, root)
			}
		}
	}
	return unknowns, ancestors
}
