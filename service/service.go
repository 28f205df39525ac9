// Package service wires the block-input subsystem's components (C1-C8)
// into a single runnable unit, the way beacon-chain/blockchain.Service wires
// the chain package's collaborators together.
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nodewright/blockinput/async/event"
	"github.com/nodewright/blockinput/blockinput/peerbalance"
	"github.com/nodewright/blockinput/blockinput/persistence"
	"github.com/nodewright/blockinput/blockinput/rootsync"
	"github.com/nodewright/blockinput/blockinput/seen"
	syncpkg "github.com/nodewright/blockinput/blockinput/sync"
	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
)

var log = logrus.WithField("prefix", "blockinput/service")

// emitterAdapter adapts *event.Feed to iface.Emitter. The two interfaces
// have identical method sets by construction (see iface.Subscription's doc
// comment), so no translation logic is needed beyond the named-type
// boundary.
type emitterAdapter struct {
	feed *event.Feed
}

func (a *emitterAdapter) Subscribe(channel interface{}) iface.Subscription {
	return a.feed.Subscribe(channel)
}

func (a *emitterAdapter) Send(value interface{}) int {
	return a.feed.Send(value)
}

// Service owns every block-input collaborator and the background driver
// goroutine. Callers construct one per beacon node process.
type Service struct {
	cfg *config.BlockInputConfig

	Seen       *seen.Cache
	Balancer   *peerbalance.Balancer
	Fetcher    *rootsync.Fetcher
	Sink       *persistence.Sink
	Driver     *syncpkg.Driver
	Emitter    iface.Emitter
	emitterFeed *event.Feed

	cancel context.CancelFunc
}

// Config bundles the external collaborators a caller must supply; these
// live outside this subsystem's scope (networking, execution engine, chain,
// storage).
type Config struct {
	BlockInput *config.BlockInputConfig
	Network    iface.NetworkClient
	Execution  iface.ExecutionClient
	Chain      iface.ChainClient
	ForkChoice iface.ForkChoice
	Store      persistence.Store
	Custody    persistence.CustodyFilter
	Crypto     iface.CryptoVerifier
	Clock      iface.Clock
}

// New builds a Service from its external collaborators. It does not start
// the background driver; call Start for that.
func New(c *Config) *Service {
	cfg := c.BlockInput
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	feed := new(event.Feed)
	emitter := &emitterAdapter{feed: feed}

	seenCache := seen.New(cfg, c.Crypto, c.Clock)
	balancer := peerbalance.New(cfg)
	fetcher := rootsync.New(cfg, c.Network, c.Execution, c.Crypto)
	sink := persistence.New(c.Store, seenCache, c.Custody)
	driver := syncpkg.New(cfg, seenCache, balancer, fetcher, c.Chain, c.ForkChoice, emitter)

	return &Service{
		cfg:         cfg,
		Seen:        seenCache,
		Balancer:    balancer,
		Fetcher:     fetcher,
		Sink:        sink,
		Driver:      driver,
		Emitter:     emitter,
		emitterFeed: feed,
	}
}

// Start launches the driver's background loop.
func (s *Service) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	log.Info("starting block-input sync driver")
	s.Driver.SubscribeToNetwork(runCtx)
}

// Stop halts the background loop and waits for it to exit.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.Driver.Close()
	return nil
}
