package service

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"

	"github.com/nodewright/blockinput/blockinput/persistence"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

type fakeNetwork struct{}

func (fakeNetwork) SendBeaconBlocksByRoot(context.Context, peer.ID, []primitives.Root) ([]iface.SignedBeaconBlock, error) {
	return nil, nil
}
func (fakeNetwork) SendBlobSidecarsByRoot(context.Context, peer.ID, []iface.BlobSidecarRequest) ([]iface.BlobSidecar, error) {
	return nil, nil
}
func (fakeNetwork) SendDataColumnSidecarsByRoot(context.Context, peer.ID, []iface.ColumnSidecarRequest) ([]iface.ColumnSidecar, error) {
	return nil, nil
}
func (fakeNetwork) SendBeaconBlocksByRange(context.Context, peer.ID, primitives.Slot, uint64) ([]iface.SignedBeaconBlock, error) {
	return nil, nil
}
func (fakeNetwork) SendBlobSidecarsByRange(context.Context, peer.ID, primitives.Slot, uint64) ([]iface.BlobSidecar, error) {
	return nil, nil
}
func (fakeNetwork) SendDataColumnSidecarsByRange(context.Context, peer.ID, primitives.Slot, uint64) ([]iface.ColumnSidecar, error) {
	return nil, nil
}
func (fakeNetwork) ConnectedPeers() []peer.ID              { return nil }
func (fakeNetwork) ConnectedPeerCustody(peer.ID) []uint64 { return nil }

type fakeChain struct{}

func (fakeChain) ProcessBlock(context.Context, primitives.Root, iface.ProcessBlockOpts) error {
	return nil
}
func (fakeChain) GetForkName(primitives.Slot) string { return "fulu" }
func (fakeChain) GetForkSeq(primitives.Slot) int     { return 0 }
func (fakeChain) IsPostFulu(primitives.Slot) bool    { return true }

type fakeForkChoice struct{}

func (fakeForkChoice) HasBlockHex(string) bool { return false }

type fakeStore struct{}

func (fakeStore) PutBlock(context.Context, primitives.Root, []byte) error { return nil }
func (fakeStore) PutBlobSidecars(context.Context, primitives.Root, []iface.BlobSidecar) error {
	return nil
}
func (fakeStore) PutCustodyColumnSidecars(context.Context, primitives.Root, []iface.ColumnSidecar) error {
	return nil
}
func (fakeStore) DeleteBlock(context.Context, primitives.Root) error          { return nil }
func (fakeStore) DeleteBlobSidecars(context.Context, primitives.Root) error   { return nil }
func (fakeStore) DeleteColumnSidecars(context.Context, primitives.Root) error { return nil }

func TestNew_WiresAllCollaborators(t *testing.T) {
	s := New(&Config{
		Network:    fakeNetwork{},
		Chain:      fakeChain{},
		ForkChoice: fakeForkChoice{},
		Store:      fakeStore{},
	})
	if s.Seen == nil || s.Balancer == nil || s.Fetcher == nil || s.Sink == nil || s.Driver == nil || s.Emitter == nil {
		t.Fatal("expected New to populate every collaborator")
	}
}

func TestStartStop_DriverLifecycle(t *testing.T) {
	s := New(&Config{
		Network:    fakeNetwork{},
		Chain:      fakeChain{},
		ForkChoice: fakeForkChoice{},
		Store:      fakeStore{},
	})
	ctx := context.Background()
	s.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestEmitterAdapter_RoundTripsThroughFeed(t *testing.T) {
	s := New(&Config{
		Network:    fakeNetwork{},
		Chain:      fakeChain{},
		ForkChoice: fakeForkChoice{},
		Store:      fakeStore{},
	})
	ch := make(chan int, 1)
	sub := s.Emitter.Subscribe(ch)
	defer sub.Unsubscribe()
	if n := s.Emitter.Send(42); n != 1 {
		t.Fatalf("expected 1 subscriber to receive, got %d", n)
	}
	select {
	case v := <-ch:
		if v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	default:
		t.Error("expected value delivered to subscriber channel")
	}
}
