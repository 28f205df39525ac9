package sync

import (
	"context"

	"github.com/libp2p/go-libp2p-core/peer"

	"github.com/nodewright/blockinput/async/event"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// feedEmitter adapts *event.Feed to iface.Emitter for tests exercising the
// real dispatch path, mirroring service.emitterAdapter's named-type bridge.
type feedEmitter struct {
	feed *event.Feed
}

func (e *feedEmitter) Subscribe(channel interface{}) iface.Subscription { return e.feed.Subscribe(channel) }
func (e *feedEmitter) Send(value interface{}) int                      { return e.feed.Send(value) }

func mustRoot(b byte) primitives.Root {
	var r primitives.Root
	r[0] = b
	return r
}

type fakeBlock struct {
	slot        primitives.Slot
	root        primitives.Root
	parentRoot  primitives.Root
	commitments [][]byte
}

func (f *fakeBlock) Slot() primitives.Slot              { return f.slot }
func (f *fakeBlock) Root() (primitives.Root, error)     { return f.root, nil }
func (f *fakeBlock) ParentRoot() primitives.Root        { return f.parentRoot }
func (f *fakeBlock) BlobKZGCommitments() ([][]byte, error) { return f.commitments, nil }

// fakeChain is a minimal iface.ChainClient whose ProcessBlock outcome is
// driven by a per-root lookup table, and whose calls are recorded for
// assertions.
type fakeChain struct {
	results map[primitives.Root]error
	calls   []primitives.Root
	postFulu bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{results: make(map[primitives.Root]error)}
}

func (f *fakeChain) ProcessBlock(ctx context.Context, root primitives.Root, opts iface.ProcessBlockOpts) error {
	f.calls = append(f.calls, root)
	return f.results[root]
}
func (f *fakeChain) GetForkName(slot primitives.Slot) string { return "fulu" }
func (f *fakeChain) GetForkSeq(slot primitives.Slot) int     { return 0 }
func (f *fakeChain) IsPostFulu(slot primitives.Slot) bool    { return f.postFulu }

type fakeForkChoice struct {
	known map[string]bool
}

func newFakeForkChoice() *fakeForkChoice { return &fakeForkChoice{known: make(map[string]bool)} }

func (f *fakeForkChoice) HasBlockHex(rootHex string) bool { return f.known[rootHex] }

type fakeEmitter struct{}

func (fakeEmitter) Subscribe(channel interface{}) iface.Subscription { return fakeSubscription{} }
func (fakeEmitter) Send(value interface{}) int                      { return 0 }

// fakeSubscription is a no-op iface.Subscription: its Err channel never
// fires, so a dispatch loop subscribed against it just idles until ctx/stop
// fires, exactly like a real subscription to a Feed nobody ever Sends on.
type fakeSubscription struct{}

func (fakeSubscription) Err() <-chan error { return nil }
func (fakeSubscription) Unsubscribe()      {}

func testPeerID(b byte) peer.ID {
	return peer.ID(string([]byte{'p', b}))
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
