// Package iface collects the external collaborator interfaces this
// subsystem depends on: the networking layer, the execution engine, the
// cryptographic layer and the chain layer. Apart from Emitter (implemented
// by service's adapter over async/event.Feed), nothing in this module
// implements these interfaces — gossip-topic wiring, KZG primitives,
// execution-engine RPC, state transition and fork-choice all live outside
// this subsystem's scope. Unit tests in the consuming packages provide
// minimal fakes.
package iface

import (
	"context"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/nodewright/blockinput/primitives"
)

// DAType is the fork-determined discriminant: exactly one of PreData,
// Blobs or Columns.
type DAType int

const (
	DATypePreData DAType = iota
	DATypeBlobs
	DATypeColumns
)

func (t DAType) String() string {
	switch t {
	case DATypePreData:
		return "pre-data"
	case DATypeBlobs:
		return "blobs"
	case DATypeColumns:
		return "columns"
	default:
		return "unknown"
	}
}

// SourceTag records the provenance of a sighting for metrics and peer
// scoring.
type SourceTag int

const (
	SourceGossip SourceTag = iota
	SourceByRange
	SourceByRoot
	SourceAPI
	SourceEngineLocal
)

func (s SourceTag) String() string {
	switch s {
	case SourceGossip:
		return "gossip"
	case SourceByRange:
		return "by_range"
	case SourceByRoot:
		return "by_root"
	case SourceAPI:
		return "api"
	case SourceEngineLocal:
		return "engine_local"
	default:
		return "unknown"
	}
}

// SignedBeaconBlock is the minimal surface this subsystem needs from a
// signed beacon block: its identity fields and blob commitments. The
// concrete SSZ-backed type lives in the consensus-types collaborator,
// outside this subsystem's scope.
type SignedBeaconBlock interface {
	Slot() primitives.Slot
	Root() (primitives.Root, error)
	ParentRoot() primitives.Root
	BlobKZGCommitments() ([][]byte, error)
}

// BlobSidecar is the minimal surface needed from a blob sidecar.
type BlobSidecar interface {
	Index() uint64
	KZGCommitment() []byte
	BlockRoot() primitives.Root
	BlockSlot() primitives.Slot
	BlockParentRoot() primitives.Root
}

// ColumnSidecar is the minimal surface needed from a data column sidecar.
// All columns of a given block share the same commitment vector.
type ColumnSidecar interface {
	ColumnIndex() uint64
	KZGCommitments() [][]byte
	BlockRoot() primitives.Root
	BlockSlot() primitives.Slot
	BlockParentRoot() primitives.Root
}

// NetworkClient is consumed from the networking layer: by-root and
// by-range request/response, and connected-peer introspection.
type NetworkClient interface {
	SendBeaconBlocksByRoot(ctx context.Context, p peer.ID, roots []primitives.Root) ([]SignedBeaconBlock, error)
	SendBlobSidecarsByRoot(ctx context.Context, p peer.ID, req []BlobSidecarRequest) ([]BlobSidecar, error)
	SendDataColumnSidecarsByRoot(ctx context.Context, p peer.ID, req []ColumnSidecarRequest) ([]ColumnSidecar, error)

	SendBeaconBlocksByRange(ctx context.Context, p peer.ID, startSlot primitives.Slot, count uint64) ([]SignedBeaconBlock, error)
	SendBlobSidecarsByRange(ctx context.Context, p peer.ID, startSlot primitives.Slot, count uint64) ([]BlobSidecar, error)
	SendDataColumnSidecarsByRange(ctx context.Context, p peer.ID, startSlot primitives.Slot, count uint64) ([]ColumnSidecar, error)

	ConnectedPeers() []peer.ID
	ConnectedPeerCustody(p peer.ID) []uint64
}

// BlobSidecarRequest identifies a single by-root blob fetch target.
type BlobSidecarRequest struct {
	BlockRoot primitives.Root
	Index uint64
}

// ColumnSidecarRequest identifies a by-root column fetch target: a block
// root and the subset of column indices wanted from it.
type ColumnSidecarRequest struct {
	BlockRoot primitives.Root
	Columns []uint64
}

// BlobProof pairs an engine-local blob with its proof, or signals a known
// negative (the engine was asked and had nothing).
type BlobProof struct {
	Blob []byte
	Proof []byte
}

// ExecutionClient is consumed from the execution engine. Pre-Fulu only.
type ExecutionClient interface {
	GetBlobs(ctx context.Context, fork string, versionedHashes []primitives.Root) ([]*BlobProof, error)
}

// CryptoVerifier is consumed from the cryptographic layer.
type CryptoVerifier interface {
	KZGCommitmentToVersionedHash(commitment []byte) primitives.Root
	ValidateBlockBlobSidecars(slot primitives.Slot, blockRoot primitives.Root, expectedCount int, sidecars []BlobSidecar) error
	ValidateBlockDataColumnSidecars(slot primitives.Slot, blockRoot primitives.Root, blobCount int, sidecars []ColumnSidecar) error
}

// ForkChoice is consumed from the chain layer.
type ForkChoice interface {
	HasBlockHex(rootHex string) bool
}

// Clock is consumed from the chain layer.
type Clock interface {
	CurrentSlot() primitives.Slot
	SecFromSlot(slot primitives.Slot) int64
}

// ChainClient is consumed from the chain layer: the canonical entry
// into state transition and fork-choice update, plus fork configuration.
type ChainClient interface {
	ProcessBlock(ctx context.Context, root primitives.Root, opts ProcessBlockOpts) error
	GetForkName(slot primitives.Slot) string
	GetForkSeq(slot primitives.Slot) int
	IsPostFulu(slot primitives.Slot) bool
}

// ProcessBlockOpts configures a ProcessBlock call.
type ProcessBlockOpts struct {
	// Reprocess indicates the driver is retrying a block whose parent was
	// previously missing or whose prestate was previously unavailable.
	Reprocess bool
}

// Emitter is the chain.emitter collaborator: it emits blockGossip,
// blobSidecar, dataColumnSidecar, and the driver's own unknownParent,
// incompleteBlockInput, unknownBlockRoot signals. Implemented by
// async/event.Feed at the wiring layer.
type Emitter interface {
	Subscribe(channel interface{}) Subscription
	Send(value interface{}) int
}

// Subscription mirrors async/event.Subscription to avoid a hard dependency
// from iface on the event package.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}
