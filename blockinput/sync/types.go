// Package sync implements the BlockInputSync driver: the
// event-driven engine that reacts to unknown-root, unknown-parent and
// incomplete-block-input signals, schedules downloads through the
// peer-balancer and RootSync fetcher, and processes downloaded blocks once
// their parent enters fork-choice.
package sync

import (
	"time"

	"github.com/libp2p/go-libp2p-core/peer"

	"github.com/nodewright/blockinput/blockinput"
	"github.com/nodewright/blockinput/primitives"
)

// PendingStatus is the lifecycle tag carried by PendingBlockInput.
type PendingStatus int

const (
	StatusPending PendingStatus = iota
	StatusFetching
	StatusDownloaded
	StatusProcessing
)

func (s PendingStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFetching:
		return "fetching"
	case StatusDownloaded:
		return "downloaded"
	case StatusProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// PendingBlockInput wraps a BlockInput with the driver-side bookkeeping:
// its lifecycle status, which peers have referenced it, when it was added,
// and (once resolved) when it finished syncing.
type PendingBlockInput struct {
	BI *blockinput.BlockInput
	Status PendingStatus
	ReferencedBy map[peer.ID]bool
	Attempts int
	TimeAdded time.Time
	TimeSynced *time.Time
}

func newPendingBlockInput(bi *blockinput.BlockInput, by peer.ID, now time.Time) *PendingBlockInput {
	return &PendingBlockInput{
		BI: bi,
		Status: StatusPending,
		ReferencedBy: map[peer.ID]bool{by: true},
		TimeAdded: now,
	}
}

// PendingRootHex is the PendingBlockInput analogue for a root whose slot is
// not yet known — e.g. referenced only by an attestation.
type PendingRootHex struct {
	Root primitives.Root
	ReferencedBy map[peer.ID]bool
	TimeAdded time.Time
}

// DownloadOutcome classifies a completed download round.
type DownloadOutcome int

const (
	OutcomeSuccessResolved DownloadOutcome = iota
	OutcomeSuccessMissingParent
	OutcomeSuccessLate
	OutcomeFailureTriedAllPeers
	OutcomeFailureMaxAttempts
	OutcomeRetry
)

// EventType discriminates the driver signals carried over the shared
// iface.Emitter bus (chain.emitter in the spec). The bus delivers a single
// Go type per Feed (see async/event.Feed's doc comment), so every signal the
// driver subscribes to travels inside one envelope type, Event, with Data
// type-asserted against the payload matching Type.
type EventType int

const (
	EventUnknownBlockRoot EventType = iota
	EventIncompleteBlockInput
	EventUnknownParent
	EventPeerConnected
	EventPeerDisconnected
)

// Event is the envelope every SubscribeToNetwork dispatch-loop subscriber
// receives. Callers upstream of this package (the gossip validators, the
// networking layer) construct and Send one of these for each driver signal
// named in spec §4.7.
type Event struct {
	Type EventType
	Data interface{}
}

// UnknownBlockRootData carries the payload for EventUnknownBlockRoot: a root
// referenced by an attestation or API call that fork-choice does not know.
type UnknownBlockRootData struct {
	Root primitives.Root
	By peer.ID
}

// IncompleteBlockInputData carries the payload for EventIncompleteBlockInput:
// a gossip-validated block whose sidecars are not yet all present.
type IncompleteBlockInputData struct {
	BI *blockinput.BlockInput
	By peer.ID
}

// UnknownParentData carries the payload for EventUnknownParent: a validated
// block whose parent root is absent from fork-choice.
type UnknownParentData struct {
	BI *blockinput.BlockInput
	By peer.ID
}

// PeerConnectedData carries the payload for EventPeerConnected.
type PeerConnectedData struct {
	ID peer.ID
	Client string
	NumColumns uint64
	CustodyColumns []uint64
}

// PeerDisconnectedData carries the payload for EventPeerDisconnected.
type PeerDisconnectedData struct {
	ID peer.ID
}
