package blockinput

import (
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// blobCacheEntry is one entry of the Blobs-variant data cache, keyed by blob
// index: a mapping from blob-index to {blob-sidecar, source, seen-timestamp,
// peer-id}.
type blobCacheEntry struct {
	sidecar iface.BlobSidecar
	source iface.SourceTag
	seenAt time.Time
	peer peer.ID
}

// columnCacheEntry is the Columns-variant analogue, keyed by column index.
type columnCacheEntry struct {
	sidecar iface.ColumnSidecar
	source iface.SourceTag
	seenAt time.Time
	peer peer.ID
}

// MissingMeta identifies a still-missing blob or column by index. For a blob
// it also carries the versioned hash, so RootSync can use it directly as a
// request identifier; for a column VersionedHash is left zero.
type MissingMeta struct {
	Index uint64
	VersionedHash primitives.Root
}

// AddOpts configures an add* call's duplicate policy.
type AddOpts struct {
	// ThrowOnDuplicateAdd, when true, turns a second sighting of the same
	// artifact into a DuplicateConstructionError instead of a silent no-op.
	ThrowOnDuplicateAdd bool
}
