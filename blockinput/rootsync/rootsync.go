// Package rootsync implements the RootSync fetcher: given an
// incomplete BlockInput and a candidate peer, it completes as much of the
// entity as a single round can, combining the execution engine's
// local-blob cache (pre-Fulu) with peer-to-peer by-root requests.
package rootsync

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nodewright/blockinput/blockinput"
	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

var log = logrus.WithField("prefix", "blockinput/rootsync")

// Fetcher is the RootSync collaborator. It owns the engine-local blob cache
// and retry tracker; everything else is an external collaborator passed in
// per call.
type Fetcher struct {
	cfg *config.BlockInputConfig
	network iface.NetworkClient
	execution iface.ExecutionClient
	crypto iface.CryptoVerifier

	blobCache *engineBlobCache
	retries *retryTracker
}

// New builds a Fetcher. execution may be nil once past Fulu, since the
// execution-engine blob path is pre-Fulu only.
func New(cfg *config.BlockInputConfig, network iface.NetworkClient, execution iface.ExecutionClient, crypto iface.CryptoVerifier) *Fetcher {
	return &Fetcher{
		cfg: cfg,
		network: network,
		execution: execution,
		crypto: crypto,
		blobCache: newEngineBlobCache(cfg),
		retries: newRetryTracker(cfg.MaxPendingBlocks),
	}
}

// FetchBlock requests the block by root from p when bi does not yet have
// one.
func (f *Fetcher) FetchBlock(ctx context.Context, bi *blockinput.BlockInput, p peer.ID, source iface.SourceTag) error {
	if bi.HasBlock() {
		return nil
	}
	blocks, err := f.network.SendBeaconBlocksByRoot(ctx, p, []primitives.Root{bi.Root()})
	if err != nil {
		return errors.Wrap(err, "root sync: send beacon blocks by root")
	}
	if len(blocks) != 1 {
		return errors.Errorf("root sync: expected 1 block, got %d", len(blocks))
	}
	got, err := blocks[0].Root()
	if err != nil {
		return err
	}
	if got != bi.Root() {
		return &blockinput.MismatchedRootError{Expected: bi.Root(), Got: got}
	}
	return bi.AddBlock(blocks[0], source, time.Now(), blockinput.AddOpts{})
}

// FetchBlockByRoot requests a single block by raw root with no pre-existing
// BlockInput to anchor to, for resolving a root known only from an
// attestation reference.
func (f *Fetcher) FetchBlockByRoot(ctx context.Context, root primitives.Root, p peer.ID) (iface.SignedBeaconBlock, error) {
	blocks, err := f.network.SendBeaconBlocksByRoot(ctx, p, []primitives.Root{root})
	if err != nil {
		return nil, errors.Wrap(err, "root sync: send beacon blocks by root")
	}
	if len(blocks) != 1 {
		return nil, errors.Errorf("root sync: expected 1 block, got %d", len(blocks))
	}
	got, err := blocks[0].Root()
	if err != nil {
		return nil, err
	}
	if got != root {
		return nil, &blockinput.MismatchedRootError{Expected: root, Got: got}
	}
	return blocks[0], nil
}

// FetchBlobsPreFulu runs the engine-local cache first, then a batched
// engine call for not-yet-consulted roots, then by-root for the residual
// set.
func (f *Fetcher) FetchBlobsPreFulu(ctx context.Context, bi *blockinput.BlockInput, p peer.ID, fork string) error {
	missing, err := bi.GetMissingBlobMeta()
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	var residual []blockinput.MissingMeta

	if f.execution != nil && !f.retries.consulted(bi.Root()) {
		hashes := make([]primitives.Root, len(missing))
		for i, m := range missing {
			if entry, ok := f.blobCache.get(m.VersionedHash); ok && entry.state != blobUnknown {
				continue
			}
			hashes[i] = m.VersionedHash
		}
		proofs, err := f.execution.GetBlobs(ctx, fork, hashes)
		if err != nil {
			log.WithError(err).Warn("engine getBlobs call failed, treating as all-null")
			proofs = make([]*iface.BlobProof, len(hashes))
		}
		for i, m := range missing {
			if i < len(proofs) && proofs[i] != nil {
				f.blobCache.setPresent(m.VersionedHash, proofs[i])
			} else {
				f.blobCache.setNegative(m.VersionedHash)
			}
		}
		f.retries.markConsulted(bi.Root())
	}

	for _, m := range missing {
		if entry, ok := f.blobCache.get(m.VersionedHash); ok && entry.state == blobPresent {
			continue // resolved via engine; caller's blob-assembly path wraps proof into a sidecar separately
		}
		residual = append(residual, m)
	}

	if len(residual) == 0 {
		return nil
	}

	reqs := make([]iface.BlobSidecarRequest, len(residual))
	for i, m := range residual {
		reqs[i] = iface.BlobSidecarRequest{BlockRoot: bi.Root(), Index: m.Index}
	}
	sidecars, err := f.network.SendBlobSidecarsByRoot(ctx, p, reqs)
	if err != nil {
		return errors.Wrap(err, "root sync: send blob sidecars by root")
	}
	if err := f.crypto.ValidateBlockBlobSidecars(bi.Slot(), bi.Root(), len(sidecars), sidecars); err != nil {
		return errors.Wrap(err, "root sync: validate blob sidecars by root")
	}
	for _, sc := range sidecars {
		if err := bi.AddBlob(sc, iface.SourceByRoot, time.Now(), p, blockinput.AddOpts{}); err != nil {
			log.WithError(err).WithField("index", sc.Index()).Debug("dropping blob sidecar that failed to add")
		}
	}
	return nil
}

// FetchColumnsPostFulu requests only the intersection of bi's
// still-missing sampled columns and p's advertised custody.
func (f *Fetcher) FetchColumnsPostFulu(ctx context.Context, bi *blockinput.BlockInput, p peer.ID) error {
	missing, err := bi.GetMissingSampledColumnMeta()
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	custody := make(map[uint64]bool, len(f.network.ConnectedPeerCustody(p)))
	for _, idx := range f.network.ConnectedPeerCustody(p) {
		custody[idx] = true
	}

	var wanted []uint64
	for _, m := range missing {
		if custody[m.Index] {
			wanted = append(wanted, m.Index)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	req := []iface.ColumnSidecarRequest{{BlockRoot: bi.Root(), Columns: wanted}}
	columns, err := f.network.SendDataColumnSidecarsByRoot(ctx, p, req)
	if err != nil {
		return errors.Wrap(err, "root sync: send data column sidecars by root")
	}
	if err := f.crypto.ValidateBlockDataColumnSidecars(bi.Slot(), bi.Root(), len(bi.GetVersionedHashes()), columns); err != nil {
		return errors.Wrap(err, "root sync: validate column sidecars by root")
	}
	for _, col := range columns {
		// A column that fails pairing against the block is silently
		// dropped; the rest of the batch is still inserted.
		if err := bi.AddColumn(col, iface.SourceByRoot, time.Now(), p, blockinput.AddOpts{}); err != nil {
			log.WithError(err).WithField("index", col.ColumnIndex()).Debug("dropping column sidecar that failed to add")
		}
	}
	return nil
}
