package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p-core/peer"

	"github.com/nodewright/blockinput/blockinput"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// scheduleDownload runs one download round for root, per the "download
// loop per unknown, up to getMaxDownloadAttempts attempts". The whole
// attempt budget is spent inside this one call; the attempt count is local
// to the round and is not stored in the pending entry.
func (d *Driver) scheduleDownload(ctx context.Context, root primitives.Root) {
	d.mu.Lock()
	v, ok := d.pendingBlocks.Get(root)
	d.mu.Unlock()
	if !ok {
		return
	}

	var bi *blockinput.BlockInput
	var slot primitives.Slot
	switch p := v.(type) {
	case *PendingBlockInput:
		bi = p.BI
		slot = bi.Slot()
	case *PendingRootHex:
		slot = 0
	default:
		return
	}

	postFulu := d.chain.IsPostFulu(slot)
	maxAttempts := d.cfg.MaxDownloadAttempts(postFulu)
	roundID := uuid.NewString()

	excluded := make(map[peer.ID]bool)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var pendingColumns []uint64
		if postFulu && bi != nil {
			missing, err := bi.GetMissingSampledColumnMeta()
			if err == nil {
				for _, m := range missing {
					pendingColumns = append(pendingColumns, m.Index)
				}
			} else {
				pendingColumns = bi.GetSampledColumns()
			}
		}

		p, release, ok := d.balancer.BestPeer(pendingColumns, excluded)
		if !ok {
			d.fail(root, ErrAllPeersExhausted)
			return
		}
		log.WithField("round", roundID).WithField("attempt", attempt).WithField("peer", p).WithField("root", root).Debug("attempting download")

		outcome, transient := d.attemptOnce(ctx, root, bi, p, postFulu)
		release()

		if !transient {
			excluded[p] = true
		}

		if bi == nil {
			// A PendingRootHex may have been resolved and promoted inside
			// attemptOnce; pick up the BlockInput for the remaining attempts.
			d.mu.Lock()
			entry, entryOK := d.pendingBlocks.Get(root)
			d.mu.Unlock()
			if entryOK {
				if pbi, ok := entry.(*PendingBlockInput); ok {
					bi = pbi.BI
				}
			}
		}

		switch outcome {
		case OutcomeSuccessResolved, OutcomeSuccessMissingParent, OutcomeSuccessLate:
			d.markDownloaded(root, outcome)
			return
		case OutcomeRetry:
			continue
		}
	}
	d.fail(root, ErrMaxAttemptsReached)
}

// attemptOnce performs a single fetch attempt against peer p, returning the
// classified outcome and whether the failure (if any) was transient
// (rate-limit/timeout), per the "on failure, exclude the peer unless
// transient" rule.
func (d *Driver) attemptOnce(ctx context.Context, root primitives.Root, bi *blockinput.BlockInput, p peer.ID, postFulu bool) (DownloadOutcome, bool) {
	if d.forkChoice.HasBlockHex(root.String()) {
		return OutcomeSuccessLate, false
	}
	if bi != nil && bi.HasBlockAndAllData() {
		return OutcomeSuccessLate, false
	}

	if bi == nil {
		// PendingRootHex: resolve the root via by-root lookup, register the
		// result with SeenBlockInput, and promote the pending entry to a
		// PendingBlockInput so later rounds can hang fetches off it directly.
		resolved, err := d.resolveRootHex(ctx, root, p)
		if err != nil {
			return OutcomeRetry, isTransient(err)
		}
		bi = resolved
	}

	if err := d.fetcher.FetchBlock(ctx, bi, p, iface.SourceByRoot); err != nil {
		return OutcomeRetry, isTransient(err)
	}

	if postFulu {
		if err := d.fetcher.FetchColumnsPostFulu(ctx, bi, p); err != nil {
			return OutcomeRetry, isTransient(err)
		}
	} else {
		if err := d.fetcher.FetchBlobsPreFulu(ctx, bi, p, d.chain.GetForkName(bi.Slot())); err != nil {
			return OutcomeRetry, isTransient(err)
		}
	}

	if !bi.HasBlockAndAllData() {
		return OutcomeRetry, true
	}

	if d.forkChoice.HasBlockHex(bi.ParentRoot().String()) {
		return OutcomeSuccessResolved, false
	}
	return OutcomeSuccessMissingParent, false
}

// resolveRootHex fetches the block for an attestation-only root reference,
// registers it with SeenBlockInput, and promotes the driver's pending entry
// from a bare PendingRootHex to a PendingBlockInput wrapping the result.
func (d *Driver) resolveRootHex(ctx context.Context, root primitives.Root, p peer.ID) (*blockinput.BlockInput, error) {
	block, err := d.fetcher.FetchBlockByRoot(ctx, root, p)
	if err != nil {
		return nil, err
	}
	daType, err := daTypeForBlock(d.chain, block)
	if err != nil {
		return nil, err
	}
	bi, _, err := d.seenCache.GetOrCreateFromBlock(block, iface.SourceByRoot, time.Now(), daType, 0, nil, nil)
	if err != nil {
		return nil, err
	}
	d.promoteRootHex(root, bi)
	return bi, nil
}

// daTypeForBlock classifies a freshly-fetched block's DA variant. Fork
// schedule alone (IsPostFulu) distinguishes Columns; pre-Fulu, the presence
// of blob commitments distinguishes Blobs from PreData since this module has
// no other fork-boundary collaborator for Deneb specifically.
func daTypeForBlock(chain iface.ChainClient, block iface.SignedBeaconBlock) (iface.DAType, error) {
	if chain.IsPostFulu(block.Slot()) {
		return iface.DATypeColumns, nil
	}
	commitments, err := block.BlobKZGCommitments()
	if err != nil {
		return iface.DATypePreData, err
	}
	if len(commitments) > 0 {
		return iface.DATypeBlobs, nil
	}
	return iface.DATypePreData, nil
}

// promoteRootHex swaps a root's pendingBlocks entry from PendingRootHex to
// PendingBlockInput once the block has been resolved, carrying over the
// referencing-peer set and original time-added.
func (d *Driver) promoteRootHex(root primitives.Root, bi *blockinput.BlockInput) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.pendingBlocks.Get(root)
	if !ok {
		return
	}
	prh, ok := v.(*PendingRootHex)
	if !ok {
		return
	}
	d.pendingBlocks.Add(root, &PendingBlockInput{
		BI: bi,
		Status: StatusPending,
		ReferencedBy: prh.ReferencedBy,
		TimeAdded: prh.TimeAdded,
	})
}

// isTransient reports whether err should be treated as a retryable
// rate-limit/timeout rather than a peer fault worth excluding. Transport
// errors aren't distinguished by a dedicated type in this module's
// external-collaborator interfaces, so only context deadline/cancellation
// is identifiable without a transport collaborator; everything else counts
// as a peer fault.
func isTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (d *Driver) markDownloaded(root primitives.Root, outcome DownloadOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.pendingBlocks.Get(root)
	if !ok {
		return
	}
	p, ok := v.(*PendingBlockInput)
	if !ok {
		// OutcomeSuccessLate on a still-unresolved PendingRootHex: another
		// path already imported the block, so there is nothing left for
		// this driver to track.
		d.pendingBlocks.Remove(root)
		d.wake()
		return
	}
	p.Status = StatusDownloaded
	now := time.Now()
	p.TimeSynced = &now
	d.wake()
}

func (d *Driver) fail(root primitives.Root, reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingBlocks.Remove(root)
	d.knownBadBlocks.Add(root, struct{}{})
	log.WithError(reason).WithField("root", root).Warn("giving up on block input")
	d.seenCache.Delete(root)
}
