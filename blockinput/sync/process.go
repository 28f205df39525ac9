package sync

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// processAncestorChain processes p and, on success, recurses into any
// pending children whose parent is now this block's root ( step 2:
// "recursively for its children when successful").
func (d *Driver) processAncestorChain(ctx context.Context, p *PendingBlockInput) {
	d.maybeDeferForUnbundling(ctx, p)

	root := p.BI.Root()
	d.mu.Lock()
	p.Status = StatusProcessing
	d.mu.Unlock()

	err := d.chain.ProcessBlock(ctx, root, iface.ProcessBlockOpts{Reprocess: p.Attempts > 0})
	switch {
	case err == nil:
		d.mu.Lock()
		d.pendingBlocks.Remove(root)
		d.mu.Unlock()
		d.seenCache.Delete(root)
		d.recurseIntoChildren(ctx, root)

	case errors.Is(err, ErrParentUnknown), errors.Is(err, ErrPrestateMissing):
		d.mu.Lock()
		p.Status = StatusDownloaded
		p.Attempts++
		d.mu.Unlock()

	case errors.Is(err, ErrExecutionEngineError):
		// EL issue: drop this block and its descendants without touching
		// peer scores.
		d.dropWithDescendants(root)

	default:
		// Any other block-error: drop this block and descendants. Only the
		// rejected root is logged; the peers that referenced the chain are
		// neither reported nor downscored.
		log.WithError(err).WithField("root", root).Warn("block rejected, dropping with descendants")
		d.dropWithDescendants(root)
	}
}

// maybeDeferForUnbundling implements the anti-unbundling guard: if this
// slot's proposer was already observed broadcasting a gossip block, sleep
// until one third of a slot (SecondsPerSlot/3) has passed since that
// sighting before processing. The deadline is measured from the sighting
// time recorded by MarkBlockProposerSeen, not from the start of the slot.
func (d *Driver) maybeDeferForUnbundling(ctx context.Context, p *PendingBlockInput) {
	slot := p.BI.Slot()

	d.mu.Lock()
	seenAt, wasSeen := d.seenBlockProposers[slot]
	d.mu.Unlock()
	if !wasSeen {
		return
	}

	dueOffset := d.cfg.SecondsPerSlot / 3 // one slot-third after the sighting
	deadline := seenAt.Add(dueOffset)
	wait := time.Until(deadline)
	if wait <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (d *Driver) recurseIntoChildren(ctx context.Context, parentRoot primitives.Root) {
	d.mu.Lock()
	var children []*PendingBlockInput
	for _, key := range d.pendingBlocks.Keys() {
		v, ok := d.pendingBlocks.Peek(key)
		if !ok {
			continue
		}
		p, ok := v.(*PendingBlockInput)
		if !ok || p.Status != StatusDownloaded {
			continue
		}
		if p.BI.ParentRoot() == parentRoot {
			children = append(children, p)
		}
	}
	d.mu.Unlock()

	for _, child := range children {
		d.processAncestorChain(ctx, child)
	}
}

// dropWithDescendants removes root and every pending block descended from
// it, however many generations deep, from pendingBlocks, marking each as
// known-bad.
func (d *Driver) dropWithDescendants(root primitives.Root) {
	d.mu.Lock()
	defer d.mu.Unlock()

	childrenOf := make(map[primitives.Root][]primitives.Root)
	for _, key := range d.pendingBlocks.Keys() {
		r, ok := key.(primitives.Root)
		if !ok {
			continue
		}
		v, ok := d.pendingBlocks.Peek(key)
		if !ok {
			continue
		}
		p, ok := v.(*PendingBlockInput)
		if !ok {
			continue
		}
		parent := p.BI.ParentRoot()
		childrenOf[parent] = append(childrenOf[parent], r)
	}

	toRemove := []primitives.Root{root}
	queue := []primitives.Root{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		queue = append(queue, childrenOf[cur]...)
		toRemove = append(toRemove, childrenOf[cur]...)
	}

	for _, r := range toRemove {
		d.pendingBlocks.Remove(r)
		d.knownBadBlocks.Add(r, struct{}{})
		d.seenCache.Delete(r)
	}
}
