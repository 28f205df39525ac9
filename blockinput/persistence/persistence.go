// Package persistence implements the persist-to-DB contract: once a
// block has been imported to fork-choice, the node must eventually persist
// it and its sidecars, and the seen-cache entry must be pruned regardless of
// whether the write succeeded, so an unlucky storage error cannot leak a
// BlockInput forever.
package persistence

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nodewright/blockinput/blockinput"
	"github.com/nodewright/blockinput/blockinput/seen"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

var log = logrus.WithField("prefix", "blockinput/persistence")

// Store is the durable key-value collaborator this sink writes through;
// it is intentionally narrow — the actual on-disk layout belongs to the
// storage collaborator, out of this subsystem's scope.
type Store interface {
	PutBlock(ctx context.Context, root primitives.Root, binary []byte) error
	PutBlobSidecars(ctx context.Context, root primitives.Root, sidecars []iface.BlobSidecar) error
	PutCustodyColumnSidecars(ctx context.Context, root primitives.Root, sidecars []iface.ColumnSidecar) error
	DeleteBlock(ctx context.Context, root primitives.Root) error
	DeleteBlobSidecars(ctx context.Context, root primitives.Root) error
	DeleteColumnSidecars(ctx context.Context, root primitives.Root) error
}

// CustodyFilter narrows a Columns-variant BlockInput's full column cache
// down to the custody subset before it's written, since requires
// writing only custodied columns, not every sampled one.
type CustodyFilter func(bi *blockinput.BlockInput, allColumns []iface.ColumnSidecar) []iface.ColumnSidecar

// Sink is the persistence sink. It holds a reference to the seen cache
// purely so it can prune entries in its finally stage.
type Sink struct {
	store Store
	seen *seen.Cache
	custody CustodyFilter
}

// New builds a Sink writing through store and pruning seenCache entries on
// completion.
func New(store Store, seenCache *seen.Cache, custody CustodyFilter) *Sink {
	return &Sink{store: store, seen: seenCache, custody: custody}
}

// blockInputBinary is implemented by block wrappers that cache their own
// serialized bytes, letting PersistBlockInputs use putBinary instead of
// re-encoding ("uses cached serialized bytes if available").
type blockInputBinary interface {
	CachedBinary() ([]byte, bool)
}

// Encoder canonically encodes a block when no cached binary is available.
type Encoder interface {
	Encode(block iface.SignedBeaconBlock) ([]byte, error)
}

// PersistBlockInputs writes every entity's block and (variant-appropriate)
// sidecars, best-effort-concurrently, and always prunes the seen-cache
// entry afterward regardless of write outcome. It returns the first error
// encountered, if any, but does not stop other entities' writes on one
// entity's failure.
func (s *Sink) PersistBlockInputs(ctx context.Context, enc Encoder, entities []*blockinput.BlockInput, columnsByRoot map[primitives.Root][]iface.ColumnSidecar, blobsByRoot map[primitives.Root][]iface.BlobSidecar) error {
	var g errgroup.Group
	for _, bi := range entities {
		bi := bi
		g.Go(func() error {
			err := s.persistOne(ctx, enc, bi, columnsByRoot[bi.Root()], blobsByRoot[bi.Root()])
			s.seen.Delete(bi.Root())
			if err != nil {
				log.WithError(err).WithField("root", bi.Root()).Warn("failed to persist block input")
			}
			return err
		})
	}
	return g.Wait()
}

func (s *Sink) persistOne(ctx context.Context, enc Encoder, bi *blockinput.BlockInput, columns []iface.ColumnSidecar, blobs []iface.BlobSidecar) error {
	block, err := bi.GetBlock()
	if err != nil {
		return errors.Wrap(err, "persist: block not available")
	}

	var binary []byte
	if cached, ok := interface{}(block).(blockInputBinary); ok {
		if b, ok := cached.CachedBinary(); ok {
			binary = b
		}
	}
	if binary == nil {
		binary, err = enc.Encode(block)
		if err != nil {
			return errors.Wrap(err, "persist: encode block")
		}
	}
	if err := s.store.PutBlock(ctx, bi.Root(), binary); err != nil {
		return errors.Wrap(err, "persist: put block")
	}

	switch bi.DAType() {
	case iface.DATypeBlobs:
		if err := s.store.PutBlobSidecars(ctx, bi.Root(), blobs); err != nil {
			return errors.Wrap(err, "persist: put blob sidecars")
		}
	case iface.DATypeColumns:
		custodyOnly := columns
		if s.custody != nil {
			custodyOnly = s.custody(bi, columns)
		}
		if err := s.store.PutCustodyColumnSidecars(ctx, bi.Root(), custodyOnly); err != nil {
			return errors.Wrap(err, "persist: put custody column sidecars")
		}
	}
	return nil
}

// RemoveEagerlyPersistedBlockInputs reverses a persist when fork-choice
// later rejects the block, per the companion routine.
func (s *Sink) RemoveEagerlyPersistedBlockInputs(ctx context.Context, roots []primitives.Root) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		root := root
		g.Go(func() error {
			if err := s.store.DeleteBlock(gctx, root); err != nil {
				log.WithError(err).WithField("root", root).Warn("failed to remove persisted block")
				return err
			}
			if err := s.store.DeleteBlobSidecars(gctx, root); err != nil {
				log.WithError(err).WithField("root", root).Warn("failed to remove persisted blob sidecars")
			}
			if err := s.store.DeleteColumnSidecars(gctx, root); err != nil {
				log.WithError(err).WithField("root", root).Warn("failed to remove persisted column sidecars")
			}
			return nil
		})
	}
	return g.Wait()
}
