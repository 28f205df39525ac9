// Package availability implements the data-availability gate:
// verifyBlocksDataAvailability blocks a caller (typically the driver, before
// handing a contiguous run of blocks to the chain layer) until every
// BlockInput in the batch has both its block and all required data, or
// until a bounded timeout elapses.
package availability

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nodewright/blockinput/blockinput"
	"github.com/nodewright/blockinput/config"
	"github.com/nodewright/blockinput/iface"
	"github.com/nodewright/blockinput/primitives"
)

// Status classifies why an available BlockInput is available.
type Status int

const (
	// StatusPreData is reported for a block whose DA type is PreData: no
	// sidecars are ever required for it.
	StatusPreData Status = iota
	// StatusOutOfRange is reported for a block whose slot already fell
	// outside the DA retention window at construction time.
	StatusOutOfRange
	// StatusAvailable is reported once the block and every required
	// sidecar has actually been collected.
	StatusAvailable
)

// Result is the per-entity outcome of a successful VerifyBlocksDataAvailability
// call.
type Result struct {
	Root primitives.Root
	Status Status
}

// VerifyBlocksDataAvailability waits, concurrently per entity, for every
// supplied BlockInput to report HasBlockAndAllData, up to
// cfg.BlobAvailabilityTimeout. The call is all-or-nothing: the first entity
// to fail (timeout or context cancellation) aborts every other wait in the
// batch and the call returns a nil slice, a zero availableTime, and that
// error, rather than a partial result set a caller might mistake for a
// complete one. On success, availableTime is the maximum of every entity's
// completion timestamp, floored at 0 (a PreData or out-of-range entity
// stamps timeComplete when its block is added, and contributes that time).
func VerifyBlocksDataAvailability(ctx context.Context, cfg *config.BlockInputConfig, entities []*blockinput.BlockInput) ([]Result, int64, error) {
	results := make([]Result, len(entities))
	g, gctx := errgroup.WithContext(ctx)

	for i, bi := range entities {
		i, bi := i, bi
		g.Go(func() error {
			if err := bi.WaitForBlockAndAllData(gctx, cfg.BlobAvailabilityTimeout); err != nil {
				return err
			}
			results[i] = Result{Root: bi.Root(), Status: statusFor(bi)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var availableTime int64
	for _, bi := range entities {
		tc, err := bi.GetTimeComplete()
		if err != nil {
			continue
		}
		if tc > availableTime {
			availableTime = tc
		}
	}
	return results, availableTime, nil
}

func statusFor(bi *blockinput.BlockInput) Status {
	switch {
	case bi.DAType() == iface.DATypePreData:
		return StatusPreData
	case bi.DAOutOfRange():
		return StatusOutOfRange
	default:
		return StatusAvailable
	}
}
