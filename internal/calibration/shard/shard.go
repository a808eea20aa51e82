// Package shard fills a slot window from several goroutines.
//
// Each batch is split into contiguous chunks that are routed into private
// partial windows concurrently. The partial windows are then absorbed into
// the main window one after another, which merges same-range slots through
// the container's Merge. Finalization is evaluated on the main window only.
package shard

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/tfcalib/internal/calibration/slot"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Coordinator drives a window with concurrent partial fills.
// Process and FlushAll must not be called concurrently.
type Coordinator[C slot.Container[C]] struct {
	window *slot.Window[C]
	shards int
	log    *slog.Logger
}

// New creates a coordinator over window using the given number of shards.
func New[C slot.Container[C]](window *slot.Window[C], shards int) (*Coordinator[C], error) {
	if window == nil {
		return nil, errors.NewMissingField("window")
	}
	if shards < 1 {
		return nil, errors.NewInvalidValue("sharding.shards", shards, "must be at least 1")
	}

	return &Coordinator[C]{
		window: window,
		shards: shards,
		log:    logging.Component("shard"),
	}, nil
}

// Process has the semantics of Window.Process with the batch routed
// concurrently. It returns the finalized slots oldest first.
//
// A batch reaches the main window whole or not at all: if ctx is done
// before the samples are applied, the batch is dropped for every shard
// count and the slots evicted beforehand are returned with the error.
func (c *Coordinator[C]) Process(ctx context.Context, currentTime int64, samples []types.Sample) ([]*slot.Slot[C], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	finalized := c.window.Evict(currentTime)

	if err := c.fill(ctx, samples); err != nil {
		return finalized, err
	}

	return append(finalized, c.window.Evict(currentTime)...), nil
}

func (c *Coordinator[C]) fill(ctx context.Context, samples []types.Sample) error {
	n := c.shards
	if n > len(samples) {
		n = len(samples)
	}
	if n <= 1 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fill window: %w", err)
		}
		c.window.Fill(samples)
		return nil
	}

	partials := make([]*slot.Window[C], n)
	for i := range partials {
		partials[i] = c.window.NewPartial()
	}

	chunk := (len(samples) + n - 1) / n

	g, gctx := errgroup.WithContext(ctx)
	for i := range partials {
		i := i
		lo := i * chunk
		hi := min(lo+chunk, len(samples))
		if lo >= hi {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[i].Fill(samples[lo:hi])

			logging.WithContext(logging.ContextWithShard(gctx, i), "shard").Debug("partial window filled",
				"samples", hi-lo,
				"slots", partials[i].ActiveCount())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fill partial windows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fill partial windows: %w", err)
	}

	// Absorb order does not matter for the merged contents.
	for i, p := range partials {
		if err := c.window.Absorb(p); err != nil {
			return fmt.Errorf("absorb shard %d: %w", i, err)
		}
	}

	return nil
}

// FlushAll finalizes every open slot of the main window.
func (c *Coordinator[C]) FlushAll() []*slot.Slot[C] {
	return c.window.FlushAll()
}

// Window returns the main window.
func (c *Coordinator[C]) Window() *slot.Window[C] {
	return c.window
}

// Shards returns the configured shard count.
func (c *Coordinator[C]) Shards() int {
	return c.shards
}
