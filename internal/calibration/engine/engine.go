// Package engine wires the calibration pipeline for one run:
// samples → cut → slot window → emitter → record store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xtxerr/tfcalib/internal/calibration/config"
	"github.com/xtxerr/tfcalib/internal/calibration/cut"
	"github.com/xtxerr/tfcalib/internal/calibration/dump"
	"github.com/xtxerr/tfcalib/internal/calibration/emit"
	"github.com/xtxerr/tfcalib/internal/calibration/histogram"
	"github.com/xtxerr/tfcalib/internal/calibration/journal"
	"github.com/xtxerr/tfcalib/internal/calibration/shard"
	"github.com/xtxerr/tfcalib/internal/calibration/slot"
	"github.com/xtxerr/tfcalib/internal/calibration/telemetry"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Window is the slot window specialised to histograms.
type Window = slot.Window[*histogram.Histogram]

// Stats holds engine statistics.
type Stats struct {
	BatchesProcessed int64
	Window           slot.Stats
	Emitter          emit.Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal makes the engine append every batch to j before routing it.
func WithJournal(j *journal.Writer) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// Engine runs one calibration over a stream of batches. It is safe for
// concurrent use; batches are applied in call order.
type Engine struct {
	mu sync.Mutex

	cfg     *config.Config
	window  *Window
	coord   *shard.Coordinator[*histogram.Histogram]
	emitter *emit.Emitter
	journal *journal.Writer

	batches int64
	flushed bool

	log *slog.Logger
}

// New creates an engine emitting to store.
func New(cfg *config.Config, store emit.Store, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := cut.New(cfg.CutOptions())
	if err != nil {
		return nil, fmt.Errorf("create cut policy: %w", err)
	}

	factory, err := histogram.Factory(cfg.Histogram.Bins, cfg.Histogram.SketchAccuracy)
	if err != nil {
		return nil, fmt.Errorf("create histogram factory: %w", err)
	}

	window, err := slot.NewWindow(cfg.WindowOptions(), policy, factory)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	coord, err := shard.New(window, cfg.Sharding.Shards)
	if err != nil {
		return nil, fmt.Errorf("create shard coordinator: %w", err)
	}

	emitter, err := emit.New(cfg.EmitOptions(), store)
	if err != nil {
		return nil, fmt.Errorf("create emitter: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		window:  window,
		coord:   coord,
		emitter: emitter,
		log:     logging.Component("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Process ingests one batch. Slots that age out are finalized and their
// records delivered. A failed delivery is not an error of Process: the
// records stay pending and are retried on the next call.
func (e *Engine) Process(ctx context.Context, currentTime int64, samples []types.Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.flushed {
		return fmt.Errorf("process after flush: %w", errors.ErrClosed)
	}

	if e.journal != nil {
		if err := e.journal.Append(types.Batch{CurrentTime: currentTime, Samples: samples}); err != nil {
			return fmt.Errorf("journal batch: %w", err)
		}
	}

	before := e.window.Stats()

	finalized, err := e.coord.Process(ctx, currentTime, samples)
	if err != nil {
		// Slots evicted before the failure are still emitted.
		e.emitAll(ctx, finalized)
		return fmt.Errorf("process batch at %d: %w", currentTime, err)
	}
	e.batches++

	after := e.window.Stats()
	logging.WithContext(ctx, "engine").Debug("batch filtered",
		"time", currentTime,
		"summary", fmt.Sprintf("%d accepted of %d samples", after.SamplesAccepted-before.SamplesAccepted, len(samples)),
		"stale", after.SamplesStale-before.SamplesStale,
		"active_slots", after.ActiveSlots)

	return e.emitAll(ctx, finalized)
}

// FlushAll finalizes every open slot and delivers all pending records.
// It must be called once at end of stream; later Process calls fail.
// An error means records are still pending; Retry may deliver them.
// Repeated calls finalize nothing and report whether records are pending.
func (e *Engine) FlushAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.flushed {
		return e.pendingErr()
	}
	e.flushed = true

	flushed := e.coord.FlushAll()
	e.log.Info("end of stream", "flushed_slots", len(flushed))

	if err := e.emitAll(ctx, flushed); err != nil {
		return err
	}
	return e.pendingErr()
}

// Retry runs a delivery cycle for pending records.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.emitter.Deliver(ctx)
}

func (e *Engine) emitAll(ctx context.Context, finalized []*slot.Slot[*histogram.Histogram]) error {
	for _, s := range finalized {
		enough := e.window.HasEnoughData(s)

		rec, err := e.emitter.Add(s, enough)
		if err != nil {
			return fmt.Errorf("build record for %s: %w", s, err)
		}

		e.log.Info("slot finalized",
			"start", s.Start(),
			"end", s.End(),
			"enough_data", enough,
			"side_a", rec.Stats[types.SideA].String(),
			"side_c", rec.Stats[types.SideC].String())
	}

	if len(e.emitter.Pending()) == 0 {
		return nil
	}

	err := e.emitter.Deliver(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	return nil
}

func (e *Engine) pendingErr() error {
	if n := len(e.emitter.Pending()); n > 0 {
		return fmt.Errorf("%d records undelivered: %w", n, errors.ErrStoreUnavailable)
	}
	return nil
}

// Dump writes every record built so far, delivered or pending, to a
// Parquet file at path.
func (e *Engine) Dump(path string) error {
	e.mu.Lock()
	records := append(e.emitter.Delivered(), e.emitter.Pending()...)
	e.mu.Unlock()

	return dump.Write(path, records, dump.DefaultOptions())
}

// Records returns every record built so far in validity order.
func (e *Engine) Records() []types.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(e.emitter.Delivered(), e.emitter.Pending()...)
}

// Stats returns engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		BatchesProcessed: e.batches,
		Window:           e.window.Stats(),
		Emitter:          e.emitter.Stats(),
	}
}

// Snapshot returns the telemetry snapshot of the engine.
func (e *Engine) Snapshot() telemetry.Snapshot {
	s := e.Stats()
	return telemetry.Snapshot{Window: s.Window, Emitter: s.Emitter}
}

// Config returns the run configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}
