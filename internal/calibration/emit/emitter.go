// Package emit turns finalized slots into calibration records and
// delivers them to an external record store.
//
// Delivery is at-least-once. A record that the store fails to accept stays
// pending and is retried, in order, on the next delivery cycle; the store
// must treat redelivery of the same (object path, validity start) as
// idempotent.
package emit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Store persists calibration records.
type Store interface {
	Put(ctx context.Context, rec types.Record) error
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, rec types.Record) error

// Put calls f.
func (f StoreFunc) Put(ctx context.Context, rec types.Record) error {
	return f(ctx, rec)
}

// Finalized is the view of a finalized slot the emitter needs.
type Finalized interface {
	Start() int64
	End() int64
	IsOpen() bool
	Statistics(side types.Side) types.Statistics
}

// Options configures an Emitter.
type Options struct {
	ObjectPath  string
	ValidityEnd int64
}

// DefaultOptions returns the default emission options.
func DefaultOptions() Options {
	return Options{
		ObjectPath:  config.DefaultObjectPath,
		ValidityEnd: config.DefaultValidityEnd,
	}
}

// Validate checks the emission options.
func (o Options) Validate() error {
	if o.ObjectPath == "" {
		return errors.NewMissingField("emission.object_path")
	}
	return nil
}

// Stats holds emitter statistics.
type Stats struct {
	RecordsBuilt     int64
	RecordsDelivered int64
	DeliveryFailures int64
	Pending          int64
}

// Emitter builds records and delivers them to a Store.
// It is not safe for concurrent use.
type Emitter struct {
	opts  Options
	store Store

	pending []types.Record
	history []types.Record

	stats Stats
	log   *slog.Logger
}

// New creates an emitter writing to store.
func New(opts Options, store Store) (*Emitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.NewMissingField("store")
	}

	return &Emitter{
		opts:  opts,
		store: store,
		log:   logging.Component("emitter"),
	}, nil
}

// Build converts a finalized slot into a record without queueing it.
func (e *Emitter) Build(s Finalized, enoughData bool) (types.Record, error) {
	if s.IsOpen() {
		return types.Record{}, fmt.Errorf("build record for open slot [%d, %d): %w", s.Start(), s.End(), errors.ErrInternal)
	}

	rec := types.Record{
		ObjectPath:    e.opts.ObjectPath,
		ValidityStart: s.Start(),
		ValidityEnd:   e.opts.ValidityEnd,
		SlotStart:     s.Start(),
		SlotEnd:       s.End(),
		EnoughData:    enoughData,
	}
	for _, side := range types.Sides() {
		rec.Stats[side] = s.Statistics(side)
	}

	payload, err := EncodePayload(&rec)
	if err != nil {
		return types.Record{}, err
	}
	rec.Payload = payload

	return rec, nil
}

// Add builds the record for s and queues it for delivery.
func (e *Emitter) Add(s Finalized, enoughData bool) (types.Record, error) {
	rec, err := e.Build(s, enoughData)
	if err != nil {
		return types.Record{}, err
	}

	e.pending = append(e.pending, rec)
	e.stats.RecordsBuilt++

	if !rec.Stats[types.SideA].Defined || !rec.Stats[types.SideC].Defined {
		e.log.Debug("emitting record with undefined statistics",
			"validity_start", rec.ValidityStart,
			"side_a", rec.Stats[types.SideA].String(),
			"side_c", rec.Stats[types.SideC].String())
	}

	return rec, nil
}

// Emit queues the record for s and runs a delivery cycle.
// The record is returned even when delivery fails; it then stays pending.
func (e *Emitter) Emit(ctx context.Context, s Finalized, enoughData bool) (types.Record, error) {
	rec, err := e.Add(s, enoughData)
	if err != nil {
		return types.Record{}, err
	}
	return rec, e.Deliver(ctx)
}

// Deliver pushes pending records to the store in order. It stops at the
// first failure and keeps that record and every later one pending.
func (e *Emitter) Deliver(ctx context.Context) error {
	delivered := 0
	defer func() {
		if delivered == 0 {
			return
		}
		e.history = append(e.history, e.pending[:delivered]...)
		remaining := copy(e.pending, e.pending[delivered:])
		clear(e.pending[remaining:])
		e.pending = e.pending[:remaining]
	}()

	for i := range e.pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := e.pending[i]
		if err := e.store.Put(ctx, rec); err != nil {
			e.stats.DeliveryFailures++
			e.log.Warn("record delivery failed",
				"object_path", rec.ObjectPath,
				"validity_start", rec.ValidityStart,
				"pending", len(e.pending)-i,
				"retriable", errors.IsRetriable(err),
				"error", err)
			return fmt.Errorf("deliver %s@%d: %w", rec.ObjectPath, rec.ValidityStart, err)
		}

		delivered++
		e.stats.RecordsDelivered++
	}

	return nil
}

// Pending returns a copy of the records awaiting delivery.
func (e *Emitter) Pending() []types.Record {
	out := make([]types.Record, len(e.pending))
	copy(out, e.pending)
	return out
}

// Delivered returns a copy of every record the store has accepted,
// in delivery order.
func (e *Emitter) Delivered() []types.Record {
	out := make([]types.Record, len(e.history))
	copy(out, e.history)
	return out
}

// Options returns the emitter configuration.
func (e *Emitter) Options() Options {
	return e.opts
}

// Stats returns current statistics.
func (e *Emitter) Stats() Stats {
	stats := e.stats
	stats.Pending = int64(len(e.pending))
	return stats
}
