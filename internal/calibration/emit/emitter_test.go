package emit

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/histogram"
	"github.com/xtxerr/tfcalib/internal/calibration/slot"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

type fakeSlot struct {
	start, end int64
	open       bool
	stats      [types.NumSides]types.Statistics
}

func (s *fakeSlot) Start() int64 { return s.start }
func (s *fakeSlot) End() int64   { return s.end }
func (s *fakeSlot) IsOpen() bool { return s.open }
func (s *fakeSlot) Statistics(side types.Side) types.Statistics {
	return s.stats[side]
}

func definedSlot(start int64) *fakeSlot {
	s := &fakeSlot{start: start, end: start + 100}
	for _, side := range types.Sides() {
		s.stats[side] = types.Statistics{Entries: 10, Centroid: 15, StdDev: 5, Median: 15.2, Defined: true}
	}
	return s
}

// memStore records every accepted record and fails while failures > 0.
type memStore struct {
	failures int
	err      error
	puts     int
	records  map[types.RecordKey]types.Record
}

func newMemStore() *memStore {
	return &memStore{
		err:     errors.ErrStoreUnavailable,
		records: make(map[types.RecordKey]types.Record),
	}
}

func (m *memStore) Put(_ context.Context, rec types.Record) error {
	m.puts++
	if m.failures > 0 {
		m.failures--
		return m.err
	}
	m.records[rec.Key()] = rec
	return nil
}

func mustEmitter(t *testing.T, store Store) *Emitter {
	t.Helper()
	e, err := New(DefaultOptions(), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}, newMemStore()); !errors.IsValidation(err) {
		t.Errorf("expected validation error for empty object path, got %v", err)
	}
	if _, err := New(DefaultOptions(), nil); !errors.IsValidation(err) {
		t.Errorf("expected validation error for nil store, got %v", err)
	}
}

func TestEmitter_Build(t *testing.T) {
	e := mustEmitter(t, newMemStore())

	rec, err := e.Build(definedSlot(300), true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if rec.ObjectPath != config.DefaultObjectPath {
		t.Errorf("expected path %s, got %s", config.DefaultObjectPath, rec.ObjectPath)
	}
	if rec.ValidityStart != 300 {
		t.Errorf("expected validity start 300, got %d", rec.ValidityStart)
	}
	if rec.ValidityEnd != config.DefaultValidityEnd {
		t.Errorf("expected open-ended validity, got %d", rec.ValidityEnd)
	}
	if rec.SlotEnd != 400 {
		t.Errorf("expected slot end 400, got %d", rec.SlotEnd)
	}
	if len(rec.Payload) == 0 {
		t.Error("expected payload")
	}

	if _, err := e.Build(&fakeSlot{open: true}, false); err == nil {
		t.Error("expected error building from open slot")
	}
}

func TestEmitter_EmitDelivers(t *testing.T) {
	store := newMemStore()
	e := mustEmitter(t, store)

	if _, err := e.Emit(context.Background(), definedSlot(0), true); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(store.records) != 1 {
		t.Errorf("expected 1 stored record, got %d", len(store.records))
	}
	if len(e.Pending()) != 0 {
		t.Errorf("expected empty pending buffer, got %d", len(e.Pending()))
	}

	// A second cycle must not resend the delivered record.
	if err := e.Deliver(context.Background()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if store.puts != 1 {
		t.Errorf("expected 1 put, got %d", store.puts)
	}
	if len(e.Delivered()) != 1 {
		t.Errorf("expected 1 delivered record, got %d", len(e.Delivered()))
	}
}

func TestEmitter_RetainsOnFailure(t *testing.T) {
	store := newMemStore()
	store.failures = 2
	e := mustEmitter(t, store)
	ctx := context.Background()

	_, err := e.Emit(ctx, definedSlot(0), true)
	if !errors.IsRetriable(err) {
		t.Fatalf("expected retriable error, got %v", err)
	}
	if len(e.Pending()) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(e.Pending()))
	}

	// The next cycle fails too, and the newer record queues behind.
	if _, err := e.Emit(ctx, definedSlot(100), true); err == nil {
		t.Fatal("expected second failure")
	}
	if len(e.Pending()) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(e.Pending()))
	}

	if err := e.Deliver(ctx); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(store.records) != 2 {
		t.Errorf("expected 2 stored records, got %d", len(store.records))
	}
	if len(e.Pending()) != 0 {
		t.Errorf("expected empty pending, got %d", len(e.Pending()))
	}

	delivered := e.Delivered()
	if delivered[0].ValidityStart != 0 || delivered[1].ValidityStart != 100 {
		t.Errorf("delivery out of order: %d, %d", delivered[0].ValidityStart, delivered[1].ValidityStart)
	}

	stats := e.Stats()
	if stats.DeliveryFailures != 2 {
		t.Errorf("expected 2 failures, got %d", stats.DeliveryFailures)
	}
	if stats.RecordsDelivered != 2 || stats.RecordsBuilt != 2 {
		t.Errorf("expected 2 built and delivered, got %d and %d", stats.RecordsBuilt, stats.RecordsDelivered)
	}
}

func TestEmitter_PartialDelivery(t *testing.T) {
	calls := 0
	store := StoreFunc(func(_ context.Context, rec types.Record) error {
		calls++
		if rec.ValidityStart == 100 && calls < 4 {
			return fmt.Errorf("rejected: %w", errors.ErrRecordRejected)
		}
		return nil
	})
	e := mustEmitter(t, store)
	ctx := context.Background()

	e.Add(definedSlot(0), true)
	e.Add(definedSlot(100), true)
	e.Add(definedSlot(200), true)

	if err := e.Deliver(ctx); err == nil {
		t.Fatal("expected failure on second record")
	}

	pending := e.Pending()
	if len(pending) != 2 || pending[0].ValidityStart != 100 {
		t.Fatalf("expected records 100 and 200 pending, got %v", pending)
	}
	if len(e.Delivered()) != 1 {
		t.Errorf("expected 1 delivered, got %d", len(e.Delivered()))
	}

	e.Deliver(ctx)
	if err := e.Deliver(ctx); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(e.Pending()) != 0 {
		t.Errorf("expected nothing pending, got %d", len(e.Pending()))
	}
}

func TestEmitter_CancelledContext(t *testing.T) {
	store := newMemStore()
	e := mustEmitter(t, store)
	e.Add(definedSlot(0), true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Deliver(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(e.Pending()) != 1 {
		t.Errorf("cancelled delivery must keep the record, got %d pending", len(e.Pending()))
	}
}

func TestEmitter_EmptySlotCarriesUndefined(t *testing.T) {
	factory, err := histogram.Factory(200, 0.01)
	if err != nil {
		t.Fatalf("histogram factory: %v", err)
	}
	w, err := slot.NewWindow(slot.Options{SlotLength: 100, MaxDelaySlots: 1, MinEntriesPerSide: 1}, nil, factory)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	w.Process(0, []types.Sample{{Timestamp: 5, Value: 42, Side: types.SideA}})
	finalized := w.FlushAll()

	store := newMemStore()
	e := mustEmitter(t, store)
	rec, err := e.Emit(context.Background(), finalized[0], w.HasEnoughData(finalized[0]))
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if rec.EnoughData {
		t.Error("side C is empty, expected insufficient data")
	}

	p, err := DecodePayload(rec.Payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Stats[types.SideC].Defined {
		t.Error("side C should decode as undefined")
	}
	if p.Stats[types.SideC].Centroid == 0 {
		t.Error("undefined centroid must not decode as zero")
	}
	if !p.Stats[types.SideA].Defined || p.Stats[types.SideA].Centroid != 42 {
		t.Errorf("expected side A centroid 42, got %+v", p.Stats[types.SideA])
	}
	if math.Abs(p.Stats[types.SideA].Median-42) > 42*0.01 {
		t.Errorf("expected side A median near 42, got %f", p.Stats[types.SideA].Median)
	}
}
