package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xtxerr/tfcalib/internal/calibration/emit"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

func mustOpen(t *testing.T, opts Options) *DuckDB {
	t.Helper()
	s, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(t *testing.T, path string, start int64, centroid float64) types.Record {
	t.Helper()
	rec := types.Record{
		ObjectPath:    path,
		ValidityStart: start,
		ValidityEnd:   99999999999999,
		SlotStart:     start,
		SlotEnd:       start + 100,
		EnoughData:    true,
	}
	rec.Stats[types.SideA] = types.Statistics{Entries: 120, Centroid: centroid, StdDev: 2, Median: centroid, Defined: true}
	rec.Stats[types.SideC] = types.UndefinedStatistics()

	payload, err := emit.EncodePayload(&rec)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	rec.Payload = payload
	return rec
}

func TestDuckDB_PutLookup(t *testing.T) {
	s := mustOpen(t, Options{})
	ctx := context.Background()

	for i, start := range []int64{0, 100, 200} {
		if err := s.Put(ctx, testRecord(t, "TPC/Calib/MIPS", start, float64(50+i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	// Open-ended intervals: the latest start covering t supersedes.
	rec, err := s.Lookup(ctx, "TPC/Calib/MIPS", 150)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.ValidityStart != 100 {
		t.Errorf("expected validity start 100, got %d", rec.ValidityStart)
	}
	if rec.Stats[types.SideA].Centroid != 51 {
		t.Errorf("expected centroid 51, got %f", rec.Stats[types.SideA].Centroid)
	}
	if rec.Stats[types.SideC].Defined {
		t.Error("side C should stay undefined")
	}

	rec, err = s.Lookup(ctx, "TPC/Calib/MIPS", 1000000)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.ValidityStart != 200 {
		t.Errorf("expected newest record, got %d", rec.ValidityStart)
	}
}

func TestDuckDB_LookupNotFound(t *testing.T) {
	s := mustOpen(t, Options{})
	ctx := context.Background()

	s.Put(ctx, testRecord(t, "TPC/Calib/MIPS", 100, 50))

	if _, err := s.Lookup(ctx, "TPC/Calib/MIPS", 50); !errors.IsNotFound(err) {
		t.Errorf("expected not found before first record, got %v", err)
	}
	if _, err := s.Lookup(ctx, "TPC/Calib/Other", 150); !errors.IsNotFound(err) {
		t.Errorf("expected not found for other path, got %v", err)
	}
}

func TestDuckDB_IdempotentPut(t *testing.T) {
	s := mustOpen(t, Options{})
	ctx := context.Background()

	rec := testRecord(t, "TPC/Calib/MIPS", 300, 40)
	for i := 0; i < 3; i++ {
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 record after redelivery, got %d", n)
	}

	// Same key, new content replaces.
	if err := s.Put(ctx, testRecord(t, "TPC/Calib/MIPS", 300, 41)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ := s.Lookup(ctx, "TPC/Calib/MIPS", 300)
	if got.Stats[types.SideA].Centroid != 41 {
		t.Errorf("expected replaced centroid 41, got %f", got.Stats[types.SideA].Centroid)
	}
}

func TestDuckDB_List(t *testing.T) {
	s := mustOpen(t, Options{})
	ctx := context.Background()

	s.Put(ctx, testRecord(t, "B", 200, 1))
	s.Put(ctx, testRecord(t, "A", 100, 1))
	s.Put(ctx, testRecord(t, "A", 0, 1))

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].ObjectPath != "A" || all[0].ValidityStart != 0 || all[2].ObjectPath != "B" {
		t.Errorf("unexpected order: %s@%d ... %s", all[0].ObjectPath, all[0].ValidityStart, all[2].ObjectPath)
	}

	a, err := s.List(ctx, "A")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(a) != 2 {
		t.Errorf("expected 2 records for A, got %d", len(a))
	}
}

func TestDuckDB_Rejects(t *testing.T) {
	s := mustOpen(t, Options{})

	err := s.Put(context.Background(), types.Record{})
	if !errors.Is(err, errors.ErrRecordRejected) {
		t.Errorf("expected rejected, got %v", err)
	}
	if s.Stats().Errors != 1 {
		t.Errorf("expected 1 error, got %d", s.Stats().Errors)
	}
}

func TestDuckDB_Closed(t *testing.T) {
	s, err := Open(Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	err = s.Put(context.Background(), testRecord(t, "A", 0, 1))
	if !errors.IsRetriable(err) {
		t.Errorf("put on closed store should be retriable, got %v", err)
	}
	if _, err := s.Count(context.Background()); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDuckDB_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.duckdb")
	ctx := context.Background()

	s, err := Open(Options{Path: path, MemoryLimit: "256MB"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, testRecord(t, "TPC/Calib/MIPS", 0, 12)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	reopened := mustOpen(t, Options{Path: path})
	n, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected persisted record, got %d", n)
	}
}
