package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	testutil "github.com/xtxerr/tfcalib/internal/testing"
)

func readAll(t *testing.T, path string) ([]types.Batch, Stats) {
	t.Helper()
	var batches []types.Batch
	stats, err := ReadBatches(path, func(b types.Batch) error {
		batches = append(batches, b)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadBatches: %v", err)
	}
	return batches, stats
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in", "samples.parquet")

	stream := testutil.NewSampleStream(11)
	in := []types.Batch{
		{CurrentTime: 0, Samples: stream.Batch(0, 100, 30)},
		{CurrentTime: 150},
		// Same current time as the previous batch, still a separate step.
		{CurrentTime: 150, Samples: stream.Batch(100, 200, 2000)},
		{CurrentTime: 320, Samples: []types.Sample{testutil.MIPSample(320, 7)}},
	}

	if err := WriteBatches(path, in); err != nil {
		t.Fatalf("WriteBatches: %v", err)
	}

	out, stats := readAll(t, path)
	if len(out) != len(in) {
		t.Fatalf("expected %d batches, got %d", len(in), len(out))
	}
	if stats.Batches != 4 || stats.Samples != 2031 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	for i := range in {
		if out[i].CurrentTime != in[i].CurrentTime {
			t.Errorf("batch %d: expected time %d, got %d", i, in[i].CurrentTime, out[i].CurrentTime)
		}
		if len(out[i].Samples) != len(in[i].Samples) {
			t.Fatalf("batch %d: expected %d samples, got %d", i, len(in[i].Samples), len(out[i].Samples))
		}
		for j := range in[i].Samples {
			if out[i].Samples[j] != in[i].Samples[j] {
				t.Errorf("batch %d sample %d: expected %+v, got %+v", i, j, in[i].Samples[j], out[i].Samples[j])
			}
		}
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the samples file, got %d entries", len(entries))
	}
}

func TestInvalidSideSurvives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.parquet")

	bad := testutil.MIPSample(5, 1)
	bad.Side = types.Side(types.NumSides)
	if err := WriteBatches(path, []types.Batch{{CurrentTime: 5, Samples: []types.Sample{bad}}}); err != nil {
		t.Fatalf("WriteBatches: %v", err)
	}

	out, _ := readAll(t, path)
	if len(out) != 1 || len(out[0].Samples) != 1 {
		t.Fatalf("expected 1 batch with 1 sample, got %+v", out)
	}
	if out[0].Samples[0].Side.Valid() {
		t.Error("invalid side must stay invalid")
	}
}

func TestReadBatches_CallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.parquet")
	in := []types.Batch{{CurrentTime: 1}, {CurrentTime: 2}, {CurrentTime: 3}}
	if err := WriteBatches(path, in); err != nil {
		t.Fatalf("WriteBatches: %v", err)
	}

	stop := errors.New("stop")
	calls := 0
	_, err := ReadBatches(path, func(types.Batch) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected reading to stop after 2 batches, got %d", calls)
	}
}

func TestReadBatches_Missing(t *testing.T) {
	if _, err := ReadBatches(filepath.Join(t.TempDir(), "none.parquet"), func(types.Batch) error { return nil }); err == nil {
		t.Error("expected error for missing file")
	}
}
