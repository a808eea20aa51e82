package cut

import (
	"math"
	"testing"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

func TestPolicy_Accepts(t *testing.T) {
	p, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name     string
		momentum float64
		clusters int32
		want     bool
	}{
		{"inside window", 0.5, 80, true},
		{"exactly min clusters", 0.5, 60, true},
		{"too few clusters", 0.5, 59, false},
		{"at lower bound", 0.4, 80, false},
		{"at upper bound", 0.6, 80, false},
		{"below window", 0.2, 80, false},
		{"above window", 1.5, 80, false},
		{"momentum ok clusters bad", 0.55, 10, false},
		{"clusters ok momentum bad", 0.1, 150, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := types.Sample{Momentum: tt.momentum, ClusterCount: tt.clusters, Value: 50}
			if got := p.Accepts(s); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPolicy_Disabled(t *testing.T) {
	p := Disabled()
	if p.Enabled() {
		t.Fatal("policy should be disabled")
	}

	s := types.Sample{Momentum: 50, ClusterCount: 0}
	if !p.Accepts(s) {
		t.Error("disabled policy should admit every sample")
	}
}

func TestPolicy_Filter(t *testing.T) {
	p, _ := New(DefaultOptions())

	samples := []types.Sample{
		{Timestamp: 1, Momentum: 0.5, ClusterCount: 100},
		{Timestamp: 2, Momentum: 0.9, ClusterCount: 100},
		{Timestamp: 3, Momentum: 0.45, ClusterCount: 61},
		{Timestamp: 4, Momentum: 0.5, ClusterCount: 1},
	}

	got := p.Filter(samples)
	if len(got) != 2 {
		t.Fatalf("expected 2 accepted samples, got %d", len(got))
	}
	if got[0].Timestamp != 1 || got[1].Timestamp != 3 {
		t.Errorf("unexpected order: %d, %d", got[0].Timestamp, got[1].Timestamp)
	}
	if len(samples) != 4 {
		t.Error("input should not be modified")
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"inverted window", func(o *Options) { o.MinMomentum, o.MaxMomentum = 0.6, 0.4 }, true},
		{"empty window", func(o *Options) { o.MaxMomentum = o.MinMomentum }, true},
		{"nan bound", func(o *Options) { o.MaxMomentum = math.NaN() }, true},
		{"negative clusters", func(o *Options) { o.MinClusters = -1 }, true},
		{"disabled still validated", func(o *Options) { o.Enabled = false; o.MinMomentum = 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)

			_, err := New(opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}
