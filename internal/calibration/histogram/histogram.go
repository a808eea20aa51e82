// Package histogram implements the two-sided fixed-bin accumulator that
// backs every calibration slot.
//
// Each side owns nBins unit-width bins covering [0, nBins) plus an entry
// counter. Values outside the range are clamped into the boundary bins.
// An optional DDSketch per side tracks the raw values for a median that is
// independent of the binning.
//
// A Histogram is not safe for concurrent use. Merging partial histograms
// from different producers requires that neither is mutated during the
// Merge call.
package histogram

import (
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

// ErrIncompatible is returned when merging histograms with different layouts.
var ErrIncompatible = errors.New("incompatible histogram layout")

// Histogram accumulates sample values per side.
type Histogram struct {
	nBins    int
	accuracy float64

	bins    [types.NumSides][]uint64
	entries [types.NumSides]uint64

	// DDSketch per side (nil if disabled)
	sketches [types.NumSides]*ddsketch.DDSketch
}

// New creates an empty histogram with nBins bins per side.
// A sketchAccuracy of 0 disables the per-side sketches.
func New(nBins int, sketchAccuracy float64) (*Histogram, error) {
	if nBins <= 0 {
		return nil, errors.NewInvalidValue("histogram.bins", nBins, "must be positive")
	}
	if sketchAccuracy < 0 || sketchAccuracy >= 1 || math.IsNaN(sketchAccuracy) {
		return nil, errors.NewInvalidValue("histogram.sketch_accuracy", sketchAccuracy, "must be in [0, 1)")
	}

	h := &Histogram{
		nBins:    nBins,
		accuracy: sketchAccuracy,
	}
	for side := range h.bins {
		h.bins[side] = make([]uint64, nBins)
	}

	if err := h.resetSketches(); err != nil {
		return nil, err
	}
	return h, nil
}

// Factory returns a constructor for histograms sharing one layout.
// The layout is validated once, so the returned function cannot fail.
func Factory(nBins int, sketchAccuracy float64) (func() *Histogram, error) {
	if _, err := New(nBins, sketchAccuracy); err != nil {
		return nil, err
	}
	return func() *Histogram {
		h, _ := New(nBins, sketchAccuracy)
		return h
	}, nil
}

func (h *Histogram) resetSketches() error {
	for side := range h.sketches {
		h.sketches[side] = nil
		if h.accuracy == 0 {
			continue
		}
		sketch, err := ddsketch.NewDefaultDDSketch(h.accuracy)
		if err != nil {
			return fmt.Errorf("create sketch: %w", err)
		}
		h.sketches[side] = sketch
	}
	return nil
}

// binIndex maps a value to its bin: floor(value) clamped to [0, nBins-1].
func (h *Histogram) binIndex(value float64) int {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value >= float64(h.nBins) {
		return h.nBins - 1
	}
	return int(math.Floor(value))
}

// Fill adds value to the given side. Values are never rejected; samples
// with an unknown side are ignored.
func (h *Histogram) Fill(side types.Side, value float64) {
	if !side.Valid() {
		return
	}

	h.bins[side][h.binIndex(value)]++
	h.entries[side]++

	if sketch := h.sketches[side]; sketch != nil && !math.IsNaN(value) && !math.IsInf(value, 0) {
		// Values beyond the sketch's indexable range only miss the median.
		_ = sketch.Add(value)
	}
}

// Merge adds the contents of other into h. Merge is commutative and
// associative over bin contents and entry counts. Merging an empty
// histogram is a no-op.
func (h *Histogram) Merge(other *Histogram) error {
	if other == nil {
		return nil
	}
	if other.nBins != h.nBins || other.accuracy != h.accuracy {
		return fmt.Errorf("merge %d bins into %d bins: %w", other.nBins, h.nBins, ErrIncompatible)
	}

	// Sketches first: a mapping mismatch must leave h untouched.
	for side := range h.sketches {
		if h.sketches[side] == nil || other.sketches[side] == nil {
			continue
		}
		if err := h.sketches[side].MergeWith(other.sketches[side]); err != nil {
			return fmt.Errorf("merge sketch side %s: %w", types.Side(side), err)
		}
	}

	for side := range h.bins {
		dst, src := h.bins[side], other.bins[side]
		for i := range dst {
			dst[i] += src[i]
		}
		h.entries[side] += other.entries[side]
	}

	return nil
}

// Statistics returns the summary of one side. A side without entries
// yields the undefined sentinel.
func (h *Histogram) Statistics(side types.Side) types.Statistics {
	if !side.Valid() {
		return types.UndefinedStatistics()
	}

	bins := h.bins[side]

	var total float64
	var weighted float64
	for i, c := range bins {
		total += float64(c)
		weighted += float64(i) * float64(c)
	}

	if total == 0 {
		return types.UndefinedStatistics()
	}

	mean := weighted / total

	// Second pass on deviations avoids cancellation in E[x^2] - E[x]^2.
	var sq float64
	for i, c := range bins {
		if c == 0 {
			continue
		}
		d := float64(i) - mean
		sq += d * d * float64(c)
	}

	return types.Statistics{
		Entries:  h.entries[side],
		Centroid: mean,
		StdDev:   math.Sqrt(sq / total),
		Median:   h.median(side, total),
		Defined:  true,
	}
}

// median prefers the sketch of raw values and falls back to the bin
// index holding the middle entry.
func (h *Histogram) median(side types.Side, total float64) float64 {
	if sketch := h.sketches[side]; sketch != nil && !sketch.IsEmpty() {
		if v, err := sketch.GetValueAtQuantile(0.5); err == nil {
			return v
		}
	}

	half := total / 2
	var cum float64
	for i, c := range h.bins[side] {
		cum += float64(c)
		if cum >= half {
			return float64(i)
		}
	}
	return float64(h.nBins - 1)
}

// Entries returns the entry count of one side.
func (h *Histogram) Entries(side types.Side) uint64 {
	if !side.Valid() {
		return 0
	}
	return h.entries[side]
}

// IsEmpty returns true if neither side has entries.
func (h *Histogram) IsEmpty() bool {
	return h.entries[types.SideA] == 0 && h.entries[types.SideC] == 0
}

// NBins returns the number of bins per side.
func (h *Histogram) NBins() int {
	return h.nBins
}

// Bins returns a copy of the bin contents of one side.
func (h *Histogram) Bins(side types.Side) []uint64 {
	if !side.Valid() {
		return nil
	}
	out := make([]uint64, h.nBins)
	copy(out, h.bins[side])
	return out
}

// FillBin adds count entries directly into a bin, as when restoring a
// histogram from its bin contents.
func (h *Histogram) FillBin(side types.Side, bin int, count uint64) error {
	if !side.Valid() {
		return fmt.Errorf("fill bin: unknown side %s", side)
	}
	if bin < 0 || bin >= h.nBins {
		return fmt.Errorf("fill bin: index %d out of range [0, %d)", bin, h.nBins)
	}
	h.bins[side][bin] += count
	h.entries[side] += count
	return nil
}

// Equal reports whether h and other have identical bin contents and
// entry counts. Sketch state is not compared.
func (h *Histogram) Equal(other *Histogram) bool {
	if other == nil || h.nBins != other.nBins {
		return false
	}
	for side := range h.bins {
		if h.entries[side] != other.entries[side] {
			return false
		}
		for i := range h.bins[side] {
			if h.bins[side][i] != other.bins[side][i] {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy of h.
func (h *Histogram) Clone() *Histogram {
	c := &Histogram{
		nBins:    h.nBins,
		accuracy: h.accuracy,
		entries:  h.entries,
	}
	for side := range h.bins {
		c.bins[side] = make([]uint64, h.nBins)
		copy(c.bins[side], h.bins[side])
		if h.sketches[side] != nil {
			c.sketches[side] = h.sketches[side].Copy()
		}
	}
	return c
}

// Reset clears all bins, counters and sketches.
func (h *Histogram) Reset() {
	for side := range h.bins {
		clear(h.bins[side])
		h.entries[side] = 0
	}
	// The layout was validated at construction.
	_ = h.resetSketches()
}
