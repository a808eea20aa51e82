package types

import (
	"fmt"
	"math"
)

// Statistics holds the summary of one histogram side.
// Centroid, StdDev and Median are only meaningful when Defined is true;
// a side without entries is reported as undefined rather than as zero.
type Statistics struct {
	Entries  uint64
	Centroid float64 // Entry-weighted mean bin index
	StdDev   float64 // Entry-weighted standard deviation of bin index
	Median   float64 // Sketch median of the raw values
	Defined  bool
}

// UndefinedStatistics returns the sentinel for a side without entries.
func UndefinedStatistics() Statistics {
	return Statistics{
		Centroid: math.NaN(),
		StdDev:   math.NaN(),
		Median:   math.NaN(),
	}
}

// IsDefined returns true if the statistics carry numeric values.
func (s Statistics) IsDefined() bool {
	return s.Defined
}

// String returns a compact representation for logging.
func (s Statistics) String() string {
	if !s.Defined {
		return "undefined"
	}
	return fmt.Sprintf("entries=%d centroid=%.3f stddev=%.3f median=%.3f",
		s.Entries, s.Centroid, s.StdDev, s.Median)
}
