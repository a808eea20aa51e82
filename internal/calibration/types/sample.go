package types

import "fmt"

// Side is one of the two independent partitions every sample belongs to.
type Side uint8

const (
	// SideA is the A side of the detector.
	SideA Side = iota
	// SideC is the C side of the detector.
	SideC
)

// NumSides is the number of histogram partitions.
const NumSides = 2

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideC:
		return "C"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid returns true if s is SideA or SideC.
func (s Side) Valid() bool {
	return s < NumSides
}

// ParseSide parses "A" or "C" (case-insensitive).
func ParseSide(s string) (Side, error) {
	switch s {
	case "A", "a":
		return SideA, nil
	case "C", "c":
		return SideC, nil
	default:
		return SideA, fmt.Errorf("unknown side: %s", s)
	}
}

// Sides returns both sides in order.
func Sides() []Side {
	return []Side{SideA, SideC}
}

// Sample is a single measurement produced by the upstream decoder.
// It is not retained beyond the call that ingests it.
type Sample struct {
	Timestamp    int64   // Time-frame index
	Momentum     float64 // Track momentum
	ClusterCount int32   // Number of clusters attached to the track
	Value        float64 // Measured quantity filled into the histogram
	Side         Side
}

// Batch is the unit of stream progress handed to the engine.
type Batch struct {
	CurrentTime int64
	Samples     []Sample
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.Samples)
}
