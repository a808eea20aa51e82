package slot

import (
	"fmt"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
)

// Container is the accumulator owned by a slot.
type Container[C any] interface {
	Fill(side types.Side, value float64)
	Merge(other C) error
	Statistics(side types.Side) types.Statistics
	Entries(side types.Side) uint64
}

// State is the lifecycle state of a slot.
type State int

const (
	// StateOpen slots accept fills.
	StateOpen State = iota
	// StateFinalized slots have left the window and accept nothing.
	StateFinalized
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Slot binds a time-frame range to a container.
type Slot[C Container[C]] struct {
	start     int64
	end       int64
	container C
	state     State
}

func newSlot[C Container[C]](start, end int64, container C) *Slot[C] {
	return &Slot[C]{
		start:     start,
		end:       end,
		container: container,
		state:     StateOpen,
	}
}

// Start returns the first time frame covered by the slot.
func (s *Slot[C]) Start() int64 {
	return s.start
}

// End returns the exclusive end of the slot.
func (s *Slot[C]) End() int64 {
	return s.end
}

// Length returns the number of time frames covered.
func (s *Slot[C]) Length() int64 {
	return s.end - s.start
}

// Covers returns true if ts falls into [start, end).
func (s *Slot[C]) Covers(ts int64) bool {
	return ts >= s.start && ts < s.end
}

// State returns the lifecycle state.
func (s *Slot[C]) State() State {
	return s.state
}

// IsOpen returns true if the slot still accepts fills.
func (s *Slot[C]) IsOpen() bool {
	return s.state == StateOpen
}

// Container returns the slot's accumulator.
func (s *Slot[C]) Container() C {
	return s.container
}

// Fill adds a value to the container. Finalized slots ignore fills.
func (s *Slot[C]) Fill(side types.Side, value float64) {
	if s.state != StateOpen {
		return
	}
	s.container.Fill(side, value)
}

// MergeInto adds this slot's contents into dst. Both slots must cover the
// same range and dst must still be open.
func (s *Slot[C]) MergeInto(dst *Slot[C]) error {
	if dst.start != s.start || dst.end != s.end {
		return fmt.Errorf("merge slot [%d, %d) into [%d, %d): ranges differ", s.start, s.end, dst.start, dst.end)
	}
	if dst.state != StateOpen {
		return fmt.Errorf("merge into slot [%d, %d): slot is %s", dst.start, dst.end, dst.state)
	}
	return dst.container.Merge(s.container)
}

// Statistics returns the container summary for one side.
func (s *Slot[C]) Statistics(side types.Side) types.Statistics {
	return s.container.Statistics(side)
}

// Entries returns the total entries over both sides.
func (s *Slot[C]) Entries() uint64 {
	return s.container.Entries(types.SideA) + s.container.Entries(types.SideC)
}

// String returns a compact representation for logging.
func (s *Slot[C]) String() string {
	return fmt.Sprintf("[%d, %d) %s", s.start, s.end, s.state)
}
