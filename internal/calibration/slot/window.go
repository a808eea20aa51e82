package slot

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/cut"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Options configures a Window.
type Options struct {
	// SlotLength is the number of time frames per slot.
	SlotLength int64

	// MaxDelaySlots is the number of slots of reordering tolerated before
	// an open slot is force-finalized.
	MaxDelaySlots int64

	// MinEntriesPerSide is the advisory sufficiency threshold.
	MinEntriesPerSide uint64
}

// DefaultOptions returns default window options.
func DefaultOptions() Options {
	return Options{
		SlotLength:        config.DefaultSlotLength,
		MaxDelaySlots:     config.DefaultMaxDelaySlots,
		MinEntriesPerSide: config.DefaultMinEntriesPerSide,
	}
}

// Validate checks the window options.
func (o Options) Validate() error {
	var errs []error

	if o.SlotLength <= 0 {
		errs = append(errs, errors.NewInvalidValue("slot.length", o.SlotLength, "must be positive"))
	}
	if o.MaxDelaySlots < 0 {
		errs = append(errs, errors.NewInvalidValue("slot.max_delay", o.MaxDelaySlots, "must be non-negative"))
	} else if o.SlotLength > 0 && o.MaxDelaySlots > math.MaxInt64/o.SlotLength {
		errs = append(errs, errors.NewInvalidValue("slot.max_delay", o.MaxDelaySlots, "delay in time frames overflows int64"))
	}

	return errors.Join(errs...)
}

// Stats holds window statistics.
type Stats struct {
	SamplesReceived int64
	SamplesAccepted int64
	SamplesRejected int64 // Failed the cut
	SamplesInvalid  int64 // Unknown side or slot end beyond int64
	SamplesStale    int64 // Behind the newest finalized slot
	SlotsCreated    int64
	SlotsFinalized  int64
	ActiveSlots     int64
}

func (s *Stats) addSamples(o Stats) {
	s.SamplesReceived += o.SamplesReceived
	s.SamplesAccepted += o.SamplesAccepted
	s.SamplesRejected += o.SamplesRejected
	s.SamplesInvalid += o.SamplesInvalid
	s.SamplesStale += o.SamplesStale
}

// Window routes samples into time slots and decides finalization.
// It is driven by a single goroutine; see the shard package for
// concurrent filling through partial windows.
type Window[C Container[C]] struct {
	opts         Options
	acceptor     cut.Acceptor
	newContainer func() C

	// Open slots ordered by start
	slots []*Slot[C]

	// End of the newest finalized slot; earlier samples are stale
	watermark    int64
	hasWatermark bool

	stats Stats
	log   *slog.Logger
}

// NewWindow creates an empty window. newContainer is called once per
// created slot.
func NewWindow[C Container[C]](opts Options, acceptor cut.Acceptor, newContainer func() C) (*Window[C], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if acceptor == nil {
		acceptor = cut.Disabled()
	}
	if newContainer == nil {
		return nil, errors.NewMissingField("slot container factory")
	}

	return &Window[C]{
		opts:         opts,
		acceptor:     acceptor,
		newContainer: newContainer,
		log:          logging.Component("window"),
	}, nil
}

// NewPartial returns an empty window with the same configuration and
// stale watermark, for filling a disjoint subset of a batch.
func (w *Window[C]) NewPartial() *Window[C] {
	return &Window[C]{
		opts:         w.opts,
		acceptor:     w.acceptor,
		newContainer: w.newContainer,
		watermark:    w.watermark,
		hasWatermark: w.hasWatermark,
		log:          w.log,
	}
}

// Process ingests one batch and returns the slots finalized by it, oldest
// first. Aged slots are evicted both before and after the batch is routed,
// so a slot that has aged out relative to currentTime is finalized before
// any slot newer than it is created.
func (w *Window[C]) Process(currentTime int64, samples []types.Sample) []*Slot[C] {
	finalized := w.Evict(currentTime)

	w.Fill(samples)

	return append(finalized, w.Evict(currentTime)...)
}

// Fill routes samples into their slots without evaluating eviction.
func (w *Window[C]) Fill(samples []types.Sample) {
	for i := range samples {
		w.ingest(&samples[i])
	}
}

func (w *Window[C]) ingest(s *types.Sample) {
	w.stats.SamplesReceived++

	if !s.Side.Valid() || !w.representable(s.Timestamp) {
		w.stats.SamplesInvalid++
		return
	}

	if !w.acceptor.Accepts(*s) {
		w.stats.SamplesRejected++
		return
	}

	if w.isStale(s.Timestamp) {
		w.stats.SamplesStale++
		w.log.Debug("dropping stale sample",
			"timestamp", s.Timestamp,
			"watermark", w.watermark)
		return
	}

	w.slotFor(s.Timestamp).Fill(s.Side, s.Value)
	w.stats.SamplesAccepted++
}

func (w *Window[C]) isStale(ts int64) bool {
	return w.hasWatermark && ts < w.watermark
}

// slotFor returns the open slot covering ts, creating it if needed.
func (w *Window[C]) slotFor(ts int64) *Slot[C] {
	idx := sort.Search(len(w.slots), func(i int) bool {
		return w.slots[i].end > ts
	})

	if idx < len(w.slots) && w.slots[idx].Covers(ts) {
		return w.slots[idx]
	}

	start, end := w.calculateSlot(ts)
	s := newSlot(start, end, w.newContainer())
	w.insertAt(idx, s)

	return s
}

func (w *Window[C]) insertAt(idx int, s *Slot[C]) {
	w.slots = append(w.slots, nil)
	copy(w.slots[idx+1:], w.slots[idx:])
	w.slots[idx] = s
	w.stats.SlotsCreated++

	w.log.Debug("slot created", "start", s.start, "end", s.end, "active", len(w.slots))
}

// calculateSlot returns the aligned slot bounds for a representable
// timestamp.
func (w *Window[C]) calculateSlot(ts int64) (start, end int64) {
	start, _ = w.slotStart(ts)
	return start, start + w.opts.SlotLength
}

// slotStart returns the floor-aligned start of the slot holding ts. ok is
// false when the slot bounds do not fit in an int64.
func (w *Window[C]) slotStart(ts int64) (start int64, ok bool) {
	length := w.opts.SlotLength
	start = ts / length * length
	if ts < start {
		if start < math.MinInt64+length {
			return 0, false
		}
		start -= length
	}
	return start, start <= math.MaxInt64-length
}

func (w *Window[C]) representable(ts int64) bool {
	_, ok := w.slotStart(ts)
	return ok
}

// Evict finalizes every open slot that has aged out relative to
// currentTime, i.e. currentTime - end >= MaxDelaySlots * SlotLength.
// Age-based eviction is unconditional: sufficiency does not gate it.
func (w *Window[C]) Evict(currentTime int64) []*Slot[C] {
	maxDelay := w.opts.MaxDelaySlots * w.opts.SlotLength

	// Nothing can be old enough this close to the bottom of the range.
	if currentTime < math.MinInt64+maxDelay {
		return nil
	}
	cutoff := currentTime - maxDelay

	// Ends are ordered, so eligible slots form a prefix.
	n := 0
	for n < len(w.slots) && w.slots[n].end <= cutoff {
		n++
	}

	return w.finalizePrefix(n)
}

// FlushAll finalizes every remaining open slot in start order,
// irrespective of age. The window stays usable; later samples behind the
// last flushed slot are stale.
func (w *Window[C]) FlushAll() []*Slot[C] {
	return w.finalizePrefix(len(w.slots))
}

func (w *Window[C]) finalizePrefix(n int) []*Slot[C] {
	if n == 0 {
		return nil
	}

	finalized := make([]*Slot[C], n)
	copy(finalized, w.slots[:n])

	for _, s := range finalized {
		s.state = StateFinalized
	}

	w.watermark = finalized[n-1].end
	w.hasWatermark = true
	w.stats.SlotsFinalized += int64(n)

	remaining := copy(w.slots, w.slots[n:])
	clear(w.slots[remaining:])
	w.slots = w.slots[:remaining]

	return finalized
}

// Absorb merges the open slots of a partial window into w. Slots covering
// the same range are combined through the container's Merge; slots behind
// w's watermark are dropped as stale. The partial window's sample counters
// are added to w's statistics, and the partial window is left empty.
func (w *Window[C]) Absorb(partial *Window[C]) error {
	if partial == nil || partial == w {
		return nil
	}
	if partial.opts.SlotLength != w.opts.SlotLength {
		return fmt.Errorf("absorb window with slot length %d into %d: %w",
			partial.opts.SlotLength, w.opts.SlotLength, errors.ErrInvalidConfig)
	}

	w.stats.addSamples(partial.stats)

	for _, src := range partial.slots {
		if w.isStale(src.start) {
			dropped := int64(src.Entries())
			w.stats.SamplesStale += dropped
			w.stats.SamplesAccepted -= dropped
			w.log.Debug("dropping stale partial slot",
				"start", src.start,
				"entries", dropped,
				"watermark", w.watermark)
			continue
		}

		dst := w.slotFor(src.start)
		if err := src.MergeInto(dst); err != nil {
			return fmt.Errorf("absorb slot %s: %w", src, err)
		}
	}

	clear(partial.slots)
	partial.slots = partial.slots[:0]
	partial.stats = Stats{}

	return nil
}

// HasEnoughData reports whether both sides of s reached the advisory
// threshold. It never gates finalization.
func (w *Window[C]) HasEnoughData(s *Slot[C]) bool {
	c := s.Container()
	return c.Entries(types.SideA) >= w.opts.MinEntriesPerSide &&
		c.Entries(types.SideC) >= w.opts.MinEntriesPerSide
}

// Slots returns a snapshot of the open slots in start order.
func (w *Window[C]) Slots() []*Slot[C] {
	out := make([]*Slot[C], len(w.slots))
	copy(out, w.slots)
	return out
}

// ActiveCount returns the number of open slots.
func (w *Window[C]) ActiveCount() int {
	return len(w.slots)
}

// Watermark returns the end of the newest finalized slot, and false if
// nothing has been finalized yet.
func (w *Window[C]) Watermark() (int64, bool) {
	return w.watermark, w.hasWatermark
}

// Options returns the window configuration.
func (w *Window[C]) Options() Options {
	return w.opts
}

// Stats returns current statistics.
func (w *Window[C]) Stats() Stats {
	stats := w.stats
	stats.ActiveSlots = int64(len(w.slots))
	return stats
}
