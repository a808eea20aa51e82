// Package slot implements time-sliced accumulation over a stream of
// time-frame indexed samples.
//
// A Window holds an ordered set of non-overlapping open slots, each binding
// a [start, end) time-frame range to one container. Samples are routed to
// the slot covering their timestamp; slots are created on demand, aligned to
// multiples of the slot length. A slot is finalized exactly once, either when
// it ages out of the permitted reordering window or at end of stream, and is
// removed from the window at that point. Samples that land behind the newest
// finalized slot are dropped as stale.
//
// The window is generic over its container so that any accumulator offering
// fill, merge and statistics can be sliced in time.
package slot
