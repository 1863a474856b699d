package wgcore

import "time"

// monotonicEpoch anchors every worker's due-time arithmetic to the same
// origin, so that Task.Due/aodTask.Due values compare meaningfully across
// workers even though each worker computes its own "now" independently.
// A single reference point captured once, with elapsed time measured from
// it via the monotonic clock.
var monotonicEpoch = time.Now()

// nowNanos returns nanoseconds elapsed since monotonicEpoch. This is the
// "absolute monotonic tick count" spec.md §3 describes for Task.Due: a
// strictly increasing integer, compared with plain >, with no wall-clock
// adjustment hazards.
func nowNanos() uint64 {
	return uint64(time.Since(monotonicEpoch))
}

func millisToNanos(ms uint64) uint64 { return ms * uint64(time.Millisecond) }
