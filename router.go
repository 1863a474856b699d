package wgcore

// RRMode selects the arithmetic used to turn a monotonically increasing
// counter into a slice index, per spec.md §4.6's "three arithmetic modes
// are permitted... all yield semantically equivalent round-robin".
type RRMode uint8

const (
	// RRModulo uses the plain % operator; works for any slice length.
	RRModulo RRMode = iota
	// RRBranchy increments then wraps with an explicit comparison,
	// avoiding a division instruction at the cost of a branch.
	RRBranchy
	// RRPowerOfTwoMask uses a bitmask when the slice length is a power of
	// two; for any other length rrNext falls back to the RRBranchy
	// arithmetic.
	RRPowerOfTwoMask
)

// DefaultRRMode is used when a caller doesn't care which arithmetic mode
// the router picks.
var DefaultRRMode = RRModulo

func rrNext(counter *uint32, n int, mode RRMode) int {
	if n <= 0 {
		return 0
	}
	cur := *counter
	*counter = cur + 1
	switch mode {
	case RRPowerOfTwoMask:
		if n&(n-1) == 0 {
			return int(cur) & (n - 1)
		}
		fallthrough
	case RRBranchy:
		idx := int(cur)
		if idx >= n {
			idx = 0
		}
		*counter = uint32(idx + 1)
		return idx
	default:
		return int(cur) % n
	}
}

// routeFreeDelayed implements the C8 router for a free (non-AOD) delayed
// task produced on a worker whose group cannot host timers itself
// (spec.md §4.6). It picks a target group via RRLastIndex, a target worker
// within that group via RRLastIndex2 (skipping the nil sentinel at index
// 0), and pushes the task into that worker's delayedFree MPSC inbox.
func routeFreeDelayed(w *Worker, t *Task) {
	groups := w.ServerTLS.TimerGroups
	if len(groups) == 0 {
		// No timer-capable group configured; drop would violate "no loss"
		// for the general MPSC contract but this is a configuration error
		// the validation pass in spec.md §6 is supposed to have caught.
		return
	}
	g := groups[rrNext(&w.ServerTLS.RRLastIndex, len(groups), DefaultRRMode)]
	target := g.pickWorker(&w.ServerTLS.RRLastIndex2)
	target.delayedFree.Push(t)
}

// routeAODDelayed implements the C8 router for an AOD-delayed task
// produced on a worker whose group lacks AOD support, per spec.md §4.6 and
// §4.3's delay-placement rule.
func routeAODDelayed(w *Worker, kind AODKind, t *aodTask) {
	groups := w.AODTLS.AODGroups
	if len(groups) == 0 {
		return
	}
	g := groups[rrNext(&w.AODTLS.RRLastIndex, len(groups), DefaultRRMode)]
	target := g.pickWorker(&w.AODTLS.RRLastIndex2)
	target.delayedInbox(kind).Push(t)
}
