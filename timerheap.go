package wgcore

import "container/heap"

// dued is implemented by any node schedulable in a TimerHeap.
type dued[T any] interface {
	*T
	dueAt() uint64
}

// TimerHeap is the per-thread min-heap keyed by absolute due-time described
// in spec.md §4.4. One instance backs the free-task heap in a
// ServerTLSContext and one instance per AOD variant backs AODTLSContext.
//
// Implemented as a plain container/heap.Interface over a slice of entries.
// See DESIGN.md for the standard-library-vs-third-party discussion.
type TimerHeap[T any, PT dued[T]] struct {
	items []*T
}

func NewTimerHeap[T any, PT dued[T]]() *TimerHeap[T, PT] {
	h := &TimerHeap[T, PT]{}
	heap.Init((*timerHeapAdapter[T, PT])(h))
	return h
}

// Push inserts a node keyed by its own dueAt(). Must be called only from
// the owning worker goroutine.
func (h *TimerHeap[T, PT]) Push(node *T) {
	heap.Push((*timerHeapAdapter[T, PT])(h), node)
}

// Peek returns the earliest-due node without removing it, or nil if empty.
func (h *TimerHeap[T, PT]) Peek() *T {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Pop removes and returns the earliest-due node, or nil if empty.
func (h *TimerHeap[T, PT]) Pop() *T {
	if len(h.items) == 0 {
		return nil
	}
	return heap.Pop((*timerHeapAdapter[T, PT])(h)).(*T)
}

// Len reports the number of pending entries.
func (h *TimerHeap[T, PT]) Len() int { return len(h.items) }

// DrainExpired pops and yields every entry whose due-time is <= now, in
// non-decreasing due-time order (spec.md §5's timer-firing-order guarantee
// and §8's timer-monotonicity property), stopping at the first entry still
// in the future.
func (h *TimerHeap[T, PT]) DrainExpired(now uint64, yield func(*T)) {
	for {
		top := h.Peek()
		if top == nil || PT(top).dueAt() > now {
			return
		}
		yield(h.Pop())
	}
}

// timerHeapAdapter implements heap.Interface over TimerHeap's slice.
type timerHeapAdapter[T any, PT dued[T]] TimerHeap[T, PT]

func (a *timerHeapAdapter[T, PT]) Len() int { return len(a.items) }
func (a *timerHeapAdapter[T, PT]) Less(i, j int) bool {
	return PT(a.items[i]).dueAt() < PT(a.items[j]).dueAt()
}
func (a *timerHeapAdapter[T, PT]) Swap(i, j int) { a.items[i], a.items[j] = a.items[j], a.items[i] }
func (a *timerHeapAdapter[T, PT]) Push(x any)    { a.items = append(a.items, x.(*T)) }
func (a *timerHeapAdapter[T, PT]) Pop() any {
	old := a.items
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	a.items = old[:n-1]
	return x
}
