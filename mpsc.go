package wgcore

import (
	"runtime"
	"sync/atomic"
)

// linked is implemented by any node type usable with MPSCQueue: it must
// expose its own intrusive next-pointer slot.
type linked[T any] interface {
	*T
	linkedNext() *atomic.Pointer[T]
}

// MPSCQueue is the intrusive, lock-free, single-consumer multi-producer
// queue described in spec.md §4.1 (Vyukov-style). It never allocates and
// never loses or reorders a node relative to its own producer.
//
// Contract:
//   - Push is safe from any goroutine and never blocks.
//   - Pop must be called from at most one goroutine at a time.
//   - node.linkedNext() must be nil at the moment of Push.
type MPSCQueue[T any, PT linked[T]] struct {
	head   atomic.Pointer[T] // producer-visible head, swapped on every push
	tail   *T                // consumer-only
	stub   T                 // sentinel node, never surfaced to callers
	length atomic.Int64      // optional length counter (best-effort)
}

// NewMPSCQueue constructs an empty queue. Both head and tail start pointing
// at the stub, per the invariant in spec.md §3.
func NewMPSCQueue[T any, PT linked[T]]() *MPSCQueue[T, PT] {
	q := &MPSCQueue[T, PT]{}
	stubPtr := &q.stub
	q.head.Store(stubPtr)
	q.tail = stubPtr
	return q
}

// Push publishes node for the single consumer to pick up. Safe from any
// goroutine; never blocks.
func (q *MPSCQueue[T, PT]) Push(node *T) {
	PT(node).linkedNext().Store(nil)
	prev := q.head.Swap(node) // release
	PT(prev).linkedNext().Store(node)
	q.length.Add(1)
}

// Pop removes and returns the oldest node, or nil if the queue is
// transiently or actually empty. Must be called by a single consumer.
//
// The transient-empty case (a producer observed after its head-swap but
// before its prev->next store) is surfaced as a nil return; the tick loop
// naturally retries on its next iteration, per spec.md §4.1.
func (q *MPSCQueue[T, PT]) Pop() *T {
	tail := q.tail
	next := PT(tail).linkedNext().Load()

	if tail == &q.stub {
		if next == nil {
			return nil // empty
		}
		q.tail = next
		tail = next
		next = PT(next).linkedNext().Load()
	}

	if next != nil {
		q.tail = next
		q.length.Add(-1)
		return tail
	}

	head := q.head.Load()
	if tail != head {
		return nil // transient: producer mid-push, retry next tick
	}

	// Re-link the stub onto the end to preserve the never-both-nil
	// invariant, then re-check for a node that raced in behind it.
	q.Push(&q.stub)
	next = PT(tail).linkedNext().Load()
	if next != nil {
		q.tail = next
		q.length.Add(-1)
		return tail
	}
	return nil
}

// Len returns a best-effort length; callers must not rely on it for
// correctness, only for metrics/heuristics.
func (q *MPSCQueue[T, PT]) Len() int64 { return q.length.Load() }

// PopSpin is a small convenience for Flush-style consumers (spec.md
// §4.3) that must distinguish "transiently empty, retry" from "genuinely
// drained". It spins a bounded number of times with Gosched before giving
// the caller a definitive nil.
func (q *MPSCQueue[T, PT]) PopSpin(maxSpins int) *T {
	for i := 0; i < maxSpins; i++ {
		if n := q.Pop(); n != nil {
			return n
		}
		if q.head.Load() == q.tail {
			return nil
		}
		runtime.Gosched()
	}
	return nil
}
