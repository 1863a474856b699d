package wgcore

import (
	"runtime"
	"sync/atomic"
	"time"
)

// AODObject enforces the at-most-one-concurrent-executor guarantee of
// spec.md §4.3 for some logical game-object instance. Construct one with
// NewSharedAODObject, NewStaticAODObject, or NewCustomAODObject depending
// on the desired ownership model.
type AODObject struct {
	kind      AODKind
	queue     *MPSCQueue[aodTask, *aodTask]
	remaining atomic.Int64

	// owner, retain and release implement the variant-specific
	// back-reference described in spec.md §3. owner is populated only for
	// AODShared (a plain strong pointer is enough under GC); retain/release
	// are populated only for AODCustom.
	owner   any
	retain  func()
	release func()

	// Dispatches tracks the per-object rate of tasks run by flush, the AOD counterpart to
	// WorkerMetrics.Dispatches.
	Dispatches *TPSCounter
}

// NewSharedAODObject creates a Shared-kind AOD object. owner is held for
// the object's lifetime, extending owner's reachability exactly as long as
// this AODObject is reachable.
func NewSharedAODObject(owner any) *AODObject {
	return &AODObject{kind: AODShared, queue: NewMPSCQueue[aodTask, *aodTask](), owner: owner, Dispatches: NewTPSCounter(10*time.Second, time.Second)}
}

// NewStaticAODObject creates a Static-kind AOD object. The caller is
// responsible for guaranteeing the object outlives every task dispatched
// against it.
func NewStaticAODObject() *AODObject {
	return &AODObject{kind: AODStatic, queue: NewMPSCQueue[aodTask, *aodTask](), Dispatches: NewTPSCounter(10*time.Second, time.Second)}
}

// NewCustomAODObject creates a Custom-kind AOD object backed by a
// caller-supplied retain/release control block, invoked once each around
// every top-level Dispatch/Flush cycle (mirroring the intrusive refcount
// bump in spec.md §4.3's pseudocode: "acquire extra owner ref ... release
// ref on O").
func NewCustomAODObject(retain, release func()) *AODObject {
	return &AODObject{kind: AODCustom, queue: NewMPSCQueue[aodTask, *aodTask](), retain: retain, release: release, Dispatches: NewTPSCounter(10*time.Second, time.Second)}
}

// Kind reports which of the three AOD variants this object is.
func (o *AODObject) Kind() AODKind { return o.kind }

func (o *AODObject) acquireOwnerRef() {
	if o.retain != nil {
		o.retain()
	}
}

func (o *AODObject) releaseOwnerRef() {
	if o.release != nil {
		o.release()
	}
}

// Dispatch publishes a task for serialized execution against this object
// and implements the protocol from spec.md §4.3 exactly: the thread whose
// increment observes RemainingTasks==0 becomes the flushing consumer;
// every other caller has already had its contribution accounted for by
// that consumer's Flush loop and returns immediately without blocking.
//
// w is the calling worker; its AODTLSContext is used to detect and queue
// re-entrant dispatches (a task running inside a flush on this goroutine
// that publishes to another object of the same AOD kind). A task that
// publishes to the object it is running on only enqueues; the running
// flush picks that task up.
func (o *AODObject) Dispatch(w *Worker, fn func(ctx TaskContext)) bool {
	t := newAODTask(o, fn)
	return o.dispatchTask(w, t)
}

func (o *AODObject) dispatchTask(w *Worker, t *aodTask) bool {
	tls := w.AODTLS
	t.next.Store(nil)
	prev := o.remaining.Add(1) - 1 // RefPoint[0]
	o.queue.Push(t)                // RefPoint[1 or 2]
	if prev != 0 {
		return false // a consumer is already active for this object
	}

	o.acquireOwnerRef()

	inProgress := tls.inProgress(o.kind)
	if *inProgress {
		// Re-entrant: this goroutine is already the flushing consumer of
		// a different AOD object further up the call stack. Defer this
		// object to the pending FIFO rather than flushing it inline,
		// avoiding unbounded recursion (spec.md §8 scenario 5).
		tls.pendingFor(o.kind).Push(o)
		return true
	}

	*inProgress = true
	o.flush(w)
	pending := tls.pendingFor(o.kind)
	for {
		p := pending.Pop()
		if p == nil {
			break
		}
		p.flush(w)
		p.releaseOwnerRef()
	}
	*inProgress = false
	o.releaseOwnerRef()
	return true
}

// flush drains and dispatches tasks until RemainingTasks reaches zero,
// i.e. until this goroutine has accounted for every task any producer had
// contributed by the time it became the consumer (and any that arrived
// while it was draining).
func (o *AODObject) flush(w *Worker) {
	for {
		t := o.queue.Pop()
		if t == nil {
			// Transient empty: a producer's Push has incremented
			// RemainingTasks but not yet completed its prev->next store.
			// RemainingTasks > 0 guarantees forward progress.
			runtime.Gosched()
			continue
		}
		t.dispatch(TaskContext{Worker: w})
		o.Dispatches.Incr()
		left := o.remaining.Add(-1)
		t.release()
		if left == 0 {
			return
		}
	}
}

// DelayTask schedules fn to run against this object no earlier than
// afterTicks nanoseconds from now (the unit of Worker.nowTick). If the calling worker's group handles timers
// directly, the task is pushed straight into the worker's TLS heap for
// this object's AOD variant; otherwise it is handed to the cross-group
// router (C8), per spec.md §4.3's delay-placement rule.
func (o *AODObject) DelayTask(w *Worker, afterTicks uint64, fn func(ctx TaskContext)) {
	t := newAODTask(o, fn)
	t.Due = w.nowTick() + afterTicks

	tls := w.AODTLS
	if !tls.ScheduleAODDelayedTasks {
		tls.heapFor(o.kind).Push(t)
		return
	}
	routeAODDelayed(w, o.kind, t)
}

// fireDelayed is invoked by the tick loop once a delayed aodTask's due-time
// has elapsed; it feeds the task back through the normal Dispatch protocol.
func (o *AODObject) fireDelayed(w *Worker, t *aodTask) {
	o.dispatchTask(w, t)
}
