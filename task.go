package wgcore

import "sync/atomic"

// Task is the free (not AOD-bound) unit of work flowing through wgcore. It
// is intrusively linked for MPSC queueing (see mpsc.go) and trivially
// movable: the zero value is a safe "no task" sentinel node body.
//
// Design Notes §9 ("type-erased small-functor task body"): the C++ source
// packs a function pointer plus inline functor storage directly after the
// task header. A Go closure already captures its free variables on the
// heap, which satisfies the same contract (the stored functor does not
// outlive the task) without the pointer-arithmetic recovery trick, so wgcore
// keeps the representation simple: a single fn field.
type Task struct {
	next atomic.Pointer[Task] // intrusive MPSC link, see mpsc.go

	// Due is the absolute monotonic tick at which this task becomes
	// eligible to fire. Zero means "immediate" (a general task, not a
	// timer task).
	Due uint64

	fn   func(ctx TaskContext)
	refs atomic.Int32
}

// TaskContext is passed to a Task's functor at dispatch time. Bytes carries
// the byte count of an async-I/O completion (0 for cancelled/non-I/O
// tasks, per spec.md §5's "every task must tolerate bytes=0" rule).
type TaskContext struct {
	Worker *Worker
	Bytes  int
	Err    error
}

// MakeTask creates a free task with one strong reference, wrapping fn as
// its dispatch stub.
func MakeTask(fn func(ctx TaskContext)) *Task {
	t := taskPool.Get().(*Task)
	t.next.Store(nil)
	t.Due = 0
	t.fn = fn
	t.refs.Store(1)
	return t
}

// addRef adds a strong reference, used when a task is re-enqueued (e.g.
// DeferTaskAgain, or the accept-loop's "repost the same task" hot path).
func (t *Task) addRef() { t.refs.Add(1) }

// release drops a strong reference; once it reaches zero the task is
// returned to the pool. Dispatching a task and then releasing it is how the
// tick loop and AOD Flush() retire tasks (spec.md §3, §4.3).
func (t *Task) release() {
	if t.refs.Add(-1) == 0 {
		t.fn = nil
		t.next.Store(nil)
		taskPool.Put(t)
	}
}

// dispatch invokes the stored functor. The caller is responsible for
// releasing the task afterward.
func (t *Task) dispatch(ctx TaskContext) {
	if t.fn != nil {
		t.fn(ctx)
	}
}

// linkedNext satisfies the linked[Task] constraint used by MPSCQueue.
func (t *Task) linkedNext() *atomic.Pointer[Task] { return &t.next }

// dueAt satisfies the dued[Task] constraint used by TimerHeap.
func (t *Task) dueAt() uint64 { return t.Due }
