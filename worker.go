package wgcore

import (
	"sync/atomic"
)

// Worker is one OS thread (one goroutine, pinned with runtime.LockOSThread
// when it owns an async-I/O port) described in spec.md §3/§4.5. It owns
// five MPSC inboxes (general tasks, routed delayed free tasks, and one
// routed delayed inbox per AOD variant) used as targets for work produced
// on threads ineligible to hold it directly, plus cached pointers to its
// own TLS contexts.
type Worker struct {
	Group *Group
	Index int // monotonic index within the group; 0 is the nil sentinel slot

	generalTasks     *MPSCQueue[Task, *Task]
	delayedFree      *MPSCQueue[Task, *Task]
	delayedAODShared *MPSCQueue[aodTask, *aodTask]
	delayedAODStatic *MPSCQueue[aodTask, *aodTask]
	delayedAODCustom *MPSCQueue[aodTask, *aodTask]

	AODTLS    *AODTLSContext
	ServerTLS *ServerTLSContext

	Metrics *WorkerMetrics

	running   atomic.Bool
	startTick uint64
	tickCount atomic.Uint64

	testHooks *workerTestHooks
}

// workerTestHooks provides injection points used only by deterministic
// race tests (beforeTick/afterTick hooks on the tick loop).
type workerTestHooks struct {
	beforeTick func()
	afterTick  func()
}

func newWorker(g *Group, index int) *Worker {
	return &Worker{
		Group:            g,
		Index:            index,
		generalTasks:     NewMPSCQueue[Task, *Task](),
		delayedFree:      NewMPSCQueue[Task, *Task](),
		delayedAODShared: NewMPSCQueue[aodTask, *aodTask](),
		delayedAODStatic: NewMPSCQueue[aodTask, *aodTask](),
		delayedAODCustom: NewMPSCQueue[aodTask, *aodTask](),
		Metrics:          NewWorkerMetrics(),
	}
}

// nowTick returns the current monotonic due-time origin used for DelayTask
// and DeferTaskAgain arithmetic.
func (w *Worker) nowTick() uint64 { return nowNanos() }

func (w *Worker) delayedInbox(kind AODKind) *MPSCQueue[aodTask, *aodTask] {
	switch kind {
	case AODShared:
		return w.delayedAODShared
	case AODStatic:
		return w.delayedAODStatic
	default:
		return w.delayedAODCustom
	}
}

// IsRunning reports whether the worker's tick loop is currently active.
func (w *Worker) IsRunning() bool { return w.running.Load() }

// TickCount returns the number of completed tick-loop iterations, useful
// for tests asserting "observed over N cycles" style properties (spec.md
// §8 scenario 6).
func (w *Worker) TickCount() uint64 { return w.tickCount.Load() }

// DeferTask pushes t onto w's generalTasks MPSC inbox, implementing the
// DeferTask entry point from spec.md §6. The push is safe from any
// goroutine, including ones that are not wgcore workers. w runs t in step B
// of its tick loop, which only groups with EnableTaskQueue perform;
// DeferTask does not route t to another worker or group.
func (w *Worker) DeferTask(t *Task) {
	w.generalTasks.Push(t)
}

// DeferTaskAgain re-enqueues t to fire after delayMillis more milliseconds.
// Must only be called from within a running timer task's own handler
// (spec.md §6); it stages into the *pending* FIFO, not the heap directly,
// so the task cannot re-fire within the tick that is currently draining
// the heap (spec.md §4.4, §8's at-most-one-fire-per-cycle property).
func (w *Worker) DeferTaskAgain(delayMillis uint64, t *Task) {
	t.addRef()
	t.Due = w.nowTick() + millisToNanos(delayMillis)
	if w.Group.Tag.HandlesTimerTasks {
		w.ServerTLS.pending.Push(t)
		return
	}
	routeFreeDelayed(w, t)
}
