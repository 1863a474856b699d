package wgcore

// AODTLSContext is the per-worker-thread cache described in spec.md §3:
// three delayed-task heaps (one per AOD variant), three pending-object
// FIFOs used for re-entrant Dispatch handling, three in-progress flags, two
// round-robin counters for the cross-group router, the cached vector of
// AOD-capable groups, and a flag recording whether this worker's own group
// can host AOD timers directly.
type AODTLSContext struct {
	SharedDelayed *TimerHeap[aodTask, *aodTask]
	StaticDelayed *TimerHeap[aodTask, *aodTask]
	CustomDelayed *TimerHeap[aodTask, *aodTask]

	pendingShared *PendingQueue[AODObject]
	pendingStatic *PendingQueue[AODObject]
	pendingCustom *PendingQueue[AODObject]

	sharedInProgress bool
	staticInProgress bool
	customInProgress bool

	RRLastIndex  uint32
	RRLastIndex2 uint32

	AODGroups []*Group

	// ScheduleAODDelayedTasks is true iff the owning worker's group cannot
	// itself host AOD timers, i.e. DelayTask must route via the C8 router
	// instead of pushing straight into the heaps above.
	ScheduleAODDelayedTasks bool
}

// NewAODTLSContext constructs a context ready for use by exactly one
// worker goroutine.
func NewAODTLSContext(aodGroups []*Group, scheduleDelayed bool) *AODTLSContext {
	return &AODTLSContext{
		SharedDelayed:           NewTimerHeap[aodTask, *aodTask](),
		StaticDelayed:           NewTimerHeap[aodTask, *aodTask](),
		CustomDelayed:           NewTimerHeap[aodTask, *aodTask](),
		pendingShared:           NewPendingQueue[AODObject](8),
		pendingStatic:           NewPendingQueue[AODObject](8),
		pendingCustom:           NewPendingQueue[AODObject](8),
		AODGroups:               aodGroups,
		ScheduleAODDelayedTasks: scheduleDelayed,
	}
}

func (c *AODTLSContext) heapFor(k AODKind) *TimerHeap[aodTask, *aodTask] {
	switch k {
	case AODShared:
		return c.SharedDelayed
	case AODStatic:
		return c.StaticDelayed
	default:
		return c.CustomDelayed
	}
}

func (c *AODTLSContext) pendingFor(k AODKind) *PendingQueue[AODObject] {
	switch k {
	case AODShared:
		return c.pendingShared
	case AODStatic:
		return c.pendingStatic
	default:
		return c.pendingCustom
	}
}

func (c *AODTLSContext) inProgress(k AODKind) *bool {
	switch k {
	case AODShared:
		return &c.sharedInProgress
	case AODStatic:
		return &c.staticInProgress
	default:
		return &c.customInProgress
	}
}

// ServerTLSContext is the per-worker-thread cache for free (non-AOD)
// delayed tasks: a single due-time heap, a pending FIFO for tasks deferred
// from within their own handler (DeferTaskAgain), a snapshot of the
// server's flag aggregate, the cached vector of timer-capable groups, and
// the router's round-robin counters.
type ServerTLSContext struct {
	Delayed *TimerHeap[Task, *Task]
	pending *PendingQueue[Task]

	Flags ServerFlags

	TimerGroups []*Group

	RRLastIndex  uint32
	RRLastIndex2 uint32
}

// NewServerTLSContext constructs a context ready for use by exactly one
// worker goroutine.
func NewServerTLSContext(flags ServerFlags, timerGroups []*Group) *ServerTLSContext {
	return &ServerTLSContext{
		Delayed:     NewTimerHeap[Task, *Task](),
		pending:     NewPendingQueue[Task](8),
		Flags:       flags,
		TimerGroups: timerGroups,
	}
}

// ServerFlags is the derived aggregate over every configured GroupTag,
// described in spec.md §3 as "derived flag aggregates" on the server
// instance. AllGroupsAreActive backs the bAllGroupsAreActive compile-time
// parameter from spec.md §4.5.
type ServerFlags struct {
	AllGroupsAreActive        bool
	AllGroupsHandleTimers     bool
	AllGroupsSupportAOD       bool
	AssumeAllGroupsHandleAOD  bool
}
