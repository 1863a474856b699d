package wgcore

import (
	"runtime"
	"time"
)

// run is the single generalized tick loop selected at runtime by reading
// the worker's (immutable) GroupTag once per step, implementing spec.md
// §4.5/§4.6/§9's "Tick-variant selection" Design Note: rather than hand
// expanding ~256 compile-time specializations as the C++ source does, the
// flags are loaded once into locals at loop entry and the optimizer is
// trusted to fold away the dead branches, exactly as the Design Notes
// recommend.
func (w *Worker) run() {
	tag := w.Group.Tag
	srv := w.Group.Server

	if tag.EnableAsyncIO {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	w.initTLS()
	w.startTick = w.nowTick()
	logger().Debug().Str("group", tag.Name).Int("worker", w.Index).Msg("worker started")
	w.Group.onWorkerStarted(w)
	if srv != nil {
		srv.notifyWorkerStarted(w)
	}

	if srv != nil {
		srv.startupBarrier.Done()
		srv.startupBarrier.Wait()
	}

	w.running.Store(true)

	var tickInterval time.Duration
	if tag.IsActive && tag.TickRateHz > 0 {
		tickInterval = time.Second / time.Duration(tag.TickRateHz)
	}

	for w.Group.running.Load() {
		if w.testHooks != nil && w.testHooks.beforeTick != nil {
			w.testHooks.beforeTick()
		}

		w.tickStep(tag, tickInterval)

		w.tickCount.Add(1)
		if w.testHooks != nil && w.testHooks.afterTick != nil {
			w.testHooks.afterTick()
		}
	}

	w.running.Store(false)
	logger().Debug().Str("group", tag.Name).Int("worker", w.Index).Msg("worker stopped")
	if srv != nil {
		srv.notifyWorkerStopped(w)
	}
	w.Group.onWorkerStopped(w)

	if srv != nil {
		srv.shutdownBarrier.Done()
		srv.shutdownBarrier.Wait()
	}

	w.teardownTLS()
}

func (w *Worker) tickStep(tag GroupTag, tickInterval time.Duration) {
	// Step A: async-I/O drain.
	if tag.EnableAsyncIO && w.Group.Port != nil {
		timeout := time.Duration(0)
		if tag.IsActive {
			timeout = tickInterval
		}
		w.drainAsyncIO(timeout)
	}

	// Step B: general tasks, throttled to 32/tick per spec.md §4.5.
	if tag.EnableTaskQueue {
		w.Metrics.GeneralQueue.Update(int(w.generalTasks.Len()))
		w.drainGeneralTasks(32)
	}

	// Step C: timer tasks.
	if tag.HandlesTimerTasks {
		w.drainRoutedDelayed()
		w.fireDueTimers()
	}

	// Step D: AOD tasks.
	if tag.SupportsAOD {
		w.drainRoutedAOD()
		w.fireDueAOD()
	}

	// Step E: worker-service ticks.
	if tag.TickWorkerServices && w.Group.Server != nil {
		w.Group.Server.tickWorkerServices(w)
	}

	// Step F: TLS-sync (out of core scope; reserved slot only).
	if tag.SupportsTLSSync && w.Group.Server != nil {
		w.Group.Server.tlsSyncTick(w)
	}
	if tag.HasWorkerGroupSpecificTLSSync && w.Group.groupTLSSync != nil {
		w.Group.groupTLSSync(w)
	}

	// Step G: user tick handler.
	if tag.CallTickHandler && w.Group.OnWorkerTick != nil {
		w.Group.OnWorkerTick(w)
	}

	// Step H: sleep to next tick, unless async-I/O's own timeout already
	// paced this iteration.
	if !tag.EnableAsyncIO && tag.IsActive && tickInterval > 0 {
		time.Sleep(tickInterval)
	}
}

func (w *Worker) drainAsyncIO(timeout time.Duration) {
	var buf [64]Completion
	n := w.Group.Port.DequeueMany(buf[:], timeout)
	for i := 0; i < n; i++ {
		c := buf[i]
		if c.Request == nil {
			continue // pure EnqueueUser wakeup, no task attached
		}
		req := c.Request
		if c.Failure != IOFailureNone {
			logger().Debug().Str("request_id", req.ID).Int("worker", w.Index).Str("failure", ioFailureString(c.Failure)).Err(c.Err).Msg("async I/O completion failed")
		}
		if req.completion != nil {
			req.completion.dispatch(TaskContext{Worker: w, Bytes: c.Bytes, Err: c.Err})
			req.completion.release()
		}
	}
}

func (w *Worker) drainGeneralTasks(max int) {
	for i := 0; i < max; i++ {
		t := w.generalTasks.Pop()
		if t == nil {
			return
		}
		t.dispatch(TaskContext{Worker: w})
		w.Metrics.Dispatches.Incr()
		t.release()
	}
}

func (w *Worker) drainRoutedDelayed() {
	if w.ServerTLS.Flags.AllGroupsHandleTimers {
		return
	}
	for {
		t := w.delayedFree.Pop()
		if t == nil {
			return
		}
		w.ServerTLS.Delayed.Push(t)
	}
}

func (w *Worker) fireDueTimers() {
	w.ServerTLS.pending.DrainInto(func(t *Task) { w.ServerTLS.Delayed.Push(t) })
	now := w.nowTick()
	w.ServerTLS.Delayed.DrainExpired(now, func(t *Task) {
		t.dispatch(TaskContext{Worker: w})
		t.release()
	})
}

func (w *Worker) drainRoutedAOD() {
	assumeAll := w.AODTLS == nil || w.ServerTLS.Flags.AssumeAllGroupsHandleAOD
	if assumeAll {
		return
	}
	for _, kind := range [...]AODKind{AODShared, AODStatic, AODCustom} {
		inbox := w.delayedInbox(kind)
		heap := w.AODTLS.heapFor(kind)
		for {
			t := inbox.Pop()
			if t == nil {
				break
			}
			heap.Push(t)
		}
	}
}

func (w *Worker) fireDueAOD() {
	now := w.nowTick()
	for _, kind := range [...]AODKind{AODShared, AODStatic, AODCustom} {
		heap := w.AODTLS.heapFor(kind)
		heap.DrainExpired(now, func(t *aodTask) {
			t.parent.fireDelayed(w, t)
		})
	}
}

func (w *Worker) initTLS() {
	srv := w.Group.Server
	if w.Group.Tag.SupportsAOD {
		scheduleDelayed := !w.Group.Tag.HandlesTimerTasks && (srv == nil || !srv.flags.AssumeAllGroupsHandleAOD)
		w.AODTLS = NewAODTLSContext(serverAODGroups(srv), scheduleDelayed)
	}
	if w.Group.Tag.HandlesTimerTasks || srv != nil {
		flags := ServerFlags{}
		timerGroups := []*Group{}
		if srv != nil {
			flags = srv.flags
			timerGroups = srv.timerGroups
		}
		w.ServerTLS = NewServerTLSContext(flags, timerGroups)
	}
}

func (w *Worker) teardownTLS() {
	w.AODTLS = nil
	w.ServerTLS = nil
}

func serverAODGroups(srv *Server) []*Group {
	if srv == nil {
		return nil
	}
	return srv.aodGroups
}

// forceGosched yields the processor via runtime.Gosched. AODObject.flush
// makes the same runtime.Gosched call directly for its spin-yield.
func forceGosched() { runtime.Gosched() }
