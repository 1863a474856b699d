package wgcore

import (
	"fmt"
	"sync/atomic"
)

// GroupTag is the immutable flag vector + metadata that selects a worker's
// tick-loop shape, per spec.md §3 and the configuration table in §6.
type GroupTag struct {
	ID   uint32
	Name string

	WorkerCount int
	TickRateHz  int

	IsActive                     bool
	EnableAsyncIO                bool
	SupportsAOD                  bool
	HandlesTimerTasks            bool
	SupportsTLSSync              bool
	HasWorkerGroupSpecificTLSSync bool
	CallTickHandler              bool
	TickWorkerServices           bool
	PreallocateThreadLocalPools  bool
	EnableTaskQueue              bool
	SupportsTCPAsyncAcceptors    bool

	// CaptureCallingThread, if true on exactly one group in a server's
	// config, donates that group's last worker as the "master" worker run
	// on the thread that calls StartServer (spec.md §3, §GLOSSARY).
	CaptureCallingThread bool

	RRMode RRMode
}

// validateTag enforces the rules from spec.md §6.
func validateTag(t GroupTag) error {
	if t.ID == 0 {
		return fmt.Errorf("%w: group id must be non-zero", ErrInvalidConfiguration)
	}
	if t.WorkerCount <= 0 {
		return fmt.Errorf("%w: group %q must have at least one worker", ErrInvalidConfiguration, t.Name)
	}
	if t.HandlesTimerTasks && !t.IsActive {
		return fmt.Errorf("%w: group %q: bHandlesTimerTasks requires bIsActive", ErrInvalidConfiguration, t.Name)
	}
	if t.TickWorkerServices && !t.IsActive {
		return fmt.Errorf("%w: group %q: bTickWorkerServices requires bIsActive", ErrInvalidConfiguration, t.Name)
	}
	if t.SupportsTCPAsyncAcceptors && !t.EnableAsyncIO {
		return fmt.Errorf("%w: group %q: bSupportesTCPAsyncAcceptors requires bEnableAsyncIO", ErrInvalidConfiguration, t.Name)
	}
	if !t.IsActive {
		if !t.EnableAsyncIO {
			return fmt.Errorf("%w: group %q: a reactive group must have bEnableAsyncIO", ErrInvalidConfiguration, t.Name)
		}
		if t.EnableTaskQueue {
			return fmt.Errorf("%w: group %q: a reactive group must not have bEnableTaskQueue", ErrInvalidConfiguration, t.Name)
		}
	}
	if t.EnableTaskQueue && t.EnableAsyncIO {
		return fmt.Errorf("%w: group %q: bEnableTaskQueue and bEnableAsyncIO are mutually exclusive", ErrInvalidConfiguration, t.Name)
	}
	return nil
}

// Group is a fixed-size worker vector sharing one GroupTag, described in
// spec.md §3/§4.7.
type Group struct {
	Tag GroupTag

	Server *Server

	// Workers[0] is a nil sentinel; real workers occupy indices 1..WorkerCount.
	Workers []*Worker

	Port      *Port
	acceptors []*TCPAcceptor

	startedWorkers atomic.Int32
	stoppedWorkers atomic.Int32
	running        atomic.Bool
	stopping       atomic.Bool

	master *Worker

	OnWorkerStart func(w *Worker)
	OnWorkerTick  func(w *Worker)
	OnWorkerStop  func(w *Worker)

	// groupTLSSync is the optional group-local TLS-sync tick hook (spec.md
	// §3's "optional per-group TLS-sync system"). TLS-sync itself is out
	// of core scope (GLOSSARY); wgcore only reserves the tick slot.
	groupTLSSync func(w *Worker)
}

func newGroup(tag GroupTag, srv *Server) (*Group, error) {
	if err := validateTag(tag); err != nil {
		return nil, err
	}
	g := &Group{Tag: tag, Server: srv}
	g.Workers = make([]*Worker, tag.WorkerCount+1)
	for i := 1; i <= tag.WorkerCount; i++ {
		g.Workers[i] = newWorker(g, i)
	}
	if tag.CaptureCallingThread {
		g.master = g.Workers[tag.WorkerCount]
	}
	if tag.EnableAsyncIO {
		g.Port = NewPort()
		if err := g.Port.Start(tag.WorkerCount); err != nil {
			return nil, fmt.Errorf("%w: group %q: async-I/O port: %v", ErrAllocationFailure, tag.Name, err)
		}
	}
	return g, nil
}

// pickWorker selects a real worker (skipping the nil sentinel at index 0)
// via round-robin, for use by the C8 router.
func (g *Group) pickWorker(counter *uint32) *Worker {
	n := len(g.Workers) - 1
	idx := 1 + rrNext(counter, n, g.Tag.RRMode)
	return g.Workers[idx]
}

// AddAcceptor registers a TCP acceptor with this group. Must be called
// before the server starts; SupportsTCPAsyncAcceptors must be set.
func (g *Group) AddAcceptor(a *TCPAcceptor) error {
	if !g.Tag.SupportsTCPAsyncAcceptors {
		return fmt.Errorf("%w: group %q does not support TCP acceptors", ErrInvalidConfiguration, g.Tag.Name)
	}
	for _, existing := range g.acceptors {
		if existing.Config.ID == a.Config.ID {
			return fmt.Errorf("%w: acceptor id %d already registered on group %q", ErrInvalidConfiguration, a.Config.ID, g.Tag.Name)
		}
		if existing.Config.IP == a.Config.IP && existing.Config.Port == a.Config.Port {
			return fmt.Errorf("%w: acceptor %s:%d already registered on group %q", ErrInvalidConfiguration, ipString(a.Config.IP), a.Config.Port, g.Tag.Name)
		}
	}
	a.group = g
	g.acceptors = append(g.acceptors, a)
	return nil
}

// onWorkerStarted implements the bottom-up start sequence from spec.md
// §4.7: when every worker has reported started, OnAllWorkersStarted fires
// (which starts TCP acceptors), then OnWorkerGroupStarted.
func (g *Group) onWorkerStarted(w *Worker) {
	if g.OnWorkerStart != nil {
		g.OnWorkerStart(w)
	}
	if int(g.startedWorkers.Add(1)) == g.Tag.WorkerCount {
		g.onAllWorkersStarted()
	}
}

func (g *Group) onAllWorkersStarted() {
	for _, a := range g.acceptors {
		if err := a.StartAcceptingAsync(); err != nil {
			logger().Error().Str("group", g.Tag.Name).Uint16("port", a.Config.Port).Err(err).Msg("acceptor failed to start")
		}
	}
	g.running.Store(true)
	logger().Info().Str("group", g.Tag.Name).Int("workers", g.Tag.WorkerCount).Msg("group started")
	if g.Server != nil {
		g.Server.onWorkerGroupStarted(g)
	}
}

// SignalToStop flips the running flag, stops acceptors and the async-I/O
// port (cancelling in-flight requests per spec.md §4.7), and is a no-op if
// the group is already stopping (spec.md §8's idempotence property).
func (g *Group) SignalToStop() {
	if !g.stopping.CompareAndSwap(false, true) {
		return
	}
	logger().Info().Str("group", g.Tag.Name).Msg("group stop signaled")
	for _, a := range g.acceptors {
		a.StopAcceptingAsync()
	}
	if g.Port != nil {
		g.Port.Stop()
	}
	g.running.Store(false)
}

func (g *Group) onWorkerStopped(w *Worker) {
	if g.OnWorkerStop != nil {
		g.OnWorkerStop(w)
	}
	if int(g.stoppedWorkers.Add(1)) == g.Tag.WorkerCount {
		if g.Server != nil {
			g.Server.onWorkerGroupStopped(g)
		}
	}
}

func ipString(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}
