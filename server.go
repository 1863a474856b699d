package wgcore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ServerConfig configures a Server instance: its name, an ordered vector of
// group tags, and whether StartServer should block the calling goroutine
// as the master worker, per spec.md §3.
type ServerConfig struct {
	Name                     string
	Groups                   []GroupTag
	WillCaptureCallingThread bool

	// AssumeAllGroupsHandleAOD: when true, the cross-group router's AOD
	// path is skipped entirely and every group is assumed capable of
	// draining its own AOD-delayed inboxes.
	AssumeAllGroupsHandleAOD bool

	// ActiveServiceTickInterval paces the self-re-deferring task spec.md
	// §4.7 describes for ticking ActiveService instances. Defaults to
	// 100ms if zero.
	ActiveServiceTickInterval time.Duration
}

// StopStatus is returned by StartServer once the server has fully wound
// down.
type StopStatus uint8

const (
	// StatusFinalized is the "distinguished status" spec.md §7 describes:
	// the master worker has returned control to the caller after an
	// orderly shutdown.
	StatusFinalized StopStatus = iota
)

// Server is the top-level orchestration object: spec.md §3's "server
// instance". Construct one with NewServer, register services with
// AddSimpleService/AddAODService/AddActiveService/AddWorkerService, then
// call StartServer.
type Server struct {
	Config ServerConfig
	Groups []*Group

	simpleServices []SimpleService
	aodServices    []AODService
	activeServices []ActiveService
	workerServices []WorkerService

	flags       ServerFlags
	timerGroups []*Group
	aodGroups   []*Group

	startupBarrier  sync.WaitGroup
	shutdownBarrier sync.WaitGroup

	master *Worker

	running  atomic.Bool
	stopping atomic.Bool

	startedGroups  atomic.Int32
	stoppedGroups  atomic.Int32
	remainingWorkers atomic.Int32

	pendingServiceStops atomic.Int32

	doneCh chan struct{}
}

// NewServer validates cfg, builds the group vector, and computes the
// derived flag aggregates from spec.md §3 ("derived flag aggregates").
// Service registries start with a nil sentinel at index 0 so the first
// registered service of each kind gets UID 1.
func NewServer(cfg ServerConfig) (*Server, error) {
	if len(cfg.Groups) == 0 {
		return nil, fmt.Errorf("%w: server %q has no groups", ErrInvalidConfiguration, cfg.Name)
	}
	if cfg.ActiveServiceTickInterval == 0 {
		cfg.ActiveServiceTickInterval = 100 * time.Millisecond
	}

	s := &Server{
		Config:         cfg,
		simpleServices: make([]SimpleService, 1),
		aodServices:    make([]AODService, 1),
		activeServices: make([]ActiveService, 1),
		workerServices: make([]WorkerService, 1),
		doneCh:         make(chan struct{}),
	}

	s.flags.AllGroupsAreActive = true
	s.flags.AllGroupsHandleTimers = true
	s.flags.AllGroupsSupportAOD = true
	s.flags.AssumeAllGroupsHandleAOD = cfg.AssumeAllGroupsHandleAOD

	captureCount := 0
	for _, tag := range cfg.Groups {
		if tag.CaptureCallingThread {
			captureCount++
		}
	}
	if cfg.WillCaptureCallingThread && captureCount == 0 && len(cfg.Groups) > 0 {
		cfg.Groups[len(cfg.Groups)-1].CaptureCallingThread = true
	}

	for _, tag := range cfg.Groups {
		g, err := newGroup(tag, s)
		if err != nil {
			return nil, err
		}
		s.Groups = append(s.Groups, g)
		if !tag.IsActive {
			s.flags.AllGroupsAreActive = false
		}
		if tag.HandlesTimerTasks {
			s.timerGroups = append(s.timerGroups, g)
		} else {
			s.flags.AllGroupsHandleTimers = false
		}
		if tag.SupportsAOD {
			s.aodGroups = append(s.aodGroups, g)
		} else {
			s.flags.AllGroupsSupportAOD = false
		}
		if g.master != nil {
			s.master = g.master
		}
	}

	return s, nil
}

// AddSimpleService registers svc, returning its 1-based UID. Forbidden
// once the server is running (spec.md §5: "Service registries are
// immutable post-initialization").
func (s *Server) AddSimpleService(svc SimpleService) (serviceUID, error) {
	if s.running.Load() {
		return 0, ErrServerRunning
	}
	s.simpleServices = append(s.simpleServices, svc)
	return len(s.simpleServices) - 1, nil
}

// AddAODService registers svc, returning its 1-based UID.
func (s *Server) AddAODService(svc AODService) (serviceUID, error) {
	if s.running.Load() {
		return 0, ErrServerRunning
	}
	s.aodServices = append(s.aodServices, svc)
	return len(s.aodServices) - 1, nil
}

// AddActiveService registers svc, returning its 1-based UID.
func (s *Server) AddActiveService(svc ActiveService) (serviceUID, error) {
	if s.running.Load() {
		return 0, ErrServerRunning
	}
	s.activeServices = append(s.activeServices, svc)
	return len(s.activeServices) - 1, nil
}

// AddWorkerService registers svc, returning its 1-based UID.
func (s *Server) AddWorkerService(svc WorkerService) (serviceUID, error) {
	if s.running.Load() {
		return 0, ErrServerRunning
	}
	s.workerServices = append(s.workerServices, svc)
	return len(s.workerServices) - 1, nil
}

func (s *Server) allServices() []SimpleService {
	out := make([]SimpleService, 0, len(s.simpleServices)+len(s.aodServices)+len(s.activeServices)+len(s.workerServices)-4)
	out = append(out, s.simpleServices[1:]...)
	for _, svc := range s.aodServices[1:] {
		out = append(out, svc)
	}
	for _, svc := range s.activeServices[1:] {
		out = append(out, svc)
	}
	for _, svc := range s.workerServices[1:] {
		out = append(out, svc)
	}
	return out
}

// StartServer initializes every registered service (group tags were
// already validated by NewServer), launches every worker but the master on
// its own goroutine, and
// then either runs the master worker's tick loop on the calling goroutine
// (if one group donated CaptureCallingThread) or blocks until shutdown
// completes, per spec.md §3/§4.7/§7.
func (s *Server) StartServer() (StopStatus, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrServerAlreadyRunning
	}

	total := 0
	for _, g := range s.Groups {
		total += g.Tag.WorkerCount
	}
	s.remainingWorkers.Store(int32(total))
	s.startupBarrier.Add(total)
	s.shutdownBarrier.Add(total)

	for _, svc := range s.allServices() {
		if err := svc.Initialize(); err != nil {
			logger().Error().Str("service", fmt.Sprintf("%T", svc)).Err(err).Msg("service initialize failed")
			s.running.Store(false)
			return 0, fmt.Errorf("%w: %v", ErrAllocationFailure, err)
		}
	}

	logger().Info().Str("server", s.Config.Name).Int("groups", len(s.Groups)).Int("workers", total).Msg("server starting")

	for _, g := range s.Groups {
		g.running.Store(true)
		for i := 1; i <= g.Tag.WorkerCount; i++ {
			w := g.Workers[i]
			if w == s.master {
				continue
			}
			go s.runWorker(w)
		}
	}

	if s.master != nil {
		s.runWorker(s.master)
		return StatusFinalized, nil
	}

	<-s.doneCh
	return StatusFinalized, nil
}

func (s *Server) runWorker(w *Worker) {
	w.run()
	if s.remainingWorkers.Add(-1) == 0 {
		close(s.doneCh)
	}
}

// onWorkerGroupStarted implements the bottom-up
// OnWorkerGroupStarted→OnServerStarted sequencing from spec.md §4.7.
func (s *Server) onWorkerGroupStarted(g *Group) {
	if int(s.startedGroups.Add(1)) == len(s.Groups) {
		s.onServerStarted()
	}
}

func (s *Server) onServerStarted() {
	logger().Info().Str("server", s.Config.Name).Msg("server started")
	for _, svc := range s.allServices() {
		svc.OnServerStarted()
	}
	s.seedActiveServiceTicker()
}

// seedActiveServiceTicker posts the self-re-deferring task described in
// spec.md §4.7 onto the first timer-capable worker, ticking every
// registered ActiveService on each firing.
//
// onServerStarted runs on whichever goroutine completed the group-start
// cascade, not necessarily w's own goroutine, and may run before w has
// populated its TLS contexts. DeferTaskAgain touches ServerTLS.pending,
// a single-owner queue, so the seed cannot call it directly; it is posted
// through w's generalTasks inbox instead, which is MPSC-safe for any
// caller. The seed task then calls DeferTaskAgain from inside its own
// handler, where it is guaranteed to be running on w after TLS init.
func (s *Server) seedActiveServiceTicker() {
	if len(s.timerGroups) == 0 || len(s.activeServices) <= 1 {
		return
	}
	w := s.timerGroups[0].Workers[1]
	interval := uint64(s.Config.ActiveServiceTickInterval / time.Millisecond)
	var tick func(ctx TaskContext)
	tick = func(ctx TaskContext) {
		for _, svc := range s.activeServices[1:] {
			svc.Tick()
		}
		ctx.Worker.DeferTaskAgain(interval, MakeTask(tick))
	}
	w.DeferTask(MakeTask(func(ctx TaskContext) {
		ctx.Worker.DeferTaskAgain(interval, MakeTask(tick))
	}))
}

func (s *Server) tickWorkerServices(w *Worker) {
	for _, svc := range s.workerServices[1:] {
		svc.OnTickWorker(w, w.Group)
	}
}

func (s *Server) notifyWorkerStarted(w *Worker) {
	if !w.Group.Tag.TickWorkerServices {
		return
	}
	for _, svc := range s.workerServices[1:] {
		svc.OnWorkerStarted(w, w.Group)
	}
}

func (s *Server) notifyWorkerStopped(w *Worker) {
	if !w.Group.Tag.TickWorkerServices {
		return
	}
	for _, svc := range s.workerServices[1:] {
		svc.OnWorkerStopped(w, w.Group)
	}
}

// tlsSyncTick reserves the TLS-sync tick slot spec.md §4.5 step F requires;
// TLS-sync itself is out of core scope (GLOSSARY).
func (s *Server) tlsSyncTick(w *Worker) {}

// SignalToStop begins an orderly, cooperative shutdown: every registered
// service is asked to stop; once the last one reports stopped (either
// synchronously or via OnServiceStopped), every group is signalled to
// stop, per spec.md §4.7/§7. A no-op if already stopping (spec.md §8).
func (s *Server) SignalToStop() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	logger().Info().Str("server", s.Config.Name).Msg("server stop signaled")
	services := s.allServices()
	pending := int32(0)
	for _, svc := range services {
		if svc.OnServerStopSignaled() == ServiceStopPending {
			pending++
		}
	}
	s.pendingServiceStops.Store(pending)
	if pending == 0 {
		s.finishStop()
	}
}

// OnServiceStopped must be called by any service whose OnServerStopSignaled
// returned ServiceStopPending, once it has actually finished stopping.
func (s *Server) OnServiceStopped(svc SimpleService) {
	if s.pendingServiceStops.Add(-1) == 0 {
		s.finishStop()
	}
}

func (s *Server) finishStop() {
	for _, svc := range s.allServices() {
		svc.OnServerStopped()
	}
	for _, g := range s.Groups {
		g.SignalToStop()
	}
	logger().Info().Str("server", s.Config.Name).Msg("server stopped")
}

func (s *Server) onWorkerGroupStopped(g *Group) {
	s.stoppedGroups.Add(1)
}
