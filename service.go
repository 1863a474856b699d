package wgcore

// ServiceStopResult is returned by OnServerStopSignaled, distinguishing a
// service that finished stopping synchronously from one that will report
// back later via Server.OnServiceStopped (spec.md §4.7).
type ServiceStopResult uint8

const (
	ServiceStopped ServiceStopResult = iota
	ServiceStopPending
)

// SimpleService is the base lifecycle every service kind shares, per
// spec.md §6.
type SimpleService interface {
	Initialize() error
	OnServerStarted()
	OnServerStopSignaled() ServiceStopResult
	OnServerStopped()
}

// AODService is a SimpleService whose internal state is itself protected
// by an AODObject rather than by a dedicated worker; wgcore does not
// impose any additional method surface on it (spec.md §6 lists it as a
// distinct kind purely for registry/UID purposes).
type AODService interface {
	SimpleService
}

// ActiveService ticks independently of any one worker. The server seeds a
// self-re-deferring task (spec.md §4.7) that calls Tick on every
// registered ActiveService once per server tick interval.
type ActiveService interface {
	SimpleService
	Tick()
}

// WorkerService is bound to every worker in every group with
// bTickWorkerServices set; it additionally observes that worker's own
// start/stop and is ticked from step E of the tick loop.
type WorkerService interface {
	SimpleService
	OnWorkerStarted(w *Worker, g *Group)
	OnWorkerStopped(w *Worker, g *Group)
	OnTickWorker(w *Worker, g *Group)
}

// serviceUID is the 1-based identifier equal to a service's registration
// index in its kind's vector, per spec.md §6. Index 0 is reserved as a nil
// sentinel in every registry, matching the worker-group vector convention
// in spec.md §3.
type serviceUID = int
