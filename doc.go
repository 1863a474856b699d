// Package wgcore provides a worker-group runtime for authoritative
// game/MMO servers: a fixed set of OS-thread-backed workers organized into
// groups, an Async Object Dispatcher (AOD) giving per-object serialized
// execution without per-object locks, and an IOCP-like async-I/O port
// abstraction over epoll/kqueue.
//
// # Architecture
//
// A [Server] owns one or more [Group]s, each a fixed-size vector of
// [Worker]s sharing one immutable [GroupTag]. The tag's flags select which
// steps of the worker's tick loop are active: async-I/O draining, general
// task dispatch, timer firing, AOD firing, worker-service ticking, and an
// optional TLS-sync slot. One group's tag may mark it "reactive" (no fixed
// tick rate, blocking on its [Port] instead) or "active" (fixed rate via
// GroupTag.TickRateHz).
//
// # AOD
//
// [AODObject] enforces that at most one goroutine executes tasks belonging
// to a given logical object at any instant, without holding a lock across
// dispatch. Three variants — Shared, Static, Custom — differ only in how
// the object's lifetime is tied to its in-flight tasks; see
// NewSharedAODObject, NewStaticAODObject and NewCustomAODObject.
//
// # Cross-group routing
//
// A delayed task (Worker.DeferTaskAgain) or delayed AOD task
// (AODObject.DelayTask) produced on a worker whose group does not handle
// timer tasks is routed via round-robin to a worker in a capable group; see
// router.go. AODObject.Dispatch is not routed.
//
// # Platform support
//
// Async I/O is implemented using platform-native readiness mechanisms:
//   - Linux: epoll, eventfd wakeups
//   - Darwin: kqueue, self-pipe wakeups
//
// # Thread safety
//
// Task.addRef/release and the MPSC inboxes are safe from any goroutine.
// TLS contexts (AODTLSContext, ServerTLSContext), timer heaps and pending
// FIFOs are owned by exactly one worker goroutine and must not be touched
// from elsewhere.
package wgcore
