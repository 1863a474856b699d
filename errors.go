package wgcore

import "errors"

// Sentinel errors for the taxonomy described in spec.md §7. Callers should
// use errors.Is against these rather than matching on message text.
var (
	// ErrInvalidConfiguration is returned by NewServer when a GroupTag or
	// ServerConfig fails validation (see validateTag), and by
	// Group.AddAcceptor.
	ErrInvalidConfiguration = errors.New("wgcore: invalid configuration")

	// ErrAllocationFailure is returned by NewServer when a group's async-I/O
	// port fails to start, and by StartServer when a registered service's
	// Initialize fails.
	ErrAllocationFailure = errors.New("wgcore: allocation failure")

	// ErrSystemIO marks a kernel operation the async-I/O port could not
	// classify as timeout or cancellation.
	ErrSystemIO = errors.New("wgcore: system I/O failure")

	// ErrCancelled marks an async-I/O request cancelled by socket closure.
	ErrCancelled = errors.New("wgcore: operation cancelled")

	// ErrTimeout marks a dequeue call that returned no completion.
	ErrTimeout = errors.New("wgcore: dequeue timeout")

	// ErrServiceStopFailure marks a service that reported failure from its
	// stop path. It does not prevent shutdown from completing.
	ErrServiceStopFailure = errors.New("wgcore: service stop failure")

	// ErrPortClosed is returned by port operations after Stop has run.
	ErrPortClosed = errors.New("wgcore: async-I/O port is closed")

	// ErrServerRunning is returned by AddService once the server has
	// started; the registries are immutable post-initialization.
	ErrServerRunning = errors.New("wgcore: server is already running")

	// ErrServerAlreadyRunning is returned by StartServer on a second call.
	ErrServerAlreadyRunning = errors.New("wgcore: server already running")

	// ErrAcceptorRunning is not returned by any function in this package:
	// StartAcceptingAsync on an acceptor that is already accepting is a
	// no-op that returns nil (spec.md §8).
	ErrAcceptorRunning = errors.New("wgcore: acceptor already accepting")
)
