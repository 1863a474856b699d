package wgcore

import (
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
)

// AcceptorConfig is the TCP acceptor configuration from spec.md §6:
// (IpAddress, Port, Backlog, Id, OnAccept) with uniqueness on (Id) and
// (IpAddress, Port) within a group.
type AcceptorConfig struct {
	IP      uint32
	Port    uint16
	Backlog uint32
	ID      uint32

	// OnAccept is invoked with the accepted connection's file descriptor,
	// already associated with the group's async-I/O port.
	OnAccept func(fd int)
}

// TCPAcceptor owns one listen socket and posts a single, repeatedly-reused
// async-accept task, per spec.md §4.8.
type TCPAcceptor struct {
	Config AcceptorConfig

	group *Group

	listenFD  int
	boundPort uint16
	running   atomic.Bool

	acceptTask *Task
}

// BoundPort returns the actual listening port, useful when Config.Port was
// 0 (kernel-assigned ephemeral port).
func (a *TCPAcceptor) BoundPort() uint16 { return a.boundPort }

// NewTCPAcceptor constructs an acceptor; call Group.AddAcceptor to attach it
// before the server starts.
func NewTCPAcceptor(cfg AcceptorConfig) *TCPAcceptor {
	return &TCPAcceptor{Config: cfg, listenFD: -1}
}

// StartAcceptingAsync binds, listens, associates the listen socket with the
// group's port, and posts the first async-accept. A no-op returning success
// if already accepting, per spec.md §8's idempotence property.
func (a *TCPAcceptor) StartAcceptingAsync() error {
	if !a.running.CompareAndSwap(false, true) {
		return nil
	}

	fd, boundPort, err := listenTCP(a.Config.IP, a.Config.Port, int(a.Config.Backlog))
	if err != nil {
		a.running.Store(false)
		return fmt.Errorf("%w: acceptor %d: %v", ErrSystemIO, a.Config.ID, err)
	}
	a.listenFD = fd
	a.boundPort = boundPort

	if err := a.group.Port.Associate(fd); err != nil {
		syscall.Close(fd)
		a.listenFD = -1
		a.running.Store(false)
		return fmt.Errorf("%w: acceptor %d: associate: %v", ErrSystemIO, a.Config.ID, err)
	}

	a.acceptTask = MakeTask(a.onAcceptReady)
	a.postAccept()
	return nil
}

// StopAcceptingAsync flips the running flag and closes the listen socket;
// the outstanding accept resolves as cancelled and its handler exits
// without re-posting, per spec.md §4.8.
func (a *TCPAcceptor) StopAcceptingAsync() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}
	if a.listenFD >= 0 {
		a.group.Port.Unassociate(a.listenFD)
		syscall.Close(a.listenFD)
		a.listenFD = -1
	}
}

// postAccept arms a receive-style request on the listen socket; the actual
// accept(2) call happens once the socket reports readable, in
// onAcceptReady, since wgcore's Port models readiness rather than true
// Windows-style AcceptEx completion ports.
func (a *TCPAcceptor) postAccept() {
	a.acceptTask.addRef()
	req := &AsyncRequest{fd: a.listenFD, completion: a.acceptTask}
	if err := a.group.Port.BeginReceive(req); err != nil {
		a.acceptTask.release()
	}
}

// onAcceptReady is the async-accept completion handler described in
// spec.md §4.8: apply the inherit-listen-context option, associate with
// the port, invoke the user callback, then re-post using the same task
// object to avoid per-connection allocation on the hot path.
func (a *TCPAcceptor) onAcceptReady(ctx TaskContext) {
	if !a.running.Load() {
		return // cancelled by StopAcceptingAsync; do not re-post
	}
	if ctx.Err != nil {
		a.StopAcceptingAsync()
		return
	}

	connFD, _, err := syscall.Accept(a.listenFD)
	if err == nil {
		applyInheritedListenContext(connFD)
		if assocErr := a.group.Port.Associate(connFD); assocErr != nil {
			syscall.Close(connFD)
		} else if a.Config.OnAccept != nil {
			a.Config.OnAccept(connFD)
		}
	}

	a.postAccept()
}

func listenTCP(ip uint32, port uint16, backlog int) (fd int, boundPort uint16, err error) {
	fd, err = syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, 0, err
	}
	if err = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return -1, 0, err
	}
	addr := syscall.SockaddrInet4{Port: int(port)}
	addr.Addr = [4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}
	if err = syscall.Bind(fd, &addr); err != nil {
		syscall.Close(fd)
		return -1, 0, err
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err = syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return -1, 0, err
	}
	if err = syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, 0, err
	}
	if sa, serr := syscall.Getsockname(fd); serr == nil {
		if in4, ok := sa.(*syscall.SockaddrInet4); ok {
			boundPort = uint16(in4.Port)
		}
	}
	return fd, boundPort, nil
}

// applyInheritedListenContext mirrors the "inherit listen context"
// socket-option step from spec.md §4.8: the accepted socket inherits the
// listener's non-blocking mode so it can be driven through the same
// readiness-based port.
func applyInheritedListenContext(fd int) {
	_ = syscall.SetNonblock(fd, true)
}

// ListenAddr formats cfg's bind address, useful for logging and tests.
func (cfg AcceptorConfig) ListenAddr() string {
	return net.JoinHostPort(ipString(cfg.IP), fmt.Sprintf("%d", cfg.Port))
}
