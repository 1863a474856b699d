package wgcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// IOEvents is the readiness bitmask used by the platform pollers.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// IOFailureKind enumerates the three failure classes spec.md §4.2 requires
// a port to distinguish.
type IOFailureKind uint8

const (
	IOFailureNone IOFailureKind = iota
	IOFailureTimeout
	IOFailureCancelled
	IOFailureSystem
)

func ioFailureString(k IOFailureKind) string {
	switch k {
	case IOFailureTimeout:
		return "timeout"
	case IOFailureCancelled:
		return "cancelled"
	case IOFailureSystem:
		return "system"
	default:
		return "none"
	}
}

// AsyncRequest embeds the pieces of a started receive/send: the socket, a
// caller-owned buffer, and the completion task. Ownership transfers to the
// Port on BeginReceive/BeginSend and transfers back to whichever worker
// dequeues the completion, per spec.md §4.2.
type AsyncRequest struct {
	fd         int
	buf        []byte
	write      bool
	completion *Task
	key        uintptr

	// ID correlates this request's completion (and any log lines about it)
	// back to the request. Assigned on first use if left unset.
	ID string
}

// Completion is what DequeueOne/DequeueMany hand back: a request (nil for
// a pure user-enqueued wakeup), the byte count transferred (0 on
// cancellation, per spec.md §5), the completion key, and a failure kind.
type Completion struct {
	Request *AsyncRequest
	Bytes   int
	Key     uintptr
	Failure IOFailureKind
	Err     error
}

// platformPoller is implemented by port_linux.go (epoll) and
// port_darwin.go (kqueue).
type platformPoller interface {
	init() error
	close() error
	registerFD(fd int, ev IOEvents) error
	modifyFD(fd int, ev IOEvents) error
	unregisterFD(fd int) error
	wait(timeoutMs int, out []readyEvent) (int, error)
}

type readyEvent struct {
	fd                                 int
	readable, writable, errored, hup bool
}

// Port wraps a kernel readiness multiplexer (epoll/kqueue) behind the
// completion-delivers-a-task abstraction described in spec.md §4.2: an
// IOCP-like port that workers drain, rather than a pool of I/O threads the
// port itself owns.
type Port struct {
	impl platformPoller

	mu       sync.Mutex
	sockets  map[int]*socketState
	overflow []Completion // completions produced by one Wait() batch bigger than the caller's buffer

	closed  atomic.Bool
	started atomic.Bool

	wakeR, wakeW int
}

type socketState struct {
	fd        int
	readReq   *AsyncRequest
	writeReq  *AsyncRequest
	cancelled bool
}

// NewPort constructs an unstarted port.
func NewPort() *Port {
	return &Port{sockets: make(map[int]*socketState)}
}

// Start marks the port ready to be drained. threads is a capacity hint
// only: the port itself never spawns goroutines, per spec.md §4.2 ("the
// port does not create threads — it is drained by worker loops").
func (p *Port) Start(threads int) error {
	if err := p.initPlatform(); err != nil {
		return err
	}
	p.started.Store(true)
	return nil
}

// Stop cancels every in-flight request, delivering bytes=0 completions for
// each (spec.md §5's fail-safe), and closes the underlying poller.
func (p *Port) Stop() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	for _, s := range p.sockets {
		s.cancelled = true
		if s.readReq != nil {
			p.overflow = append(p.overflow, Completion{Request: s.readReq, Bytes: 0, Failure: IOFailureCancelled})
			s.readReq = nil
		}
		if s.writeReq != nil {
			p.overflow = append(p.overflow, Completion{Request: s.writeReq, Bytes: 0, Failure: IOFailureCancelled})
			s.writeReq = nil
		}
	}
	p.sockets = make(map[int]*socketState)
	p.mu.Unlock()
	if err := p.closePlatform(); err != nil {
		logger().Warn().Err(err).Msg("port close failed")
	}
}

// Associate binds fd's completion delivery to this port for its lifetime.
func (p *Port) Associate(fd int) error {
	if p.closed.Load() {
		return ErrPortClosed
	}
	p.mu.Lock()
	p.sockets[fd] = &socketState{fd: fd}
	p.mu.Unlock()
	return p.impl.registerFD(fd, 0)
}

// Unassociate removes fd from the port, e.g. after the socket is closed.
// A receive or send still outstanding on fd is delivered as a cancelled,
// zero-byte completion.
func (p *Port) Unassociate(fd int) {
	cancelled := false
	p.mu.Lock()
	if s, ok := p.sockets[fd]; ok {
		for _, req := range []*AsyncRequest{s.readReq, s.writeReq} {
			if req != nil {
				p.overflow = append(p.overflow, Completion{Request: req, Bytes: 0, Key: req.key, Failure: IOFailureCancelled})
				cancelled = true
			}
		}
	}
	delete(p.sockets, fd)
	p.mu.Unlock()
	_ = p.impl.unregisterFD(fd)
	if cancelled {
		p.wake()
	}
}

// BeginReceive transfers ownership of req (and its buffer) to the port
// until a read-ready event or cancellation delivers a completion.
func (p *Port) BeginReceive(req *AsyncRequest) error {
	return p.begin(req, false)
}

// BeginSend transfers ownership of req to the port until a write-ready
// event or cancellation delivers a completion.
func (p *Port) BeginSend(req *AsyncRequest) error {
	return p.begin(req, true)
}

func (p *Port) begin(req *AsyncRequest, write bool) error {
	if p.closed.Load() {
		return ErrPortClosed
	}
	req.write = write
	if req.ID == "" {
		req.ID = NewRequestID()
	}

	p.mu.Lock()
	s, ok := p.sockets[req.fd]
	if !ok {
		p.mu.Unlock()
		return ErrPortClosed
	}
	var events IOEvents
	if write {
		s.writeReq = req
	} else {
		s.readReq = req
	}
	if s.readReq != nil {
		events |= EventRead
	}
	if s.writeReq != nil {
		events |= EventWrite
	}
	p.mu.Unlock()

	return p.impl.modifyFD(req.fd, events)
}

// EnqueueUser delivers (nil, 0, key) to exactly one dequeuing thread. Used
// both to wake a worker parked in DequeueOne/Many and to post ad-hoc work
// through the same channel as I/O completions.
func (p *Port) EnqueueUser(key uintptr) {
	p.mu.Lock()
	p.overflow = append(p.overflow, Completion{Key: key})
	p.mu.Unlock()
	p.wake()
}

// DequeueOne blocks (up to timeout, if non-zero) for a single completion.
func (p *Port) DequeueOne(timeout time.Duration) (Completion, bool) {
	var out [1]Completion
	n := p.dequeue(out[:], timeout)
	if n == 0 {
		return Completion{}, false
	}
	return out[0], true
}

// DequeueMany fills out with up to len(out) completions, blocking (up to
// timeout) for at least one.
func (p *Port) DequeueMany(out []Completion, timeout time.Duration) int {
	return p.dequeue(out, timeout)
}

func (p *Port) dequeue(out []Completion, timeout time.Duration) int {
	p.mu.Lock()
	n := p.drainOverflowLocked(out)
	p.mu.Unlock()
	if n > 0 {
		return n
	}

	timeoutMs := -1
	if timeout > 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	events := make([]readyEvent, max(len(out), 16))
	cnt, err := p.impl.wait(timeoutMs, events)
	if err != nil {
		logger().Warn().Err(err).Msg("poller wait failed")
		return 0
	}
	if cnt == 0 {
		return 0
	}

	p.mu.Lock()
	for i := 0; i < cnt; i++ {
		p.resolveEventLocked(events[i])
	}
	n = p.drainOverflowLocked(out)
	p.mu.Unlock()
	return n
}

func (p *Port) drainOverflowLocked(out []Completion) int {
	n := copy(out, p.overflow)
	p.overflow = p.overflow[n:]
	if len(p.overflow) == 0 {
		p.overflow = nil
	}
	return n
}

// resolveEventLocked performs the actual read/write syscall for a
// ready socket and appends the resulting completion to overflow. Callers
// hold p.mu.
func (p *Port) resolveEventLocked(ev readyEvent) {
	s, ok := p.sockets[ev.fd]
	if !ok {
		return
	}
	if (ev.readable || ev.errored || ev.hup) && s.readReq != nil {
		var n int
		var err error
		if len(s.readReq.buf) == 0 {
			// Zero-length buffer means "just tell me this fd is readable" —
			// used by TCPAcceptor's async-accept, which performs its own
			// accept(2) rather than a read(2). Skip the syscall entirely.
		} else {
			n, err = sysRead(ev.fd, s.readReq.buf)
		}
		p.completeLocked(s, s.readReq, n, err)
		s.readReq = nil
	}
	if (ev.writable || ev.errored) && s.writeReq != nil {
		n, err := sysWrite(ev.fd, s.writeReq.buf)
		p.completeLocked(s, s.writeReq, n, err)
		s.writeReq = nil
	}
}

func (p *Port) completeLocked(s *socketState, req *AsyncRequest, n int, err error) {
	failure := IOFailureNone
	if s.cancelled {
		failure = IOFailureCancelled
		n = 0
	} else if err != nil {
		failure = IOFailureSystem
	}
	p.overflow = append(p.overflow, Completion{Request: req, Bytes: n, Key: req.key, Failure: failure, Err: err})
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
