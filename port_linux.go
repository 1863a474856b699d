//go:build linux

package wgcore

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollPoller implements platformPoller using epoll. Completions flow back
// through Port.overflow rather than per-fd callback storage.
type epollPoller struct {
	epfd     int
	mu       sync.RWMutex
	fds      map[int]IOEvents
	wakeR    int
	wakeW    int
	eventBuf [256]unix.EpollEvent
}

func (p *epollPoller) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = fd
	p.fds = make(map[int]IOEvents)

	r, w, err := createWakeFD()
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	p.wakeR, p.wakeW = r, w
	return p.registerFD(r, EventRead)
}

func (p *epollPoller) close() error {
	closeWakeFD(p.wakeR, p.wakeW)
	return unix.Close(p.epfd)
}

func eventsToEpoll(ev IOEvents) uint32 {
	var out uint32
	if ev&EventRead != 0 {
		out |= unix.EPOLLIN
	}
	if ev&EventWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func (p *epollPoller) registerFD(fd int, ev IOEvents) error {
	p.mu.Lock()
	p.fds[fd] = ev
	p.mu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: eventsToEpoll(ev) | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)})
}

func (p *epollPoller) modifyFD(fd int, ev IOEvents) error {
	p.mu.Lock()
	p.fds[fd] = ev
	p.mu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: eventsToEpoll(ev) | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)})
}

func (p *epollPoller) unregisterFD(fd int) error {
	p.mu.Lock()
	delete(p.fds, fd)
	p.mu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(timeoutMs int, out []readyEvent) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd == p.wakeR {
			drainWake(p.wakeR)
			continue
		}
		if count >= len(out) {
			break
		}
		mask := p.eventBuf[i].Events
		out[count] = readyEvent{
			fd:       fd,
			readable: mask&unix.EPOLLIN != 0,
			writable: mask&unix.EPOLLOUT != 0,
			errored:  mask&unix.EPOLLERR != 0,
			hup:      mask&unix.EPOLLHUP != 0,
		}
		count++
	}
	return count, nil
}

func (p *Port) initPlatform() error {
	impl := &epollPoller{}
	if err := impl.init(); err != nil {
		return err
	}
	p.impl = impl
	return nil
}

func (p *Port) closePlatform() error {
	return p.impl.close()
}

func (p *Port) wake() {
	if ep, ok := p.impl.(*epollPoller); ok {
		writeWake(ep.wakeW)
	}
}
