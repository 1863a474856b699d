//go:build darwin

package wgcore

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements platformPoller using kqueue.
type kqueuePoller struct {
	kq       int
	mu       sync.RWMutex
	fds      map[int]IOEvents
	wakeR    int
	wakeW    int
	eventBuf [256]unix.Kevent_t
}

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	p.fds = make(map[int]IOEvents)

	r, w, err := createWakeFD()
	if err != nil {
		_ = unix.Close(kq)
		return err
	}
	p.wakeR, p.wakeW = r, w
	return p.registerFD(r, EventRead)
}

func (p *kqueuePoller) close() error {
	closeWakeFD(p.wakeR, p.wakeW)
	return unix.Close(p.kq)
}

func eventsToKevents(fd int, ev IOEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if ev&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if ev&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (p *kqueuePoller) registerFD(fd int, ev IOEvents) error {
	p.mu.Lock()
	old := p.fds[fd]
	p.fds[fd] = ev
	p.mu.Unlock()
	kevs := eventsToKevents(fd, ev&^old, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, kevs, nil, nil)
	return err
}

func (p *kqueuePoller) modifyFD(fd int, ev IOEvents) error {
	p.mu.Lock()
	old := p.fds[fd]
	p.fds[fd] = ev
	p.mu.Unlock()

	if removed := old &^ ev; removed != 0 {
		if kevs := eventsToKevents(fd, removed, unix.EV_DELETE); len(kevs) > 0 {
			_, _ = unix.Kevent(p.kq, kevs, nil, nil)
		}
	}
	if added := ev &^ old; added != 0 {
		if kevs := eventsToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE); len(kevs) > 0 {
			if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *kqueuePoller) unregisterFD(fd int) error {
	p.mu.Lock()
	old := p.fds[fd]
	delete(p.fds, fd)
	p.mu.Unlock()
	if kevs := eventsToKevents(fd, old, unix.EV_DELETE); len(kevs) > 0 {
		_, _ = unix.Kevent(p.kq, kevs, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) wait(timeoutMs int, out []readyEvent) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	byFD := make(map[int]readyEvent)
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd == p.wakeR {
			drainWake(p.wakeR)
			continue
		}
		re := byFD[fd]
		re.fd = fd
		switch p.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			re.readable = true
		case unix.EVFILT_WRITE:
			re.writable = true
		}
		if p.eventBuf[i].Flags&unix.EV_EOF != 0 {
			re.hup = true
		}
		if p.eventBuf[i].Flags&unix.EV_ERROR != 0 {
			re.errored = true
		}
		byFD[fd] = re
	}

	count := 0
	for _, re := range byFD {
		if count >= len(out) {
			break
		}
		out[count] = re
		count++
	}
	return count, nil
}

func (p *Port) initPlatform() error {
	impl := &kqueuePoller{}
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
	if kp, ok := p.impl.(*kqueuePoller); ok {
		writeWake(kp.wakeW)
	}
}
