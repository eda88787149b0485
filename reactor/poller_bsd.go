//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD/macOS Poller backend: separate
// EVFILT_READ/EVFILT_WRITE registrations per fd, added/deleted
// individually rather than updated in place.
type kqueuePoller struct {
	kq      int
	pollin  map[int]bool
	pollout map[int]bool
}

func newPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kq:      kq,
		pollin:  make(map[int]bool),
		pollout: make(map[int]bool),
	}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	p.pollin[fd] = false
	p.pollout[fd] = false
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	if p.pollin[fd] {
		p.kevent(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}
	if p.pollout[fd] {
		p.kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	delete(p.pollin, fd)
	delete(p.pollout, fd)
	return nil
}

func (p *kqueuePoller) kevent(fd int, filter int16, flags uint16) error {
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) SetRead(fd int, on bool) error {
	if on && !p.pollin[fd] {
		p.pollin[fd] = true
		return p.kevent(fd, unix.EVFILT_READ, unix.EV_ADD)
	}
	if !on && p.pollin[fd] {
		p.pollin[fd] = false
		return p.kevent(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}
	return nil
}

func (p *kqueuePoller) SetWrite(fd int, on bool) error {
	if on && !p.pollout[fd] {
		p.pollout[fd] = true
		return p.kevent(fd, unix.EVFILT_WRITE, unix.EV_ADD)
	}
	if !on && p.pollout[fd] {
		p.pollout[fd] = false
		return p.kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	return nil
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]PollEvent, error) {
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	buf := make([]unix.Kevent_t, 128)
	n, err := unix.Kevent(p.kq, nil, buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]PollEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := buf[i]
		fd := int(ev.Ident)
		pe := PollEvent{Fd: fd, EOF: ev.Flags&unix.EV_EOF != 0}
		switch ev.Filter {
		case unix.EVFILT_READ:
			pe.Readable = true
		case unix.EVFILT_WRITE:
			pe.Writable = true
		}
		out = append(out, pe)
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
