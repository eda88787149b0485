//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the fallback Poller backend for platforms without a
// dedicated epoll/kqueue implementation, built on unix.Poll.
type pollPoller struct {
	fds map[int]*pollState
}

type pollState struct {
	read, write bool
}

func newPoller() (Poller, error) {
	return &pollPoller{fds: make(map[int]*pollState)}, nil
}

func (p *pollPoller) Add(fd int) error {
	p.fds[fd] = &pollState{}
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	delete(p.fds, fd)
	return nil
}

func (p *pollPoller) SetRead(fd int, on bool) error {
	if s, ok := p.fds[fd]; ok {
		s.read = on
	}
	return nil
}

func (p *pollPoller) SetWrite(fd int, on bool) error {
	if s, ok := p.fds[fd]; ok {
		s.write = on
	}
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]PollEvent, error) {
	fds := make([]unix.PollFd, 0, len(p.fds))
	order := make([]int, 0, len(p.fds))
	for fd, s := range p.fds {
		var events int16
		if s.read {
			events |= unix.POLLIN
		}
		if s.write {
			events |= unix.POLLOUT
		}
		if events == 0 {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		order = append(order, fd)
	}

	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]PollEvent, 0, n)
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, PollEvent{
			Fd:       order[i],
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			EOF:      pfd.Revents&(unix.POLLHUP|unix.POLLERR) != 0,
		})
	}
	return out, nil
}

func (p *pollPoller) Close() error {
	return nil
}
