//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux Poller backend.
type epollPoller struct {
	epfd  int
	flags map[int]uint32 // fd -> currently armed epoll event mask
}

func newPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd, flags: make(map[int]uint32)}, nil
}

func (p *epollPoller) Add(fd int) error {
	p.flags[fd] = 0
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd)})
}

func (p *epollPoller) Remove(fd int) error {
	delete(p.flags, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) setFlag(fd int, bit uint32, on bool) error {
	mask, ok := p.flags[fd]
	if !ok {
		return unix.EBADF
	}
	if on {
		mask |= bit
	} else {
		mask &^= bit
	}
	p.flags[fd] = mask
	ev := &unix.EpollEvent{Fd: int32(fd), Events: mask}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) SetRead(fd int, on bool) error {
	return p.setFlag(fd, unix.EPOLLIN, on)
}

func (p *epollPoller) SetWrite(fd int, on bool) error {
	return p.setFlag(fd, unix.EPOLLOUT, on)
}

func (p *epollPoller) Wait(timeout time.Duration) ([]PollEvent, error) {
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
	}
	var buf [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, buf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]PollEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := buf[i]
		out = append(out, PollEvent{
			Fd:       int(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			EOF:      ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
