package sockfix

import (
	"time"

	"github.com/sockfix/sockfix/reactor"
	"github.com/sockfix/sockfix/socket"
)

// Poll event bits, mirroring the standard POLLIN/POLLOUT/POLLERR.
const (
	POLLIN  = 1 << 0
	POLLOUT = 1 << 1
	POLLERR = 1 << 2
)

// PollItem is one entry in a Poll call: Events are the bits the caller
// wants watched, Revents are filled in with the bits that actually fired.
type PollItem struct {
	Socket  *socket.Socket
	Events  int
	Revents int
}

type pollWake struct{ wake chan struct{} }

func (h *pollWake) InEvent() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}
func (h *pollWake) OutEvent()      {}
func (h *pollWake) TimerEvent(int) {}

// Poll multiplexes across items, fetching each socket's FD and current
// EVENTS and feeding them to the platform poller: for each item, fetch
// FD and EVENTS, feed to poll(2), and after wake consult EVENTS again to
// distinguish real readiness from edge noise. timeoutMs < 0 waits
// indefinitely, 0 polls once and returns immediately, >0 waits at most
// that long. Returns the number of items with a non-zero Revents.
func Poll(items []*PollItem, timeoutMs int) (int, error) {
	if n := pollOnce(items); n > 0 || timeoutMs == 0 {
		return n, nil
	}

	r, err := reactor.New()
	if err != nil {
		return 0, err
	}
	r.Start()
	defer r.Stop()

	wake := make(chan struct{}, 1)
	h := &pollWake{wake: wake}
	for _, it := range items {
		handle := r.AddFd(it.Socket.FD(), h)
		r.SetPollin(handle)
	}

	var deadline <-chan time.Time
	if timeoutMs > 0 {
		deadline = time.After(time.Duration(timeoutMs) * time.Millisecond)
	}

	for {
		select {
		case <-wake:
			for _, it := range items {
				it.Socket.Drain()
			}
			if n := pollOnce(items); n > 0 {
				return n, nil
			}
		case <-deadline:
			return pollOnce(items), nil
		}
	}
}

// pollOnce fills Revents from each item's current socket state without
// blocking and returns how many items have a non-zero Revents.
func pollOnce(items []*PollItem) int {
	n := 0
	for _, it := range items {
		it.Revents = 0
		if it.Events&POLLIN != 0 && it.Socket.HasIn() {
			it.Revents |= POLLIN
		}
		if it.Events&POLLOUT != 0 && it.Socket.HasOut() {
			it.Revents |= POLLOUT
		}
		if it.Revents != 0 {
			n++
		}
	}
	return n
}
