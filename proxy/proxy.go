// Package proxy implements the bidirectional forwarder between a
// frontend and backend socket, with optional traffic capture and an
// optional control socket for pause/resume/terminate.
package proxy

import (
	"context"
	"errors"

	"github.com/sockfix/sockfix/reactor"
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

// ControlCommand is a command frame recognized on the control socket.
type ControlCommand string

const (
	CmdPause     ControlCommand = "PAUSE"
	CmdResume    ControlCommand = "RESUME"
	CmdTerminate ControlCommand = "TERMINATE"
)

type state int

const (
	stateActive state = iota
	statePaused
	stateTerminated
)

// Options configures Run. Backend and Frontend are required; Capture
// and Control are both optional (nil to disable).
type Options struct {
	Frontend *socket.Socket
	Backend  *socket.Socket
	Capture  *socket.Socket
	Control  *socket.Socket
}

type wakeHandler struct{ wake chan struct{} }

func (h *wakeHandler) InEvent() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}
func (h *wakeHandler) OutEvent()      {}
func (h *wakeHandler) TimerEvent(int) {}

// Run drives frontend<->backend forwarding until ctx is canceled or a
// TERMINATE command arrives on opts.Control; blocks the calling
// goroutine.
func Run(ctx context.Context, opts Options) error {
	r, err := reactor.New()
	if err != nil {
		return err
	}
	r.Start()
	defer r.Stop()

	wake := make(chan struct{}, 1)
	h := &wakeHandler{wake: wake}

	fh := r.AddFd(opts.Frontend.FD(), h)
	r.SetPollin(fh)
	bh := r.AddFd(opts.Backend.FD(), h)
	r.SetPollin(bh)
	if opts.Control != nil {
		chh := r.AddFd(opts.Control.FD(), h)
		r.SetPollin(chh)
	}

	st := stateActive

	for {
		if opts.Control != nil {
			for opts.Control.HasIn() {
				cmd, err := recvCommand(opts.Control)
				if err != nil {
					break
				}
				switch cmd {
				case CmdPause:
					st = statePaused
				case CmdResume:
					st = stateActive
				case CmdTerminate:
					st = stateTerminated
				}
			}
		}
		if st == stateTerminated {
			return nil
		}

		progressed := false
		if st == stateActive {
			if opts.Frontend.HasIn() && opts.Backend.HasOut() {
				if err := forward(ctx, wake, opts.Frontend, opts.Backend, nil); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				progressed = true
			}
			if opts.Backend.HasIn() && opts.Frontend.HasOut() {
				if err := forward(ctx, wake, opts.Backend, opts.Frontend, opts.Capture); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				progressed = true
			}
		}

		if progressed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
			opts.Frontend.Drain()
			opts.Backend.Drain()
			if opts.Control != nil {
				opts.Control.Drain()
			}
		}
	}
}

// forward transfers one complete multi-part message from src to dst,
// copying each frame to capture (if non-nil) before forwarding it. A
// transfer that has begun always completes, never interleaving with the
// other direction, so multi-part atomicity holds.
func forward(ctx context.Context, wake <-chan struct{}, src, dst, capture *socket.Socket) error {
	for {
		var m wire.Msg
		if err := src.Recv(&m); err != nil {
			return err
		}

		if capture != nil {
			cp := wire.Msg{More: m.More}
			cp.CopyBody(m.Body)
			if err := sendBlocking(ctx, wake, capture, &cp); err != nil {
				return err
			}
		}

		more := m.More
		if err := sendBlocking(ctx, wake, dst, &m); err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// sendBlocking retries dst.Send(m) until it is accepted, waking on wake
// (fed by the reactor whenever any tracked socket's readiness may have
// changed, including dst becoming writable again) instead of spinning.
// A dropped frame mid-message would corrupt the peer's framing, so a
// full high water mark here blocks the whole proxy loop rather than
// aborting the transfer.
func sendBlocking(ctx context.Context, wake <-chan struct{}, dst *socket.Socket, m *wire.Msg) error {
	for {
		err := dst.Send(m)
		if err == nil {
			return nil
		}
		if !errors.Is(err, socket.ErrWouldBlock) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

func recvCommand(s *socket.Socket) (ControlCommand, error) {
	var m wire.Msg
	if err := s.Recv(&m); err != nil {
		return "", err
	}
	return ControlCommand(m.Body), nil
}
