// Package rep implements the REP socket pattern: a ROUTER that echoes
// back the traceback stack unchanged before handing request bodies to
// the caller, then pins the reply route so Send goes back the way the
// request came.
package rep

import (
	"context"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/router"
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

// Options configures a Rep.
type Options struct {
	Socket socket.Options

	// Mandatory and ProbeRouter pass straight through to the embedded
	// router.Router; REP never changes how a pipe gets attached.
	Mandatory   bool
	ProbeRouter bool
}

// Rep is a REP socket.
type Rep struct {
	*socket.Socket

	router *router.Router

	sendingReply  bool
	requestBegins bool
}

// New builds a REP and returns its *socket.Socket; see dealer.New's doc
// comment for why the concrete type is not returned directly.
//
// Rep cannot embed *router.Router the way req embeds its own fq/lb: the
// ROUTER state machine (prefetch, identity table, current_out) is
// substantial and router.go already owns it privately. Instead Rep
// holds a router.Router value built via router.NewBare, a constructor
// that skips socket.New, so there's exactly one *socket.Socket in the
// stack, Rep's own, and router.Router's methods are called directly on
// it rather than through a second Socket.
func New(ctx context.Context, opts Options) *socket.Socket {
	r := &Rep{
		router: router.NewBare(router.Options{
			Mandatory:   opts.Mandatory,
			ProbeRouter: opts.ProbeRouter,
		}),
		requestBegins: true,
	}
	r.Socket = socket.New(ctx, opts.Socket)
	r.Socket.Pattern = r
	return r.Socket
}

func (r *Rep) AttachPipe(p *qpipe.Pipe)     { r.router.AttachPipe(p) }
func (r *Rep) ReadActivated(p *qpipe.Pipe)  { r.router.ReadActivated(p) }
func (r *Rep) WriteActivated(p *qpipe.Pipe) { r.router.WriteActivated(p) }
func (r *Rep) PipeTerminated(p *qpipe.Pipe) { r.router.PipeTerminated(p) }

// Send requires a reply to be expected: the reply is pushed straight
// through router.Send, which already knows the destination pipe from
// the identity frame Recv delivered first.
func (r *Rep) Send(m *wire.Msg) error {
	if !r.sendingReply {
		return socket.ErrFSM
	}

	more := m.More
	if err := r.router.Send(m); err != nil {
		return err
	}
	if !more {
		r.sendingReply = false
	}
	return nil
}

// Recv requires no reply to be pending; at the start of a request it
// first copies the traceback stack (identity plus any further routing
// labels) straight to the reply pipe via router.Send until the empty
// bottom delimiter is forwarded, rolling back and restarting on a
// malformed traceback, then delivers the actual request frames to the
// caller.
func (r *Rep) Recv(m *wire.Msg) error {
	if r.sendingReply {
		return socket.ErrFSM
	}

	if r.requestBegins {
		for {
			if err := r.router.Recv(m); err != nil {
				return err
			}

			if m.More {
				bottom := len(m.Body) == 0
				if err := r.router.Send(m); err != nil {
					return err
				}
				if bottom {
					break
				}
			} else {
				if err := r.router.Rollback(); err != nil {
					return err
				}
			}
		}
		r.requestBegins = false
	}

	if err := r.router.Recv(m); err != nil {
		return err
	}

	if !m.More {
		r.sendingReply = true
		r.requestBegins = true
	}
	return nil
}

// HasIn is false while sending a reply.
func (r *Rep) HasIn() bool {
	if r.sendingReply {
		return false
	}
	return r.router.HasIn()
}

// HasOut is only meaningful while sending a reply.
func (r *Rep) HasOut() bool {
	if !r.sendingReply {
		return false
	}
	return r.router.HasOut()
}

// Rollback delegates to the embedded router.
func (r *Rep) Rollback() error { return r.router.Rollback() }
