// Package dealer implements the DEALER socket pattern: round-robin
// send over Lb, fair-queued recv over Fq, no envelope.
package dealer

import (
	"context"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/queue"
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

// Options configures a Dealer.
type Options struct {
	Socket socket.Options

	// ProbeRouter, when true, writes and flushes a zero-length frame on
	// every newly attached pipe so a peering ROUTER learns this
	// DEALER's identity immediately.
	ProbeRouter bool
}

// Dealer is a DEALER socket: no envelope, round-robin send, fair-queued
// recv, imposes no ordering relationship between what it sends and what
// it receives.
type Dealer struct {
	*socket.Socket

	probeRouter bool
	fq          *queue.Fq
	lb          *queue.Lb
}

// New builds a DEALER and returns its *socket.Socket, the type every
// caller (including sockfix) actually holds and calls Start/Stop/
// AttachPipe/Send/Recv/HasIn/HasOut/Rollback on. It deliberately does
// not return *Dealer: Dealer implements socket.Pattern with methods of
// the exact same names and signatures Socket itself exposes
// (Send/Recv/HasIn/HasOut/Rollback/AttachPipe/...), so a *Dealer's own
// methods would shadow the embedded Socket's, silently bypassing its
// mutex, metrics and event dispatch. Handing back *socket.Socket
// instead removes that footgun entirely; Dealer stays reachable (for
// tests or introspection) via a type assertion on Socket.Pattern.
func New(ctx context.Context, opts Options) *socket.Socket {
	d := &Dealer{
		probeRouter: opts.ProbeRouter,
		fq:          queue.NewFq(),
		lb:          queue.NewLb(),
	}
	d.Socket = socket.New(ctx, opts.Socket)
	d.Socket.Pattern = d
	return d.Socket
}

// AttachPipe optionally probes the peer, then wires p into both fq (for
// recv) and lb (for send).
func (d *Dealer) AttachPipe(p *qpipe.Pipe) {
	if d.probeRouter {
		probe := wire.NewMsg()
		_ = p.Write(probe)
		p.Flush()
	}
	d.fq.Attach(p)
	d.lb.Attach(p)
}

// ReadActivated re-promotes p in fq.
func (d *Dealer) ReadActivated(p *qpipe.Pipe) { d.fq.Activated(p) }

// WriteActivated re-promotes p in lb.
func (d *Dealer) WriteActivated(p *qpipe.Pipe) { d.lb.Activated(p) }

// PipeTerminated removes p from both fq and lb.
func (d *Dealer) PipeTerminated(p *qpipe.Pipe) {
	d.fq.PipeTerminated(p)
	d.lb.PipeTerminated(p)
}

// Send round-robins m over lb.
func (d *Dealer) Send(m *wire.Msg) error {
	if err := d.lb.Send(m); err != nil {
		return socket.ErrWouldBlock
	}
	return nil
}

// Recv fair-queues the next frame from fq into m.
func (d *Dealer) Recv(m *wire.Msg) error {
	frame, err := d.fq.Recv()
	if err != nil {
		return socket.ErrWouldBlock
	}
	*m = *frame
	return nil
}

// HasIn reports whether fq currently has a frame ready.
func (d *Dealer) HasIn() bool { return d.fq.HasIn() }

// HasOut reports whether lb currently has room to send.
func (d *Dealer) HasOut() bool { return d.lb.HasOut() }

// Rollback is a no-op: DEALER imposes no envelope state to unwind.
func (d *Dealer) Rollback() error { return nil }
