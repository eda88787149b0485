// Package req implements the REQ socket pattern: a strict send/recv
// alternation layered on DEALER's round-robin send and fair-queued
// recv, with an empty "bottom" delimiter framing every request so a
// REP peer can echo back a routable envelope.
package req

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/queue"
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

// Options configures a Req.
type Options struct {
	Socket socket.Options

	// ProbeRouter mirrors dealer.Options.ProbeRouter: REQ attaches pipes
	// the same way DEALER does, so the probe applies here too.
	ProbeRouter bool

	// Correlate enables ZMQ_REQ_CORRELATE: a 4-byte random request id
	// frame is sent before the bottom delimiter and checked back on
	// recv, rejecting any reply that doesn't echo it.
	Correlate bool

	// Relaxed maps to ZMQ_REQ_RELAXED: when true, a second Send while
	// still awaiting a reply terminates the stale reply pipe and starts
	// a new request instead of failing with ErrFSM.
	Relaxed bool
}

// Req is a REQ socket.
type Req struct {
	*socket.Socket

	probeRouter bool
	correlate   bool
	strict      bool

	fq *queue.Fq
	lb *queue.Lb

	receivingReply bool
	messageBegins  bool
	replyPipe      *qpipe.Pipe
	requestID      uint32
}

// New builds a REQ and returns its *socket.Socket; see dealer.New's doc
// comment for why the concrete type is not returned directly.
func New(ctx context.Context, opts Options) *socket.Socket {
	r := &Req{
		probeRouter:   opts.ProbeRouter,
		correlate:     opts.Correlate,
		strict:        !opts.Relaxed,
		fq:            queue.NewFq(),
		lb:            queue.NewLb(),
		messageBegins: true,
		requestID:     randomUint32(),
	}
	r.Socket = socket.New(ctx, opts.Socket)
	r.Socket.Pattern = r
	return r.Socket
}

func randomUint32() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.BigEndian.Uint32(buf[:])
}

// AttachPipe wires p into fq/lb exactly like dealer.Dealer; REQ attaches
// pipes the same way DEALER does, probe included.
func (r *Req) AttachPipe(p *qpipe.Pipe) {
	if r.probeRouter {
		probe := wire.NewMsg()
		_ = p.Write(probe)
		p.Flush()
	}
	r.fq.Attach(p)
	r.lb.Attach(p)
}

func (r *Req) ReadActivated(p *qpipe.Pipe)  { r.fq.Activated(p) }
func (r *Req) WriteActivated(p *qpipe.Pipe) { r.lb.Activated(p) }

// PipeTerminated also clears replyPipe if it was the pipe the current
// reply is expected from.
func (r *Req) PipeTerminated(p *qpipe.Pipe) {
	if r.replyPipe == p {
		r.replyPipe = nil
	}
	r.fq.PipeTerminated(p)
	r.lb.PipeTerminated(p)
}

// Send enforces the {sending, awaiting-reply} FSM: a request in
// flight can't be re-sent unless Relaxed, a new request emits the
// optional correlation id plus the bottom delimiter and pins
// replyPipe, and stale replies left over from a prior request are
// drained before the new frames go out.
func (r *Req) Send(m *wire.Msg) error {
	if r.receivingReply {
		if r.strict {
			return socket.ErrFSM
		}
		if r.replyPipe != nil {
			r.replyPipe.Terminate()
		}
		r.receivingReply = false
		r.messageBegins = true
	}

	if r.messageBegins {
		r.replyPipe = nil

		if r.correlate {
			r.requestID++
			id := wire.NewMsg()
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, r.requestID)
			id.CopyBody(buf)
			id.More = true

			var used *qpipe.Pipe
			if err := r.lb.SendPipe(id, &used); err != nil {
				return socket.ErrWouldBlock
			}
			r.replyPipe = used
		}

		bottom := wire.NewMsg()
		bottom.More = true
		var used *qpipe.Pipe
		if err := r.lb.SendPipe(bottom, &used); err != nil {
			return socket.ErrWouldBlock
		}
		r.replyPipe = used
		r.messageBegins = false

		// Drain any reply still sitting from a previous, already
		// completed request so it can never be mistaken for this one's.
		for {
			if _, err := r.fq.Recv(); err != nil {
				break
			}
		}
		// The drain demotes every pipe it finds empty; the reply is
		// expected on replyPipe, so put it back into the read set.
		r.fq.Activated(r.replyPipe)
	}

	more := m.More
	if err := r.lb.Send(m); err != nil {
		return socket.ErrWouldBlock
	}

	if !more {
		r.receivingReply = true
		r.messageBegins = true
	}
	return nil
}

// recvReplyPipe reads via fq, discarding any frame that didn't arrive
// on replyPipe.
func (r *Req) recvReplyPipe() (*wire.Msg, error) {
	for {
		frame, pipe, err := r.fq.RecvPipe()
		if err != nil {
			return nil, err
		}
		if r.replyPipe == nil || pipe == r.replyPipe {
			return frame, nil
		}
	}
}

// drainRestOfMessage reads and discards frames until the current
// message's final (More=false) frame, used when a malformed or
// mismatched reply prefix is detected mid-envelope.
func (r *Req) drainRestOfMessage(frame *wire.Msg) error {
	for frame.More {
		next, err := r.recvReplyPipe()
		if err != nil {
			return err
		}
		frame = next
	}
	return nil
}

// Recv requires a reply to be pending; it strips the correlation id (if
// enabled) and the bottom delimiter from the envelope before handing
// body frames to the caller.
func (r *Req) Recv(m *wire.Msg) error {
	if !r.receivingReply {
		return socket.ErrFSM
	}

	for r.messageBegins {
		frame, err := r.recvReplyPipe()
		if err != nil {
			return socket.ErrWouldBlock
		}

		if r.correlate {
			wantID := make([]byte, 4)
			binary.BigEndian.PutUint32(wantID, r.requestID)
			if !frame.More || len(frame.Body) != 4 || frame.Body[0] != wantID[0] ||
				frame.Body[1] != wantID[1] || frame.Body[2] != wantID[2] || frame.Body[3] != wantID[3] {
				if err := r.drainRestOfMessage(frame); err != nil {
					return socket.ErrWouldBlock
				}
				continue
			}
			frame, err = r.recvReplyPipe()
			if err != nil {
				return socket.ErrWouldBlock
			}
		}

		if !frame.More || len(frame.Body) != 0 {
			if err := r.drainRestOfMessage(frame); err != nil {
				return socket.ErrWouldBlock
			}
			continue
		}

		r.messageBegins = false
	}

	frame, err := r.recvReplyPipe()
	if err != nil {
		return socket.ErrWouldBlock
	}
	*m = *frame

	if !frame.More {
		r.receivingReply = false
		r.messageBegins = true
	}
	return nil
}

// HasIn is only true while awaiting a reply.
func (r *Req) HasIn() bool {
	if !r.receivingReply {
		return false
	}
	return r.fq.HasIn()
}

// HasOut is false while awaiting a reply.
func (r *Req) HasOut() bool {
	if r.receivingReply {
		return false
	}
	return r.lb.HasOut()
}

// Rollback is a no-op: frames of an unfinished request stay staged on
// the pipe lb chose and are not discarded here.
func (r *Req) Rollback() error { return nil }
