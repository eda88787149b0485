// Package router implements the ROUTER socket pattern: identity-prefixed
// envelopes, prefetched two-step delivery on recv, mandatory/raw-sock
// options.
package router

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/queue"
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

// Options configures a Router.
type Options struct {
	Socket socket.Options

	// Raw, when true, skips identity negotiation (every pipe gets a
	// synthetic identity immediately) and makes a zero-length final
	// frame sent to an identity terminate that pipe instead of being
	// forwarded.
	Raw bool

	// Mandatory makes Send return ErrHostUnreachable for an unknown
	// identity and ErrWouldBlock for a known-but-unwritable one,
	// instead of silently dropping the message.
	Mandatory bool

	// ProbeRouter writes a zero-length frame on attach, same as
	// dealer.Options.ProbeRouter.
	ProbeRouter bool
}

type outpipeEntry struct {
	pipe   *qpipe.Pipe
	active bool
}

// Router is a ROUTER socket.
type Router struct {
	*socket.Socket

	raw         bool
	mandatory   bool
	probeRouter bool

	fq        *queue.Fq
	anonymous map[*qpipe.Pipe]struct{}
	outpipes  *xsync.MapOf[string, *outpipeEntry]

	prefetched     bool
	identitySent   bool
	moreIn         bool
	currentOut     *qpipe.Pipe
	moreOut        bool
	nextPeerID     uint32
	prefetchedID   *wire.Msg
	prefetchedBody *wire.Msg
}

// New builds a ROUTER and returns its *socket.Socket; see dealer.New's
// doc comment for why the concrete type is not returned directly.
func New(ctx context.Context, opts Options) *socket.Socket {
	r := NewBare(opts)
	r.Socket = socket.New(ctx, opts.Socket)
	r.Socket.Pattern = r
	return r.Socket
}

// NewBare builds a Router without a backing *socket.Socket, for use by
// patterns that extend ROUTER (rep.Rep) and need to call its methods
// directly under their own Socket rather than stacking a second one.
// r.Socket is left nil; callers of NewBare must never call Start/Stop
// on the returned value, only its Pattern-shaped methods.
func NewBare(opts Options) *Router {
	return &Router{
		raw:         opts.Raw,
		mandatory:   opts.Mandatory,
		probeRouter: opts.ProbeRouter,
		fq:          queue.NewFq(),
		anonymous:   make(map[*qpipe.Pipe]struct{}),
		outpipes:    xsync.NewMapOf[string, *outpipeEntry](),
		nextPeerID:  randomSeed(),
	}
}

func randomSeed() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.BigEndian.Uint32(buf[:])
}

func (r *Router) nextIdentity() []byte {
	buf := make([]byte, 5)
	binary.BigEndian.PutUint32(buf[1:], r.nextPeerID)
	r.nextPeerID++
	return buf
}

// identifyPeer assigns p an identity: synthesized immediately for Raw,
// otherwise read from p's first frame (empty means synthesize too).
// Returns false if identification couldn't complete yet (no frame
// available) or the peer's claimed identity duplicates an existing one.
func (r *Router) identifyPeer(p *qpipe.Pipe) bool {
	var identity []byte

	if r.raw {
		identity = r.nextIdentity()
	} else {
		m, ok := p.Read()
		if !ok {
			return false
		}
		if len(m.Body) == 0 {
			identity = r.nextIdentity()
		} else {
			identity = append([]byte(nil), m.Body...)
			if _, exists := r.outpipes.Load(string(identity)); exists {
				return false
			}
		}
	}

	p.SetIdentity(identity)
	r.outpipes.Store(string(identity), &outpipeEntry{pipe: p, active: true})
	return true
}

// AttachPipe optionally probes, then attempts identification; a pipe
// that can't yet be identified waits in the anonymous set for a later
// ReadActivated retry.
func (r *Router) AttachPipe(p *qpipe.Pipe) {
	if r.probeRouter {
		probe := wire.NewMsg()
		_ = p.Write(probe)
		p.Flush()
	}

	if r.identifyPeer(p) {
		r.fq.Attach(p)
	} else {
		r.anonymous[p] = struct{}{}
	}
}

// ReadActivated retries identification for anonymous pipes, or
// otherwise just re-promotes p in fq.
func (r *Router) ReadActivated(p *qpipe.Pipe) {
	if _, ok := r.anonymous[p]; !ok {
		r.fq.Activated(p)
		return
	}
	if r.identifyPeer(p) {
		delete(r.anonymous, p)
		r.fq.Attach(p)
	}
}

// WriteActivated re-marks the outpipe entry for p active. Scans linearly
// since the outpipe map is keyed by identity, not by pipe.
func (r *Router) WriteActivated(p *qpipe.Pipe) {
	r.outpipes.Range(func(_ string, e *outpipeEntry) bool {
		if e.pipe == p {
			e.active = true
			return false
		}
		return true
	})
}

// PipeTerminated removes p from whichever of {anonymous, outpipes} it's
// in.
func (r *Router) PipeTerminated(p *qpipe.Pipe) {
	if _, ok := r.anonymous[p]; ok {
		delete(r.anonymous, p)
		return
	}
	r.outpipes.Delete(string(p.Identity()))
	r.fq.PipeTerminated(p)
	if p == r.currentOut {
		r.currentOut = nil
	}
}

// Send expects a ⟨identity, frames…⟩ envelope: the first frame selects
// currentOut by identity lookup (discarded, never forwarded); subsequent
// frames are written straight through until the final one, which
// flushes.
func (r *Router) Send(m *wire.Msg) error {
	if !r.moreOut {
		if !m.More {
			return nil // malformed prefix with no body: silently ignored
		}
		r.moreOut = true

		identity := string(m.Body)
		if e, ok := r.outpipes.Load(identity); ok {
			r.currentOut = e.pipe
			if !e.pipe.CheckWrite() {
				e.active = false
				r.currentOut = nil
				if r.mandatory {
					r.moreOut = false
					return socket.ErrWouldBlock
				}
			}
		} else if r.mandatory {
			r.moreOut = false
			return socket.ErrHostUnreachable
		}
		return nil
	}

	r.moreOut = m.More
	if r.currentOut != nil {
		switch {
		case r.raw && !r.moreOut && len(m.Body) == 0:
			r.currentOut.Terminate()
			r.currentOut = nil
		default:
			if err := r.currentOut.Write(m); err != nil {
				r.currentOut = nil
			} else if !r.moreOut {
				r.currentOut.Flush()
				r.currentOut = nil
			}
		}
	}
	return nil
}

// recvNonIdentity reads the next non-identity-flagged frame via fq,
// skipping any transport-delivered identity announcements. Shared by
// Recv and HasIn.
func (r *Router) recvNonIdentity() (*wire.Msg, *qpipe.Pipe, error) {
	frame, pipe, err := r.fq.RecvPipe()
	for err == nil && frame.IsIdentity() {
		frame, pipe, err = r.fq.RecvPipe()
	}
	return frame, pipe, err
}

// Recv delivers ⟨identity (more), frames…⟩: the identity is synthesized
// the moment a new message's first frame is read (stashing that frame
// for the very next call), then the stashed frame and all subsequent
// ones flow straight through.
func (r *Router) Recv(m *wire.Msg) error {
	if r.prefetched {
		if !r.identitySent {
			*m = *r.prefetchedID
			r.identitySent = true
		} else {
			*m = *r.prefetchedBody
			r.prefetched = false
		}
		r.moreIn = m.More
		return nil
	}

	frame, pipe, err := r.recvNonIdentity()
	if err != nil {
		return socket.ErrWouldBlock
	}

	if r.moreIn {
		r.moreIn = frame.More
		*m = *frame
		return nil
	}

	r.prefetchedBody = frame
	r.prefetched = true

	idMsg := wire.NewMsg()
	idMsg.CopyBody(pipe.Identity())
	idMsg.More = true
	*m = *idMsg
	r.identitySent = true
	return nil
}

// HasIn may itself prefetch (the same two-step Recv uses) to answer
// accurately.
func (r *Router) HasIn() bool {
	if r.moreIn || r.prefetched {
		return true
	}

	frame, pipe, err := r.recvNonIdentity()
	if err != nil {
		return false
	}

	r.prefetchedBody = frame
	idMsg := wire.NewMsg()
	idMsg.CopyBody(pipe.Identity())
	idMsg.More = true
	r.prefetchedID = idMsg

	r.prefetched = true
	r.identitySent = false
	return true
}

// HasOut is always true: only a per-frame write/CheckWrite tells the
// truth about a specific destination.
func (r *Router) HasOut() bool { return true }

// Rollback discards frames written since the last flush on current_out
// and clears the in-progress outbound routing state.
func (r *Router) Rollback() error {
	if r.currentOut != nil {
		r.currentOut.Rollback()
		r.currentOut = nil
		r.moreOut = false
	}
	return nil
}
