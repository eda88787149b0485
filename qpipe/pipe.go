// Package qpipe provides the in-process transport a socket pattern
// writes frames into and reads frames out of.
//
// fq/lb/DEALER/ROUTER/REQ/REP all assume a concrete pipe contract
// (write/read/flush/check-write/rollback/terminate), so this package
// supplies one, backed by a buffered channel with a recover()-guarded
// Close. Write does not hand frames straight to the channel: a writer
// stages frames locally and only makes them visible to the reader on
// Flush, which is what lets Rollback discard an in-progress multi-part
// message for free instead of having to un-send anything already
// delivered.
package qpipe

import (
	"sync"
	"sync/atomic"

	"github.com/sockfix/sockfix/conflate"
	"github.com/sockfix/sockfix/wire"
)

// Pipe is one direction-paired in-process channel between a socket and
// whatever it is attached to: Write stages frames towards the peer
// (visible only after Flush), Read dequeues frames the peer has
// already flushed. Use NewPair to get both ends wired together.
type Pipe struct {
	mu      sync.Mutex
	pending []*wire.Msg // staged since last Flush; Rollback discards this

	out chan *wire.Msg // flushed frames, read by the peer end
	in  chan *wire.Msg // flushed frames written by the peer end
	hwm int

	// confOut/confIn back Write/Read instead of out/in when this pipe
	// was built by NewConflatedPair: only the newest message survives,
	// never blocks, and pending/hwm play no part.
	confOut *conflate.Buffer[*wire.Msg]
	confIn  *conflate.Buffer[*wire.Msg]

	// peer is the other end of this pair. Flush and Read call across it
	// to re-activate the peer's owning socket once this pipe becomes
	// readable or writable again.
	peer *Pipe

	notifyMu         sync.Mutex
	onReadActivated  func(*Pipe)
	onWriteActivated func(*Pipe)

	identity atomic.Pointer[[]byte]
	closed   atomic.Bool
	closeOut sync.Once
	term     chan struct{}
	termOnce sync.Once
}

// NewPair returns two Pipe endpoints wired to each other: writes flushed
// on a are reads on b and vice versa. hwm bounds how many flushed frames
// may sit unread on either side, the pipe's high water mark.
func NewPair(hwm int) (a, b *Pipe) {
	if hwm <= 0 {
		hwm = 1000
	}
	ab := make(chan *wire.Msg, hwm)
	ba := make(chan *wire.Msg, hwm)
	a = &Pipe{out: ab, in: ba, hwm: hwm, term: make(chan struct{})}
	b = &Pipe{out: ba, in: ab, hwm: hwm, term: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// NewConflatedPair returns two Pipe endpoints like NewPair, but each end
// keeps only the newest unwritten-yet message instead of queuing,
// ZeroMQ's ZMQ_CONFLATE socket option, backed by conflate.Buffer rather
// than a channel. Meant for single-part messages; multi-part More
// sequencing is not preserved across a dropped, conflated frame.
func NewConflatedPair() (a, b *Pipe) {
	ab := &conflate.Buffer[*wire.Msg]{}
	ba := &conflate.Buffer[*wire.Msg]{}
	a = &Pipe{confOut: ab, confIn: ba, term: make(chan struct{})}
	b = &Pipe{confOut: ba, confIn: ab, term: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// SetNotify registers the callbacks this pipe's owner wants invoked when
// the pipe transitions from not-ready to ready.
func (p *Pipe) SetNotify(onReadActivated, onWriteActivated func(*Pipe)) {
	p.notifyMu.Lock()
	p.onReadActivated, p.onWriteActivated = onReadActivated, onWriteActivated
	p.notifyMu.Unlock()
}

// notifyPeerRead tells peer's owner that peer just became readable.
// Dispatched on its own goroutine: p may be called from inside its own
// owning socket's lock, and the peer belongs to a different socket with
// its own lock, so a synchronous cross-call here could deadlock two
// sockets that happen to be sending to each other at the same time.
func (p *Pipe) notifyPeerRead() {
	if p.peer == nil {
		return
	}
	p.peer.notifyMu.Lock()
	fn := p.peer.onReadActivated
	p.peer.notifyMu.Unlock()
	if fn != nil {
		go fn(p.peer)
	}
}

// notifyPeerWrite tells peer's owner that peer just became writable.
func (p *Pipe) notifyPeerWrite() {
	if p.peer == nil {
		return
	}
	p.peer.notifyMu.Lock()
	fn := p.peer.onWriteActivated
	p.peer.notifyMu.Unlock()
	if fn != nil {
		go fn(p.peer)
	}
}

// Identity returns the identity this pipe's peer announced (ROUTER
// sockets key their outpipe map on this). Settable exactly once.
func (p *Pipe) Identity() []byte {
	if id := p.identity.Load(); id != nil {
		return *id
	}
	return nil
}

// SetIdentity records the peer identity associated with this pipe, the
// first time it is called; later calls are ignored, an identity blob is
// immutable after assignment.
func (p *Pipe) SetIdentity(id []byte) {
	cp := append([]byte(nil), id...)
	p.identity.CompareAndSwap(nil, &cp)
}

// CheckWrite reports whether a Write would have room to eventually
// flush. ROUTER consults it before writing (dropping the message unless
// Mandatory, in which case it returns ErrWouldBlock) and lb's HasOut
// uses it. Conflated pipes always have room.
func (p *Pipe) CheckWrite() bool {
	if p.closed.Load() {
		return false
	}
	if p.confOut != nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.out)+len(p.pending) < p.hwm
}

// Write stages one frame towards the peer. The frame is not visible to
// the peer's Read until Flush runs. Returns wire.ErrClosed if the pipe
// has been terminated, or wire.ErrWouldBlock if the high water mark is
// already reached; callers (lb, router) treat a refused Write as "this pipe
// is not currently usable." On a conflated pipe, Write takes effect
// immediately and never blocks.
func (p *Pipe) Write(m *wire.Msg) error {
	if p.closed.Load() {
		return wire.ErrClosed
	}
	if p.confOut != nil {
		p.confOut.Write(m)
		p.notifyPeerRead()
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.out)+len(p.pending) >= p.hwm {
		return wire.ErrWouldBlock
	}
	p.pending = append(p.pending, m)
	return nil
}

// Flush makes every frame staged since the last Flush (or Rollback)
// visible to the peer, stopping (and leaving the rest staged for the
// next Flush) if the channel is currently full. A no-op on a conflated
// pipe, whose Write already took effect.
func (p *Pipe) Flush() {
	if p.confOut != nil {
		return
	}

	p.mu.Lock()
	flushed := false
	if p.closed.Load() {
		p.pending = p.pending[:0]
	} else {
		i := 0
	loop:
		for ; i < len(p.pending); i++ {
			select {
			case p.out <- p.pending[i]:
			default:
				break loop
			}
		}
		flushed = i > 0
		p.pending = p.pending[:copy(p.pending, p.pending[i:])]
	}
	p.mu.Unlock()

	if flushed {
		p.notifyPeerRead()
	}
}

// Rollback discards every frame staged since the last Flush. Used by
// router.Router's Rollback (which REP calls on a malformed traceback) so
// a partly written message does not leave a dangling "more" frame
// queued.
func (p *Pipe) Rollback() {
	if p.confOut != nil {
		return
	}
	p.mu.Lock()
	p.pending = p.pending[:0]
	p.mu.Unlock()
}

// Read returns the next flushed frame from the peer without blocking.
// ok is false if nothing is currently available or the pipe is closed
// and drained.
func (p *Pipe) Read() (m *wire.Msg, ok bool) {
	if p.confIn != nil {
		m, ok = p.confIn.Read()
		return m, ok
	}
	select {
	case m, ok = <-p.in:
		if ok {
			p.notifyPeerWrite()
		}
		return m, ok
	default:
		return nil, false
	}
}

// HasIn reports whether a Read would return a frame right now.
func (p *Pipe) HasIn() bool {
	if p.confIn != nil {
		return p.confIn.CheckRead()
	}
	return len(p.in) > 0
}

// HasOut reports whether this end currently has room to Write, the same
// information as CheckWrite, exposed for patterns that just want a
// yes/no without attempting a write.
func (p *Pipe) HasOut() bool {
	return p.CheckWrite()
}

// Terminate closes this end's outbound channel; frames staged by Write
// but not yet flushed are not delivered. Safe to
// call more than once or concurrently with Write; later Writes observe
// wire.ErrClosed.
func (p *Pipe) Terminate() {
	p.closed.Store(true)
	p.closeOut.Do(func() {
		defer func() { recover() }()
		if p.out != nil {
			close(p.out)
		}
	})
	p.termOnce.Do(func() { close(p.term) })
}

// Terminated returns a channel closed once Terminate has run, for
// select-based shutdown waits.
func (p *Pipe) Terminated() <-chan struct{} {
	return p.term
}
