// Package socket implements the socket-pattern state machine shared by
// DEALER, ROUTER, REQ and REP: pipe attachment/identification, the
// event system, and the non-blocking Send/Recv/HasIn/HasOut/Rollback
// contract every pattern is built on.
package socket

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/wire"
)

// ErrStopped is the cause passed to Socket's context cancellation on Stop.
var ErrStopped = errors.New("socket: stopped")

// Socket is the shared base every pattern (dealer.Dealer, router.Router,
// req.Req, rep.Rep) embeds. It owns the pipe set, the event system, and
// the self-pipe signaler a reactor polls for readiness; the pattern
// itself owns routing/envelope logic and is reached through the Pattern
// field, set once by the concrete type's constructor right after it
// embeds this Socket.
type Socket struct {
	*zerolog.Logger

	ID xid.ID

	ctx    context.Context
	cancel context.CancelCauseFunc

	started atomic.Bool
	wgstart sync.WaitGroup
	stopped atomic.Bool

	// mu serializes all calls into Pattern plus pipe bookkeeping: a
	// socket is thread-affine per spec's concurrency model (single
	// "socket thread"), and in Go that affinity is enforced with a
	// mutex rather than left as an unsynchronized caller contract.
	mu    sync.Mutex
	pipes map[*qpipe.Pipe]struct{}

	// Pattern is the concrete pattern (dealer/router/req/rep) this
	// socket dispatches to. Must be set before Start.
	Pattern Pattern

	Options Options

	// KV is a generic thread-safe key-value store for pattern-specific
	// extra state, mirroring pipe.Pipe.KV.
	KV *xsync.MapOf[string, any]

	metrics *Metrics

	evch   chan *Event
	evwg   sync.WaitGroup
	events map[string][]*Handler
	evseq  atomic.Uint64

	// sigr/sigw are a self-pipe a reactor can add_fd on: Poll callers
	// fetch this FD the same way ZMQ_FD is fetched, and ping() wakes
	// anyone blocked in the platform poller whenever pipe readiness may
	// have changed.
	sigr, sigw *os.File
}

// New returns a new socket derived from ctx, configured via opts (the
// last one wins for scalar fields, Handlers accumulate). Callers never
// call New directly, but use dealer.New/router.New/req.New/rep.New,
// which call New internally and then set the returned Socket's Pattern
// field to themselves.
func New(ctx context.Context, opts ...Options) *Socket {
	s := &Socket{}
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	s.ID = xid.New()

	s.Options = DefaultOptions
	for _, o := range opts {
		if o.Logger != nil {
			s.Options.Logger = o.Logger
		}
		if o.PipeHWM > 0 {
			s.Options.PipeHWM = o.PipeHWM
		}
		if o.Conflate {
			s.Options.Conflate = true
		}
		if o.Registry != nil {
			s.Options.Registry = o.Registry
		}
		s.Options.Handlers = append(s.Options.Handlers, o.Handlers...)
	}

	s.pipes = make(map[*qpipe.Pipe]struct{})
	s.KV = xsync.NewMapOf[string, any]()
	s.evch = make(chan *Event, 16)
	s.events = make(map[string][]*Handler)

	r, w, err := os.Pipe()
	if err == nil {
		s.sigr, s.sigw = r, w
	}

	s.wgstart.Add(1)
	return s
}

// FD returns the readable end of the socket's self-pipe signaler, for
// use with a reactor.Reactor or a raw poll(2) call. Returns -1 if the
// pipe could not be created.
func (s *Socket) FD() int {
	if s.sigr == nil {
		return -1
	}
	return int(s.sigr.Fd())
}

// ping wakes anything polling s.FD() by writing one byte to the
// self-pipe; the byte stays there until Drain reads it.
func (s *Socket) ping() {
	if s.sigw == nil {
		return
	}
	select {
	case <-s.ctx.Done():
	default:
		_, _ = s.sigw.Write([]byte{0})
	}
}

// Drain consumes pending self-pipe bytes after a reactor wakes on FD().
func (s *Socket) Drain() {
	if s.sigr == nil {
		return
	}
	buf := make([]byte, 64)
	for {
		n, err := s.sigr.Read(buf)
		if n < len(buf) || err != nil {
			return
		}
	}
}

// Start applies Options and starts the event handler goroutine. Panics
// if Pattern was never set.
func (s *Socket) Start() {
	if s.Pattern == nil {
		panic("socket: Start called with nil Pattern")
	}
	if s.started.Swap(true) || s.stopped.Load() {
		return
	}

	if s.Options.Logger != nil {
		s.Logger = s.Options.Logger
	} else {
		l := zerolog.Nop()
		s.Logger = &l
	}
	s.metrics = newMetrics(s.Options.Registry, s.ID.String())
	s.attachEvent()

	s.evwg.Add(1)
	go s.eventHandler(&s.evwg)

	go func() {
		<-s.ctx.Done()
		s.Stop()
	}()

	s.Event(EVENT_START)
	s.wgstart.Done()
}

// Stop terminates every attached pipe, stops the event handler, and
// cancels the socket's context. Safe to call multiple times.
func (s *Socket) Stop() {
	if s.stopped.Swap(true) || !s.started.Load() {
		return
	}

	go s.sendEvent(&Event{Type: EVENT_STOP, done: make(chan struct{})}, nil, false)

	s.mu.Lock()
	pipes := make([]*qpipe.Pipe, 0, len(s.pipes))
	for p := range s.pipes {
		pipes = append(pipes, p)
	}
	s.mu.Unlock()
	for _, p := range pipes {
		p.Terminate()
	}

	s.cancel(ErrStopped)

	close(s.evch)
	s.evwg.Wait()

	if s.sigw != nil {
		s.sigw.Close()
	}
	if s.sigr != nil {
		s.sigr.Close()
	}
}

// Wait blocks until the socket starts and its event handler stops.
func (s *Socket) Wait() {
	s.wgstart.Wait()
	s.evwg.Wait()
}

// Started reports whether Start has been called.
func (s *Socket) Started() bool { return s.started.Load() }

// Stopped reports whether Stop has been called.
func (s *Socket) Stopped() bool { return s.stopped.Load() }

// AttachPipe registers p with the socket and its Pattern. Returns
// ErrTerm if the socket has already stopped.
func (s *Socket) AttachPipe(p *qpipe.Pipe) error {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return ErrTerm
	}
	s.pipes[p] = struct{}{}
	s.Pattern.AttachPipe(p)
	n := len(s.pipes)
	s.mu.Unlock()

	p.SetNotify(s.ReadActivated, s.WriteActivated)

	s.metrics.setPipes(n)
	s.Event(EVENT_PIPE_ATTACH, p)
	s.ping()
	return nil
}

// detachPipe removes p from the socket and notifies Pattern. Called
// either by the socket itself (Stop) or by whatever observes p's
// Terminated() channel close (e.g. a reactor handler).
func (s *Socket) detachPipe(p *qpipe.Pipe) {
	s.mu.Lock()
	if _, ok := s.pipes[p]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pipes, p)
	s.Pattern.PipeTerminated(p)
	n := len(s.pipes)
	s.mu.Unlock()

	s.metrics.setPipes(n)
	s.Event(EVENT_PIPE_DETACH, p)
	s.ping()
}

// WatchPipe spawns a goroutine that calls detachPipe once p terminates.
// Callers attaching a pipe they don't otherwise poll should call this
// right after AttachPipe so termination is still observed.
func (s *Socket) WatchPipe(p *qpipe.Pipe) {
	go func() {
		<-p.Terminated()
		s.detachPipe(p)
	}()
}

// ReadActivated notifies Pattern that p has become newly readable.
func (s *Socket) ReadActivated(p *qpipe.Pipe) {
	s.mu.Lock()
	s.Pattern.ReadActivated(p)
	s.mu.Unlock()
	s.ping()
}

// WriteActivated notifies Pattern that p has become newly writable.
func (s *Socket) WriteActivated(p *qpipe.Pipe) {
	s.mu.Lock()
	s.Pattern.WriteActivated(p)
	s.mu.Unlock()
	s.ping()
}

// Send enqueues one frame of an outgoing message, returning
// ErrWouldBlock if no pipe currently accepts it.
func (s *Socket) Send(m *wire.Msg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.Pattern.Send(m)
	if err == nil {
		s.metrics.incFramesOut()
	} else if errors.Is(err, ErrWouldBlock) {
		s.metrics.incWouldBlock()
		go s.sendEvent(&Event{Type: EVENT_WOULD_BLOCK, done: make(chan struct{})}, nil, true)
	}
	return err
}

// Recv dequeues one frame of an incoming message into m, returning
// ErrWouldBlock if nothing is currently available.
func (s *Socket) Recv(m *wire.Msg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.Pattern.Recv(m)
	if err == nil {
		s.metrics.incFramesIn()
	} else if errors.Is(err, ErrWouldBlock) {
		s.metrics.incWouldBlock()
	}
	return err
}

// HasIn reports whether Recv would currently succeed.
func (s *Socket) HasIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Pattern.HasIn()
}

// HasOut reports whether Send would currently succeed.
func (s *Socket) HasOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Pattern.HasOut()
}

// Rollback discards any partially-written outbound message.
func (s *Socket) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Pattern.Rollback()
}
