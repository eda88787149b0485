// Package sockfix is the public, C-shaped surface: a Context that
// creates sockets of each pattern type and resolves inproc:// bind/
// connect pairs between them, plus Poll for multiplexing across
// sockets.
package sockfix

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sockfix/sockfix/dealer"
	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/rep"
	"github.com/sockfix/sockfix/req"
	"github.com/sockfix/sockfix/router"
	"github.com/sockfix/sockfix/socket"
)

// SocketType selects which pattern Context.Socket builds.
type SocketType int

const (
	DEALER SocketType = iota
	ROUTER
	REQ
	REP
)

// ErrNoSupport is returned by Bind/Connect for any transport scheme
// other than inproc://; tcp:// and ipc:// transports are out of scope
// for this core.
var ErrNoSupport = socket.ErrNoSupport

var (
	ErrEndpointInUse    = errors.New("sockfix: endpoint already bound")
	ErrEndpointNotFound = errors.New("sockfix: endpoint not bound")
	ErrUnknownType      = errors.New("sockfix: unknown socket type")
)

// defaultPipeHWM is the high water mark of every pipe pair Connect
// creates; socket.Options.PipeHWM is not consulted.
const defaultPipeHWM = 1000

// Context owns the inproc endpoint registry shared by every socket it
// creates, scoping bind/connect resolution to one process.
type Context struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelCauseFunc

	bindings map[string]*socket.Socket
	sockets  []*socket.Socket
	closed   bool
}

// NewContext returns a new, empty Context. Mirrors zmq_ctx_new.
func NewContext() *Context {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Context{
		ctx:      ctx,
		cancel:   cancel,
		bindings: make(map[string]*socket.Socket),
	}
}

// Socket creates and starts a new socket of typ, scoped to this
// Context's lifetime. Mirrors zmq_socket.
func (c *Context) Socket(typ SocketType, opts socket.Options) (*socket.Socket, error) {
	var s *socket.Socket
	switch typ {
	case DEALER:
		s = dealer.New(c.ctx, dealer.Options{Socket: opts})
	case ROUTER:
		s = router.New(c.ctx, router.Options{Socket: opts})
	case REQ:
		s = req.New(c.ctx, req.Options{Socket: opts})
	case REP:
		s = rep.New(c.ctx, rep.Options{Socket: opts})
	default:
		return nil, ErrUnknownType
	}
	s.Start()

	c.mu.Lock()
	c.sockets = append(c.sockets, s)
	c.mu.Unlock()
	return s, nil
}

// Bind registers s as the listener for an inproc:// endpoint. Mirrors
// zmq_bind; tcp:// and ipc:// endpoints return ErrNoSupport.
func (c *Context) Bind(s *socket.Socket, endpoint string) error {
	name, err := inprocName(endpoint)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.bindings[name]; exists {
		return ErrEndpointInUse
	}
	c.bindings[name] = s
	return nil
}

// Unbind removes a prior Bind registration. Mirrors zmq_unbind.
func (c *Context) Unbind(endpoint string) error {
	name, err := inprocName(endpoint)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.bindings, name)
	c.mu.Unlock()
	return nil
}

// Connect creates a fresh in-process pipe pair and attaches one end to
// s, the other to whatever socket is currently bound at endpoint.
// Mirrors zmq_connect against an inproc:// transport, the only
// transport this core implements.
func (c *Context) Connect(s *socket.Socket, endpoint string) error {
	name, err := inprocName(endpoint)
	if err != nil {
		return err
	}

	c.mu.Lock()
	peer, ok := c.bindings[name]
	c.mu.Unlock()
	if !ok {
		return ErrEndpointNotFound
	}

	var mine, theirs *qpipe.Pipe
	if s.Options.Conflate || peer.Options.Conflate {
		mine, theirs = qpipe.NewConflatedPair()
	} else {
		mine, theirs = qpipe.NewPair(defaultPipeHWM)
	}
	if err := s.AttachPipe(mine); err != nil {
		return err
	}
	if err := peer.AttachPipe(theirs); err != nil {
		s.WatchPipe(mine)
		mine.Terminate()
		return err
	}
	s.WatchPipe(mine)
	peer.WatchPipe(theirs)
	return nil
}

// Term stops every socket this Context created and releases the
// endpoint registry. Mirrors zmq_ctx_term.
func (c *Context) Term() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sockets := c.sockets
	c.sockets = nil
	c.bindings = nil
	c.mu.Unlock()

	c.cancel(socket.ErrTerm)
	for _, s := range sockets {
		s.Stop()
	}
}

func inprocName(endpoint string) (string, error) {
	const prefix = "inproc://"
	if !strings.HasPrefix(endpoint, prefix) {
		return "", ErrNoSupport
	}
	return strings.TrimPrefix(endpoint, prefix), nil
}
