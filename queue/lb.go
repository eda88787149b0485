// Package queue implements the two pipe-multiplexing strategies every
// socket pattern is built from: fair-queued input (Fq) and
// load-balanced output (Lb).
package queue

import (
	"errors"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/wire"
	"github.com/sockfix/sockfix/zarray"
)

// ErrNoPipes is returned by Lb.Send when no pipe is currently able to
// accept a message.
var ErrNoPipes = errors.New("queue: no pipes available")

type lbEntry struct {
	pipe *qpipe.Pipe
	idx  int
}

func (e *lbEntry) ArrayIndex() int     { return e.idx }
func (e *lbEntry) SetArrayIndex(i int) { e.idx = i }

// Lb round-robins outgoing messages across a set of pipes: active pipes
// occupy indices [0,active) of the array, current is the next pipe due
// a message, and a pipe that fails a write is swapped out of the active
// range instead of removed outright (it stays attached, just not
// eligible until reactivated). Not safe for concurrent use by multiple
// senders; a single socket pattern owns one Lb.
type Lb struct {
	pipes    zarray.Array[*lbEntry]
	byPipe   map[*qpipe.Pipe]*lbEntry
	active   int
	current  int
	more     bool
	dropping bool
}

// NewLb returns an empty Lb.
func NewLb() *Lb {
	return &Lb{byPipe: make(map[*qpipe.Pipe]*lbEntry)}
}

// Attach adds p to the set of pipes this Lb can send on, immediately
// active.
func (l *Lb) Attach(p *qpipe.Pipe) {
	e := &lbEntry{pipe: p}
	l.pipes.PushBack(e)
	l.byPipe[p] = e
	l.activated(e)
}

// Activated promotes a pipe that was demoted (its writes were refused)
// back into the active prefix, e.g. once a reactor reports it writable
// again.
func (l *Lb) Activated(p *qpipe.Pipe) {
	if e, ok := l.byPipe[p]; ok {
		l.activated(e)
	}
}

func (l *Lb) activated(e *lbEntry) {
	if e.ArrayIndex() < l.active {
		return // already active; a duplicate activation notice is a no-op
	}
	l.pipes.Swap(e.ArrayIndex(), l.active)
	l.active++
}

// PipeTerminated removes p, preserving the active/inactive partition and
// dropping any in-flight multi-part message if p was the pipe currently
// mid-send.
func (l *Lb) PipeTerminated(p *qpipe.Pipe) {
	e, ok := l.byPipe[p]
	if !ok {
		return
	}
	index := e.ArrayIndex()

	if index == l.current && l.more {
		l.dropping = true
	}

	if index < l.active {
		l.active--
		l.pipes.Swap(index, l.active)
		if l.current == l.active {
			l.current = 0
		}
	}

	l.pipes.Erase(e)
	delete(l.byPipe, p)
}

// Send round-robins m across the active pipes. Returns ErrNoPipes if
// none can currently accept it.
func (l *Lb) Send(m *wire.Msg) error {
	return l.SendPipe(m, nil)
}

// SendPipe behaves like Send but additionally reports, via *usedPipe
// (if non-nil), which pipe the message was written to.
func (l *Lb) SendPipe(m *wire.Msg, usedPipe **qpipe.Pipe) error {
	if l.dropping {
		l.more = m.More
		l.dropping = l.more
		return nil
	}

	for l.active > 0 {
		e := l.pipes.At(l.current)
		if err := e.pipe.Write(m); err == nil {
			if usedPipe != nil {
				*usedPipe = e.pipe
			}
			break
		}

		l.active--
		if l.current < l.active {
			l.pipes.Swap(l.current, l.active)
		} else {
			l.current = 0
		}
	}

	if l.active == 0 {
		return ErrNoPipes
	}

	l.more = m.More
	if !l.more {
		l.pipes.At(l.current).pipe.Flush()
		l.current = (l.current + 1) % l.active
	}
	return nil
}

// HasOut reports whether a Send would currently succeed, deactivating
// any pipe found to be full along the way.
func (l *Lb) HasOut() bool {
	if l.more {
		return true
	}
	for l.active > 0 {
		if l.pipes.At(l.current).pipe.CheckWrite() {
			return true
		}
		l.active--
		l.pipes.Swap(l.current, l.active)
		if l.current == l.active {
			l.current = 0
		}
	}
	return false
}

// Len returns the number of pipes currently attached (active or not).
func (l *Lb) Len() int {
	return l.pipes.Len()
}
