package queue

import (
	"errors"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/wire"
	"github.com/sockfix/sockfix/zarray"
)

// ErrWouldBlock is returned when no active pipe currently yields a frame.
var ErrWouldBlock = errors.New("queue: would block")

type fqEntry struct {
	pipe *qpipe.Pipe
	idx  int
}

func (e *fqEntry) ArrayIndex() int     { return e.idx }
func (e *fqEntry) SetArrayIndex(i int) { e.idx = i }

// Fq fair-queues incoming frames across a set of pipes, symmetric to Lb
// and built on the same active/inactive partition. Once a multi-frame
// message has begun on a pipe, Recv keeps returning frames from that
// same pipe until its final (More==false) frame, regardless of
// readiness elsewhere: mid-message affinity.
type Fq struct {
	pipes   zarray.Array[*fqEntry]
	byPipe  map[*qpipe.Pipe]*fqEntry
	active  int
	current int
	more    bool
}

// NewFq returns an empty Fq.
func NewFq() *Fq {
	return &Fq{byPipe: make(map[*qpipe.Pipe]*fqEntry)}
}

// Attach adds p to the set of pipes this Fq reads from, immediately
// active.
func (f *Fq) Attach(p *qpipe.Pipe) {
	e := &fqEntry{pipe: p}
	f.pipes.PushBack(e)
	f.byPipe[p] = e
	f.activated(e)
}

// Activated promotes a pipe that was demoted (its reads were refused)
// back into the active prefix, e.g. once a reactor reports it readable
// again.
func (f *Fq) Activated(p *qpipe.Pipe) {
	if e, ok := f.byPipe[p]; ok {
		f.activated(e)
	}
}

func (f *Fq) activated(e *fqEntry) {
	if e.ArrayIndex() < f.active {
		return // already active; a duplicate activation notice is a no-op
	}
	f.pipes.Swap(e.ArrayIndex(), f.active)
	f.active++
}

// PipeTerminated removes p, preserving the active/inactive partition.
func (f *Fq) PipeTerminated(p *qpipe.Pipe) {
	e, ok := f.byPipe[p]
	if !ok {
		return
	}
	index := e.ArrayIndex()

	if index < f.active {
		f.active--
		f.pipes.Swap(index, f.active)
		if f.current == f.active {
			f.current = 0
		}
	}

	f.pipes.Erase(e)
	delete(f.byPipe, p)
}

// Recv reads the next frame in fair-queued order.
func (f *Fq) Recv() (*wire.Msg, error) {
	m, _, err := f.RecvPipe()
	return m, err
}

// RecvPipe behaves like Recv but additionally reports which pipe the
// frame came from.
func (f *Fq) RecvPipe() (*wire.Msg, *qpipe.Pipe, error) {
	for f.active > 0 {
		e := f.pipes.At(f.current)
		m, ok := tryRead(e.pipe)
		if ok {
			f.more = m.More
			p := e.pipe
			if !m.More {
				f.current = (f.current + 1) % f.active
			}
			return m, p, nil
		}

		// Demote: this pipe has nothing ready right now.
		f.active--
		if f.current < f.active {
			f.pipes.Swap(f.current, f.active)
		} else {
			f.current = 0
		}
	}
	return nil, nil, ErrWouldBlock
}

// HasIn reports whether a subsequent Recv would succeed without
// blocking. May itself demote pipes found to be empty.
func (f *Fq) HasIn() bool {
	for f.active > 0 {
		e := f.pipes.At(f.current)
		if e.pipe.HasIn() {
			return true
		}
		f.active--
		f.pipes.Swap(f.current, f.active)
		if f.current == f.active {
			f.current = 0
		}
	}
	return false
}

// Len returns the number of pipes currently attached (active or not).
func (f *Fq) Len() int {
	return f.pipes.Len()
}

// tryRead performs a non-blocking read off p: HasIn is consulted first,
// then Pipe.Read (itself non-blocking) takes the frame.
func tryRead(p *qpipe.Pipe) (*wire.Msg, bool) {
	if !p.HasIn() {
		return nil, false
	}
	m, ok := p.Read()
	return m, ok
}
