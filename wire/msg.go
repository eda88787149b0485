// Package wire defines the frame/message types that flow through a Socket.
//
// A Msg is the move-only, possibly multi-part unit every socket pattern
// sends and receives. It carries a byte payload, a More flag (another frame
// follows in the same logical message) and an Identity flag (this frame
// carries a peer identity, usually synthesized or echoed by a transport on
// reconnect). Frame boundaries are never split or coalesced by anything in
// this module.
package wire

import "sync"

// Value is an optional, arbitrary value a pattern or application can attach
// to a Msg. Not touched by Reset(); cleared explicitly by the owner.
// socket.Context rides in exactly this slot.
type Value any

// Msg is one frame of a (possibly multi-frame) message.
//
// Use Get to obtain one from a pool and Put to return it; a Msg obtained
// this way is always empty and ready to reuse, unless Borrowed.
type Msg struct {
	Body []byte // payload, may be zero-length; not referenced after Put unless Borrowed
	More bool   // another frame follows in this logical message
	Seq  int64  // sequence number; left to the caller, Pipe does not assign it

	identity bool // this frame carries a peer identity, not application data
	borrowed bool // caller asked to keep this Msg; Put becomes a no-op

	Value Value // optional attached value, not cleared by Reset
}

// NewMsg returns a new, empty Msg, not associated with any pool.
func NewMsg() *Msg {
	return &Msg{}
}

// IsIdentity reports whether this frame is a peer-identity announcement
// rather than application data (set by a transport on (re)connect).
func (m *Msg) IsIdentity() bool {
	return m != nil && m.identity
}

// SetIdentity marks or unmarks m as an identity-carrying frame.
func (m *Msg) SetIdentity(v bool) {
	m.identity = v
}

// Len returns the payload length.
func (m *Msg) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Body)
}

// Borrow marks m as not poolable: Put will leave it untouched.
// Must be undone (Unborrow) by whoever actually owns the Msg once done,
// or the memory is never returned to the pool.
func (m *Msg) Borrow() {
	m.borrowed = true
}

// Unborrow clears the Borrow mark.
func (m *Msg) Unborrow() {
	m.borrowed = false
}

// Borrowed reports whether m is currently borrowed.
func (m *Msg) Borrowed() bool {
	return m.borrowed
}

// Reset clears m back to its empty state, ready for reuse. Value is left
// untouched; callers that attach one must clear it themselves.
func (m *Msg) Reset() {
	m.Body = m.Body[:0]
	m.More = false
	m.Seq = 0
	m.identity = false
	m.borrowed = false
}

// CopyBody replaces m.Body with an owned copy of the given bytes, so the
// caller's slice can be reused/overwritten immediately after the call.
func (m *Msg) CopyBody(src []byte) {
	m.Body = append(m.Body[:0], src...)
}

// Clone returns a new Msg with an independent copy of m's payload and flags.
func (m *Msg) Clone() *Msg {
	c := &Msg{More: m.More, Seq: m.Seq, identity: m.identity}
	c.Body = append([]byte(nil), m.Body...)
	return c
}

// Pool hands out reset *Msg values and takes them back. A plain
// *sync.Pool guarded against nil and against borrowed messages.
type Pool struct {
	pool sync.Pool
}

// Get returns an empty Msg from the pool, or a new one if the pool is empty.
func (p *Pool) Get() *Msg {
	if m, ok := p.pool.Get().(*Msg); ok {
		return m
	}
	return NewMsg()
}

// Put resets m and returns it to the pool, unless m is nil or Borrowed.
func (p *Pool) Put(m *Msg) {
	if m == nil || m.borrowed {
		return
	}
	m.Reset()
	p.pool.Put(m)
}
