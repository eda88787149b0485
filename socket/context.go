package socket

import "github.com/sockfix/sockfix/wire"

// Context tracks a Socket's processing of one wire.Msg, stashed in
// Msg.Value. Only populated for frames a caller passes to MsgContext;
// ordinary pattern Send/Recv traffic never allocates one.
type Context struct {
	Socket *Socket // socket processing the message
	Pipe   any     // *qpipe.Pipe the message arrived on or is destined for

	Action Action // requested handler action
}

// MsgContext returns the Context inside m, creating one if needed.
func MsgContext(m *wire.Msg) *Context {
	if cx, ok := m.Value.(*Context); ok {
		return cx
	}
	cx := new(Context)
	m.Value = cx
	return cx
}

// HasContext reports whether m already carries a Context.
func HasContext(m *wire.Msg) bool {
	_, ok := m.Value.(*Context)
	return ok
}

// Reset clears cx to its empty state.
func (cx *Context) Reset() {
	if cx == nil {
		return
	}
	cx.Socket = nil
	cx.Pipe = nil
	cx.Action = 0
}
