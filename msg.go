package sockfix

import "github.com/sockfix/sockfix/wire"

// Msg is the frame type every Send/Recv call exchanges.
type Msg = wire.Msg

// MsgInit returns a new, empty Msg. Mirrors zmq_msg_init.
func MsgInit() *Msg { return wire.NewMsg() }

// MsgInitSize returns a new Msg with a zeroed payload of the given size.
// Mirrors zmq_msg_init_size.
func MsgInitSize(size int) *Msg {
	m := wire.NewMsg()
	m.Body = make([]byte, size)
	return m
}

// MsgInitData returns a new Msg that owns a copy of data. Mirrors
// zmq_msg_init_data (copying rather than the zero-copy variant, since
// this core has no external buffer ownership to hand off).
func MsgInitData(data []byte) *Msg {
	m := wire.NewMsg()
	m.CopyBody(data)
	return m
}

// MsgClose resets m back to empty, returning its buffer's capacity to
// the caller for reuse. Mirrors zmq_msg_close.
func MsgClose(m *Msg) { m.Reset() }

// MsgMove transfers dst's contents from src and resets src. Mirrors
// zmq_msg_move.
func MsgMove(dst, src *Msg) {
	*dst = *src
	src.Body = nil // dst owns the buffer now; src must not reuse it
	src.Reset()
}

// MsgCopy makes dst an independent copy of src. Mirrors zmq_msg_copy.
func MsgCopy(dst, src *Msg) {
	c := src.Clone()
	*dst = *c
}

// MsgData returns m's payload bytes. Mirrors zmq_msg_data.
func MsgData(m *Msg) []byte { return m.Body }

// MsgSize returns the length of m's payload. Mirrors zmq_msg_size.
func MsgSize(m *Msg) int { return m.Len() }

// MsgMore reports whether another frame follows m in the same logical
// message. Mirrors zmq_msg_more / ZMQ_RCVMORE.
func MsgMore(m *Msg) bool { return m.More }

// MsgSetMore sets m's More flag. Mirrors zmq_msg_set with ZMQ_SNDMORE.
func MsgSetMore(m *Msg, more bool) { m.More = more }
