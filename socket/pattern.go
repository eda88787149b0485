package socket

import (
	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/wire"
)

// Pattern is implemented by the four socket patterns (dealer.Dealer,
// router.Router, req.Req, rep.Rep), each embedding a *Socket. Socket
// dispatches every pipe-lifecycle and frame-transfer call into whichever
// Pattern it holds.
type Pattern interface {
	// AttachPipe registers p as a new peer connection.
	AttachPipe(p *qpipe.Pipe)
	// ReadActivated is called when p has become newly readable.
	ReadActivated(p *qpipe.Pipe)
	// WriteActivated is called when p has become newly writable.
	WriteActivated(p *qpipe.Pipe)
	// PipeTerminated is called when p is no longer usable.
	PipeTerminated(p *qpipe.Pipe)

	// Send enqueues one frame of an outgoing message.
	Send(m *wire.Msg) error
	// Recv dequeues one frame of an incoming message into m.
	Recv(m *wire.Msg) error

	// HasIn reports whether Recv would currently succeed.
	HasIn() bool
	// HasOut reports whether Send would currently succeed.
	HasOut() bool

	// Rollback discards any partially-written outbound message.
	Rollback() error
}
