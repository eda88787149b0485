package req

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

func newTestReq(t *testing.T, opts Options) *socket.Socket {
	t.Helper()
	s := New(context.Background(), opts)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

// readEnvelope drains everything peer has buffered and returns the
// frames' bodies in order (the bottom delimiter's empty body included).
func readEnvelope(peer *qpipe.Pipe) [][]byte {
	var out [][]byte
	for peer.HasIn() {
		m, ok := peer.Read()
		if !ok {
			break
		}
		out = append(out, m.Body)
	}
	return out
}

func reply(t *testing.T, peer *qpipe.Pipe, frames ...[]byte) {
	t.Helper()
	for i, body := range frames {
		m := wire.NewMsg()
		m.CopyBody(body)
		m.More = i < len(frames)-1
		assert.NoError(t, peer.Write(m))
	}
	peer.Flush()
}

func TestSendEmitsBottomDelimiterThenBody(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{})

	mine, peer := qpipe.NewPair(10)
	defer peer.Terminate()
	assert.NoError(s.AttachPipe(mine))

	m := wire.NewMsg()
	m.CopyBody([]byte("hello"))
	m.More = false
	assert.NoError(s.Send(m))

	frames := readEnvelope(peer)
	assert.Len(frames, 2)
	assert.Empty(frames[0])
	assert.Equal([]byte("hello"), frames[1])
}

func TestSendWhileAwaitingReplyIsEFSMWhenStrict(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{})

	mine, peer := qpipe.NewPair(10)
	defer peer.Terminate()
	assert.NoError(s.AttachPipe(mine))

	assert.NoError(s.Send(wire.NewMsg()))
	assert.ErrorIs(s.Send(wire.NewMsg()), socket.ErrFSM)
}

func TestSendWhileAwaitingReplyRelaxedStartsNewRequest(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{Relaxed: true})

	mine, peer := qpipe.NewPair(10)
	defer peer.Terminate()
	assert.NoError(s.AttachPipe(mine))
	mineB, peerB := qpipe.NewPair(10)
	defer peerB.Terminate()
	assert.NoError(s.AttachPipe(mineB))

	// The second request terminates the first request's pipe and goes
	// out on the remaining one.
	assert.NoError(s.Send(wire.NewMsg()))
	assert.NoError(s.Send(wire.NewMsg()))
	assert.Len(readEnvelope(peerB), 2)
}

func TestRecvBeforeReplyIsEFSM(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{})

	var out wire.Msg
	assert.ErrorIs(s.Recv(&out), socket.ErrFSM)
}

func TestRecvStripsBottomDelimiterAndDeliversBody(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{})

	mine, peer := qpipe.NewPair(10)
	defer peer.Terminate()
	assert.NoError(s.AttachPipe(mine))
	assert.NoError(s.Send(wire.NewMsg()))

	// Drain the request's own envelope from peer's side before replying.
	_, _ = peer.Read()
	_, _ = peer.Read()

	reply(t, peer, nil, []byte("pong"))

	var out wire.Msg
	assert.NoError(s.Recv(&out))
	assert.Equal([]byte("pong"), out.Body)
}

func TestRecvAfterFinalFrameReturnsToSending(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{})

	mine, peer := qpipe.NewPair(10)
	defer peer.Terminate()
	assert.NoError(s.AttachPipe(mine))
	assert.NoError(s.Send(wire.NewMsg()))
	_, _ = peer.Read()
	_, _ = peer.Read()

	reply(t, peer, nil, []byte("pong"))

	var out wire.Msg
	assert.NoError(s.Recv(&out))
	assert.False(out.More)

	// sending again should work without ErrFSM now.
	assert.NoError(s.Send(wire.NewMsg()))
}

func TestCorrelateRoundTripChecksRequestID(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{Correlate: true})

	mine, peer := qpipe.NewPair(10)
	defer peer.Terminate()
	assert.NoError(s.AttachPipe(mine))
	assert.NoError(s.Send(wire.NewMsg()))

	idFrame, ok := peer.Read()
	assert.True(ok)
	assert.True(idFrame.More)
	assert.Len(idFrame.Body, 4)

	bottom, ok := peer.Read()
	assert.True(ok)
	assert.True(bottom.More)
	assert.Empty(bottom.Body)

	reply(t, peer, idFrame.Body, nil, []byte("pong"))

	var out wire.Msg
	assert.NoError(s.Recv(&out))
	assert.Equal([]byte("pong"), out.Body)
}

func TestCorrelateRejectsMismatchedRequestID(t *testing.T) {
	assert := assert.New(t)
	s := newTestReq(t, Options{Correlate: true})

	mine, peer := qpipe.NewPair(10)
	defer peer.Terminate()
	assert.NoError(s.AttachPipe(mine))
	assert.NoError(s.Send(wire.NewMsg()))

	_, _ = peer.Read() // id
	_, _ = peer.Read() // bottom

	reply(t, peer, []byte{0, 0, 0, 0}, nil, []byte("stale"))

	var out wire.Msg
	assert.ErrorIs(s.Recv(&out), socket.ErrWouldBlock)
}
