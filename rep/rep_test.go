package rep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

func newTestRep(t *testing.T, opts Options) *socket.Socket {
	t.Helper()
	s := New(context.Background(), opts)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func attachIdentified(t *testing.T, s *socket.Socket, identity []byte) (mine, peer *qpipe.Pipe) {
	t.Helper()
	mine, peer = qpipe.NewPair(10)
	idMsg := wire.NewMsg()
	idMsg.CopyBody(identity)
	assert.NoError(t, peer.Write(idMsg))
	peer.Flush()
	assert.NoError(t, s.AttachPipe(mine))
	return mine, peer
}

func sendRequest(t *testing.T, peer *qpipe.Pipe, body []byte) {
	t.Helper()
	bottom := wire.NewMsg()
	bottom.More = true
	assert.NoError(t, peer.Write(bottom))
	data := wire.NewMsg()
	data.CopyBody(body)
	data.More = false
	assert.NoError(t, peer.Write(data))
	peer.Flush()
}

func TestRecvStripsTracebackAndDeliversBody(t *testing.T) {
	assert := assert.New(t)
	s := newTestRep(t, Options{})

	_, peer := attachIdentified(t, s, []byte("client"))
	defer peer.Terminate()
	sendRequest(t, peer, []byte("ping"))

	var m wire.Msg
	assert.NoError(s.Recv(&m))
	assert.Equal([]byte("ping"), m.Body)
	assert.False(m.More)
}

func TestSendBeforeRecvIsEFSM(t *testing.T) {
	assert := assert.New(t)
	s := newTestRep(t, Options{})
	assert.ErrorIs(s.Send(wire.NewMsg()), socket.ErrFSM)
}

func TestReplyRoutesBackToRequester(t *testing.T) {
	assert := assert.New(t)
	s := newTestRep(t, Options{})

	_, peer := attachIdentified(t, s, []byte("client"))
	defer peer.Terminate()
	sendRequest(t, peer, []byte("ping"))

	var m wire.Msg
	assert.NoError(s.Recv(&m))

	reply := wire.NewMsg()
	reply.CopyBody([]byte("pong"))
	reply.More = false
	assert.NoError(s.Send(reply))

	// The empty bottom delimiter travels back ahead of the reply body.
	bottom, ok := peer.Read()
	assert.True(ok)
	assert.Empty(bottom.Body)
	assert.True(bottom.More)

	got, ok := peer.Read()
	assert.True(ok)
	assert.Equal([]byte("pong"), got.Body)
}

func TestRecvAfterFinalFrameReturnsToReceivingState(t *testing.T) {
	assert := assert.New(t)
	s := newTestRep(t, Options{})

	_, peer := attachIdentified(t, s, []byte("client"))
	defer peer.Terminate()
	sendRequest(t, peer, []byte("ping"))

	var m wire.Msg
	assert.NoError(s.Recv(&m))
	assert.NoError(s.Send(wire.NewMsg()))

	// Another request should now be receivable without ErrFSM.
	sendRequest(t, peer, []byte("ping2"))
	var m2 wire.Msg
	assert.NoError(s.Recv(&m2))
	assert.Equal([]byte("ping2"), m2.Body)
}
