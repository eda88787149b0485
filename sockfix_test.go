package sockfix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sockfix/sockfix/socket"
)

func TestBindConnectWiresAPipePair(t *testing.T) {
	assert := assert.New(t)
	ctx := NewContext()
	defer ctx.Term()

	listener, err := ctx.Socket(DEALER, socket.Options{})
	assert.NoError(err)
	assert.NoError(ctx.Bind(listener, "inproc://test"))

	client, err := ctx.Socket(DEALER, socket.Options{})
	assert.NoError(err)
	assert.NoError(ctx.Connect(client, "inproc://test"))

	m := MsgInitData([]byte("hi"))
	assert.NoError(client.Send(m))

	var out Msg
	assert.Eventually(func() bool {
		return listener.HasIn()
	}, time.Second, 5*time.Millisecond)

	assert.NoError(listener.Recv(&out))
	assert.Equal([]byte("hi"), out.Body)
}

func TestConnectToUnboundEndpointFails(t *testing.T) {
	assert := assert.New(t)
	ctx := NewContext()
	defer ctx.Term()

	client, err := ctx.Socket(DEALER, socket.Options{})
	assert.NoError(err)
	assert.ErrorIs(ctx.Connect(client, "inproc://nobody"), ErrEndpointNotFound)
}

func TestBindRejectsNonInprocTransport(t *testing.T) {
	assert := assert.New(t)
	ctx := NewContext()
	defer ctx.Term()

	s, err := ctx.Socket(DEALER, socket.Options{})
	assert.NoError(err)
	assert.ErrorIs(ctx.Bind(s, "tcp://127.0.0.1:5555"), ErrNoSupport)
}

func TestBindDuplicateEndpointFails(t *testing.T) {
	assert := assert.New(t)
	ctx := NewContext()
	defer ctx.Term()

	a, err := ctx.Socket(ROUTER, socket.Options{})
	assert.NoError(err)
	assert.NoError(ctx.Bind(a, "inproc://dup"))

	b, err := ctx.Socket(ROUTER, socket.Options{})
	assert.NoError(err)
	assert.ErrorIs(ctx.Bind(b, "inproc://dup"), ErrEndpointInUse)
}

func TestPollZeroTimeoutReturnsImmediately(t *testing.T) {
	assert := assert.New(t)
	ctx := NewContext()
	defer ctx.Term()

	s, err := ctx.Socket(DEALER, socket.Options{})
	assert.NoError(err)

	items := []*PollItem{{Socket: s, Events: POLLIN}}
	n, err := Poll(items, 0)
	assert.NoError(err)
	assert.Equal(0, n)
}

func TestPollDetectsReadiness(t *testing.T) {
	assert := assert.New(t)
	ctx := NewContext()
	defer ctx.Term()

	listener, err := ctx.Socket(DEALER, socket.Options{})
	assert.NoError(err)
	assert.NoError(ctx.Bind(listener, "inproc://poll-test"))

	client, err := ctx.Socket(DEALER, socket.Options{})
	assert.NoError(err)
	assert.NoError(ctx.Connect(client, "inproc://poll-test"))

	assert.NoError(client.Send(MsgInitData([]byte("x"))))

	items := []*PollItem{{Socket: listener, Events: POLLIN}}
	n, err := Poll(items, 1000)
	assert.NoError(err)
	assert.Equal(1, n)
	assert.NotZero(items[0].Revents & POLLIN)
}
