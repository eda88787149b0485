package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sockfix/sockfix/dealer"
	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/wire"
)

func TestRunForwardsMultiPartFrontendToBackend(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frontend := dealer.New(ctx, dealer.Options{})
	backend := dealer.New(ctx, dealer.Options{})
	frontend.Start()
	backend.Start()
	defer frontend.Stop()
	defer backend.Stop()

	frontMine, frontPeer := qpipe.NewPair(10)
	defer frontPeer.Terminate()
	assert.NoError(frontend.AttachPipe(frontMine))

	backMine, backPeer := qpipe.NewPair(10)
	defer backPeer.Terminate()
	assert.NoError(backend.AttachPipe(backMine))

	go func() { _ = Run(ctx, Options{Frontend: frontend, Backend: backend}) }()

	m1 := wire.NewMsg()
	m1.CopyBody([]byte("part1"))
	m1.More = true
	assert.NoError(frontPeer.Write(m1))
	m2 := wire.NewMsg()
	m2.CopyBody([]byte("part2"))
	m2.More = false
	assert.NoError(frontPeer.Write(m2))
	frontPeer.Flush()

	deadline := time.After(2 * time.Second)
	var got []*wire.Msg
	for len(got) < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for backend to receive forwarded message")
		default:
		}
		if m, ok := backPeer.Read(); ok {
			got = append(got, m)
		}
	}

	assert.Equal([]byte("part1"), got[0].Body)
	assert.True(got[0].More)
	assert.Equal([]byte("part2"), got[1].Body)
	assert.False(got[1].More)
}

func TestRunHonorsControlTerminate(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frontend := dealer.New(ctx, dealer.Options{})
	backend := dealer.New(ctx, dealer.Options{})
	control := dealer.New(ctx, dealer.Options{})
	frontend.Start()
	backend.Start()
	control.Start()
	defer frontend.Stop()
	defer backend.Stop()
	defer control.Stop()

	ctrlMine, ctrlPeer := qpipe.NewPair(10)
	defer ctrlPeer.Terminate()
	assert.NoError(control.AttachPipe(ctrlMine))

	done := make(chan error, 1)
	go func() { done <- Run(ctx, Options{Frontend: frontend, Backend: backend, Control: control}) }()

	term := wire.NewMsg()
	term.CopyBody([]byte(CmdTerminate))
	term.More = false
	assert.NoError(ctrlPeer.Write(term))
	ctrlPeer.Flush()

	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after TERMINATE")
	}
}
