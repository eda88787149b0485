package queue

import (
	"testing"

	"github.com/sockfix/sockfix/qpipe"
	"github.com/sockfix/sockfix/wire"
)

func TestLbRoundRobins(t *testing.T) {
	lb := NewLb()
	a, peerA := qpipe.NewPair(4)
	b, peerB := qpipe.NewPair(4)
	lb.Attach(a)
	lb.Attach(b)

	for i := 0; i < 4; i++ {
		m := wire.NewMsg()
		m.Body = []byte{byte(i)}
		if err := lb.Send(m); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	// Round-robin over two pipes: each should have received 2 frames.
	countA, countB := drainCount(t, peerA), drainCount(t, peerB)
	if countA != 2 || countB != 2 {
		t.Fatalf("countA=%d countB=%d, want 2 and 2", countA, countB)
	}
}

func drainCount(t *testing.T, p *qpipe.Pipe) int {
	t.Helper()
	n := 0
	for p.HasIn() {
		if _, ok := p.Read(); !ok {
			break
		}
		n++
	}
	return n
}

func TestLbNoPipesReturnsErrNoPipes(t *testing.T) {
	lb := NewLb()
	err := lb.Send(wire.NewMsg())
	if err != ErrNoPipes {
		t.Fatalf("err = %v, want ErrNoPipes", err)
	}
}

func TestLbPipeTerminatedDuringMultipart(t *testing.T) {
	lb := NewLb()
	a, _ := qpipe.NewPair(4)
	lb.Attach(a)

	m := wire.NewMsg()
	m.More = true
	if err := lb.Send(m); err != nil {
		t.Fatalf("Send: %v", err)
	}

	lb.PipeTerminated(a)
	if lb.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after terminate", lb.Len())
	}

	// Remainder of the dropped message should be silently consumed.
	tail := wire.NewMsg()
	if err := lb.Send(tail); err != nil {
		t.Fatalf("Send tail after drop: %v", err)
	}
}

func TestFqMidMessageAffinity(t *testing.T) {
	fq := NewFq()
	a, peerA := qpipe.NewPair(4)
	b, peerB := qpipe.NewPair(4)
	fq.Attach(a)
	fq.Attach(b)

	first := wire.NewMsg()
	first.More = true
	first.Body = []byte("1")
	peerA.Write(first)
	peerA.Flush()

	second := wire.NewMsg()
	second.Body = []byte("2")
	peerA.Write(second)
	peerA.Flush()

	other := wire.NewMsg()
	other.Body = []byte("x")
	peerB.Write(other)
	peerB.Flush()

	m1, p1, err := fq.RecvPipe()
	if err != nil {
		t.Fatalf("RecvPipe 1: %v", err)
	}
	if p1 != a || !m1.More {
		t.Fatalf("first recv should come from pipe a with More=true")
	}

	m2, p2, err := fq.RecvPipe()
	if err != nil {
		t.Fatalf("RecvPipe 2: %v", err)
	}
	if p2 != a || m2.More {
		t.Fatalf("second recv should finish pipe a's message")
	}
}

func TestFqHasInDemotesEmptyPipes(t *testing.T) {
	fq := NewFq()
	a, _ := qpipe.NewPair(4)
	fq.Attach(a)
	if fq.HasIn() {
		t.Fatal("HasIn true with nothing queued")
	}
	if fq.active != 0 {
		t.Fatalf("active = %d after HasIn, want 0 (empty pipe demoted)", fq.active)
	}
}
