package reactor

import (
	"os"
	"testing"
	"time"
)

type recordHandler struct {
	in, out chan struct{}
}

func newRecordHandler() *recordHandler {
	return &recordHandler{in: make(chan struct{}, 8), out: make(chan struct{}, 8)}
}

// InEvent and OutEvent never block: a level-triggered fd keeps firing
// while it stays ready, and a blocked handler would stall the loop.
func (h *recordHandler) InEvent() {
	select {
	case h.in <- struct{}{}:
	default:
	}
}
func (h *recordHandler) OutEvent() {
	select {
	case h.out <- struct{}{}:
	default:
	}
}
func (h *recordHandler) TimerEvent(int) {}

func TestReactorDetectsPipeReadable(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rf, wf, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer rf.Close()
	defer wf.Close()

	h := newRecordHandler()
	handle := r.AddFd(int(rf.Fd()), h)
	r.SetPollin(handle)
	r.Start()
	defer r.Stop()

	if _, err := wf.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-h.in:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for InEvent")
	}
}

func TestTimerFires(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := newRecordHandler()
	fired := make(chan int, 1)
	tf := &timerHandler{fn: func(id int) { fired <- id }}
	_ = h
	r.AddTimer(10*time.Millisecond, tf)
	r.Start()
	defer r.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

type timerHandler struct {
	fn func(id int)
}

func (timerHandler) InEvent()          {}
func (timerHandler) OutEvent()         {}
func (h *timerHandler) TimerEvent(id int) { h.fn(id) }

func TestCancelTimerPreventsFire(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fired := make(chan int, 1)
	tf := &timerHandler{fn: func(id int) { fired <- id }}
	id := r.AddTimer(50*time.Millisecond, tf)
	r.CancelTimer(id)
	r.Start()
	defer r.Stop()

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}
