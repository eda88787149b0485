package conflate

import (
	"sync"
	"testing"
)

func TestReadBeforeAnyWrite(t *testing.T) {
	var b Buffer[int]
	if _, ok := b.Read(); ok {
		t.Fatal("Read succeeded before any Write")
	}
	if b.CheckRead() {
		t.Fatal("CheckRead true before any Write")
	}
}

func TestWriteThenRead(t *testing.T) {
	var b Buffer[string]
	b.Write("hello")
	if !b.CheckRead() {
		t.Fatal("CheckRead false after Write")
	}
	v, ok := b.Read()
	if !ok || v != "hello" {
		t.Fatalf("Read() = %q, %v, want hello, true", v, ok)
	}
	if b.CheckRead() {
		t.Fatal("CheckRead true after consuming Read")
	}
}

func TestReadOnlySeesNewestWrite(t *testing.T) {
	var b Buffer[int]
	b.Write(1)
	b.Write(2)
	b.Write(3)
	v, ok := b.Read()
	if !ok || v != 3 {
		t.Fatalf("Read() = %d, %v, want 3, true", v, ok)
	}
	if _, ok := b.Read(); ok {
		t.Fatal("second Read should find nothing pending")
	}
}

func TestConcurrentWriteDuringReadNeverBlocks(t *testing.T) {
	var b Buffer[int]
	b.Write(42)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Write(i)
		}
	}()
	for i := 0; i < 1000; i++ {
		b.Read()
	}
	wg.Wait()
}

func TestProbeDoesNotConsume(t *testing.T) {
	var b Buffer[int]
	b.Write(7)
	var seen int
	ok := b.Probe(func(v int) bool {
		seen = v
		return v == 7
	})
	if !ok || seen != 7 {
		t.Fatalf("Probe saw %d, ok=%v, want 7, true", seen, ok)
	}
	if !b.CheckRead() {
		t.Fatal("Probe must not consume the pending value")
	}
}
