// Package conflate implements a single-producer/single-consumer
// double-buffer: a writer never blocks, and a reader only ever sees the
// most recently completed write, never a half-written value.
//
// The producer always writes into the back buffer, then tries to swap
// it with the front buffer; if the swap's mutex is currently held by a
// reader, the writer just gives up on swapping this round, and the
// value already sitting in back gets overwritten by the next write.
// That's fine since writes are frequent and redundant: this is
// conflation, not queuing, so only the newest value matters.
package conflate

import "sync"

// Buffer is a single-producer/single-consumer conflating double-buffer
// for values of type T. The zero value is ready to use.
type Buffer[T any] struct {
	mu     sync.Mutex
	back   T
	front  T
	hasMsg bool
}

// Write stores value as the newest pending value. Never blocks: if a
// concurrent Read currently holds the lock, the swap is skipped and
// value is simply dropped in favor of whatever the next Write brings.
func (b *Buffer[T]) Write(value T) {
	b.back = value
	if b.mu.TryLock() {
		b.back, b.front = b.front, b.back
		b.hasMsg = true
		b.mu.Unlock()
	}
}

// Read reports whether a pending value was available and, if so, returns
// it and clears the pending flag.
func (b *Buffer[T]) Read() (value T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasMsg {
		return value, false
	}
	value = b.front
	var zero T
	b.front = zero
	b.hasMsg = false
	return value, true
}

// CheckRead reports whether a Read would currently succeed, without
// consuming the pending value.
func (b *Buffer[T]) CheckRead() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasMsg
}

// Probe runs fn against the current front value under the buffer's
// lock, without consuming it. Useful for patterns that need to peek at
// a pending value's shape before deciding whether to consume it.
func (b *Buffer[T]) Probe(fn func(T) bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.front)
}
