// Package pipeline provides the staged processing primitives a session is
// built from: bounded inter-stage buffers, a voice-activity gate, a bounded
// worker pool, and the generic stage loop.
package pipeline

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrBufferClosed is returned once a buffer has been closed and drained.
	// It is the poison signal a consuming stage shuts down on.
	ErrBufferClosed = errors.New("pipeline: buffer closed")

	// ErrBufferTimeout is returned when a timed receive expires with no item.
	ErrBufferTimeout = errors.New("pipeline: receive timed out")

	// ErrBufferFull is returned by TryPut when the buffer is at capacity.
	ErrBufferFull = errors.New("pipeline: buffer full")
)

// Buffer is a bounded FIFO queue between two pipeline stages. Safe for
// multiple producers; designed for a single consumer per buffer. Add an
// explicit fan-out if more are ever needed.
type Buffer[T any] struct {
	ch   chan T
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewBuffer creates a buffer holding at most capacity items.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Put enqueues an item, blocking while the buffer is full.
// Returns ErrBufferClosed if the buffer is (or becomes) closed.
func (b *Buffer[T]) Put(v T) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBufferClosed
	}

	select {
	case b.ch <- v:
		return nil
	case <-b.done:
		return ErrBufferClosed
	}
}

// TryPut enqueues an item without blocking. Returns ErrBufferFull when at
// capacity and ErrBufferClosed after Close.
func (b *Buffer[T]) TryPut(v T) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBufferClosed
	}

	select {
	case b.ch <- v:
		return nil
	case <-b.done:
		return ErrBufferClosed
	default:
		return ErrBufferFull
	}
}

// PutDropOldest enqueues an item, evicting the oldest queued item if the
// buffer is full. Real-time audio tolerates loss better than unbounded
// growth. Returns how many items were dropped to make room.
func (b *Buffer[T]) PutDropOldest(v T) (dropped int, err error) {
	for {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return dropped, ErrBufferClosed
		}

		select {
		case b.ch <- v:
			return dropped, nil
		case <-b.done:
			return dropped, ErrBufferClosed
		default:
		}

		select {
		case <-b.ch:
			dropped++
		default:
		}
	}
}

// Get receives the next item, waiting at most timeout. Items queued before
// Close are still delivered; after the buffer is drained Get returns
// ErrBufferClosed.
func (b *Buffer[T]) Get(timeout time.Duration) (T, error) {
	var zero T

	// Drain queued items first so Close never loses data.
	select {
	case v := <-b.ch:
		return v, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-b.ch:
		return v, nil
	case <-b.done:
		select {
		case v := <-b.ch:
			return v, nil
		default:
			return zero, ErrBufferClosed
		}
	case <-timer.C:
		return zero, ErrBufferTimeout
	}
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int { return len(b.ch) }

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int { return cap(b.ch) }

// Close poisons the buffer. Producers get ErrBufferClosed; the consumer
// drains remaining items and then gets ErrBufferClosed. Idempotent.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// Closed reports whether Close has been called.
func (b *Buffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
