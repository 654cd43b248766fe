// Package eventq provides the bounded FIFO mailbox that serializes every event
// of one device session.
package eventq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("eventq: closed")

// Queue is a bounded channel-backed FIFO.
//
// Producers choose between Send, which waits for room and is used for state
// events that must not be lost, and TrySend, which never blocks and is used
// from radio callbacks. Closing the queue never panics concurrent producers.
//
//	q := eventq.New[event](64)
//	go func() {
//	    for ev := range q.C() {
//	        handle(ev)
//	    }
//	}()
//	_ = q.Send(ctx, ev)
type Queue[T any] struct {
	ch      chan T
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	metrics Metrics
}

// New creates a Queue with the given capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("eventq: capacity must be > 0")
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// C returns the receive side. It is closed by Close once producers are gone.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Done is closed when Close is called.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Send enqueues v, waiting for room until ctx is done or the queue closes.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.ch <- v:
		q.metrics.addWritten()
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues v without blocking.
// Returns false and counts a drop if the queue is full or closed.
func (q *Queue[T]) TrySend(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.metrics.addDropped()
		return false
	}

	select {
	case q.ch <- v:
		q.metrics.addWritten()
		return true
	default:
		q.metrics.addDropped()
		return false
	}
}

// MarkProcessed is called by the consumer after handling an item.
func (q *Queue[T]) MarkProcessed() {
	q.metrics.addProcessed()
}

// Len returns the number of buffered elements.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Close stops accepting items and closes the receive channel after
// in-flight producers return. Items already buffered stay readable.
// Safe to call more than once.
func (q *Queue[T]) Close() {
	q.once.Do(func() {
		close(q.done) // wakes blocked senders so they release the read lock
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}

// GetMetrics returns a snapshot of current metrics values.
func (q *Queue[T]) GetMetrics() Metrics {
	return Metrics{
		Written:   atomic.LoadInt64(&q.metrics.Written),
		Dropped:   atomic.LoadInt64(&q.metrics.Dropped),
		Processed: atomic.LoadInt64(&q.metrics.Processed),
	}
}

// Metrics provides lock-free counters for a Queue.
type Metrics struct {
	Written   int64
	Dropped   int64
	Processed int64
}

func (m *Metrics) addWritten() {
	atomic.AddInt64(&m.Written, 1)
}

func (m *Metrics) addDropped() {
	atomic.AddInt64(&m.Dropped, 1)
}

func (m *Metrics) addProcessed() {
	atomic.AddInt64(&m.Processed, 1)
}
