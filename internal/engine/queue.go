package engine

import (
	"sync"

	"github.com/roach88/patex/internal/eval"
)

// eventQueue is a thread-safe FIFO queue of events waiting for the Run loop.
//
// The queue is unbounded so producers never block on a slow rule set.
// Enqueue may be called from any goroutine; only the Run loop dequeues.
//
// A buffered signal channel lets Run wait for work and for context
// cancellation in the same select.
type eventQueue struct {
	mu     sync.Mutex
	events []eval.Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]eval.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(ev eval.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, ev)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Drain takes every queued event in one step and returns them in FIFO
// order. buf is the previous batch; its storage is cleared and reused as
// the queue's new backing slice, so a steady Run loop allocates nothing.
//
// Returns an empty batch if the queue is empty.
func (q *eventQueue) Drain(buf []eval.Event) []eval.Event {
	clear(buf)
	buf = buf[:0]

	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.events
	q.events = buf
	return batch
}

// Wait returns a channel that signals when events may be available.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    batch = q.Drain(batch)
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes any waiter.
// Events already queued can still be dequeued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
