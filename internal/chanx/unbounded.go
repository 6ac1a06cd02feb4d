// Package chanx implements the unbounded single-consumer queue used between the
// dispatch loop and handler goroutines. Sending never blocks the producer, so a
// slow handler can only grow its own backlog, never stall the dispatcher.
package chanx

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when sending to a queue which was closed by the producer.
	ErrClosed = errors.New("queue is closed")
	// ErrReceiverGone is returned when sending to a queue whose consumer has detached.
	ErrReceiverGone = errors.New("queue receiver is gone")
)

// Unbounded is a FIFO queue with a non-blocking Send and a channel-based receive side.
// Values are moved from an internal buffer to the Out channel by a single pump goroutine,
// which exits once the queue is closed and drained or once the receiver detaches.
type Unbounded[T any] struct {
	mu     sync.Mutex
	buf    []T
	closed bool

	// signal has a capacity of 1 and wakes the pump up when the buffer changes
	signal chan struct{}
	out    chan T
	// gone is closed by Detach to notify both the pump and the producers
	gone     chan struct{}
	goneOnce sync.Once
}

// NewUnbounded creates a new queue and starts its pump.
func NewUnbounded[T any]() *Unbounded[T] {
	q := &Unbounded[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		gone:   make(chan struct{}),
	}
	go q.pump()
	return q
}

// Send enqueues the value without blocking. It fails if the queue has been
// closed or its receiver has detached, in which case the value is dropped.
func (q *Unbounded[T]) Send(v T) error {
	select {
	case <-q.gone:
		return ErrReceiverGone
	default:
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.buf = append(q.buf, v)
	q.mu.Unlock()

	q.wake()
	return nil
}

// Close marks the end of input. Values which were already sent are still
// delivered, after which Out is closed. Calling Close more than once is a no-op.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Out returns the receiving end of the queue.
func (q *Unbounded[T]) Out() <-chan T {
	return q.out
}

// Detach must be called by the consumer once it stops receiving. All further sends
// fail with ErrReceiverGone and the buffered values are released.
func (q *Unbounded[T]) Detach() {
	q.goneOnce.Do(func() {
		close(q.gone)
	})
}

// Len returns the number of values waiting to be moved into Out.
func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *Unbounded[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Unbounded[T]) pump() {
	var zero T
	for {
		q.mu.Lock()
		if len(q.buf) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				close(q.out)
				return
			}

			select {
			case <-q.signal:
				continue
			case <-q.gone:
				q.release()
				return
			}
		}

		v := q.buf[0]
		q.buf[0] = zero
		q.buf = q.buf[1:]
		if len(q.buf) == 0 {
			// let the drained backing array be collected after a burst
			q.buf = nil
		}
		q.mu.Unlock()

		select {
		case q.out <- v:
		case <-q.gone:
			q.release()
			return
		}
	}
}

func (q *Unbounded[T]) release() {
	q.mu.Lock()
	q.buf = nil
	q.mu.Unlock()
}
