// Package streams contains the update listeners feeding the dispatcher. A listener
// produces a single ordered stream of results, each holding either an update or
// an error which occurred while receiving updates.
package streams

import (
	"context"

	"github.com/renbou/tlxdispatch/update"
)

// Stream is a readonly channel of some type.
type Stream[T any] <-chan T

// Result holds either a value or an error.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a value into a successful result.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps an error into a failed result.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Streamer is an interface implemented by various stream providers and consists of a single
// function which returns a stream of values. The streamer should close the returned stream
// when the context is canceled or when it has nothing more to produce.
type Streamer[T any] interface {
	Stream(ctx context.Context) Stream[T]
}

// StreamerFunc allows using ordinary functions as a Streamer.
type StreamerFunc[T any] func(ctx context.Context) Stream[T]

func (f StreamerFunc[T]) Stream(ctx context.Context) Stream[T] {
	return f(ctx)
}

// UpdateListener is the source of updates consumed by the dispatcher. Errors are
// delivered in-band and never terminate the stream by themselves.
type UpdateListener = Streamer[Result[update.Update]]

// Of returns a finite streamer producing the given values in order. Every call to Stream
// starts from the first value again.
func Of[T any](values ...T) Streamer[T] {
	return StreamerFunc[T](func(ctx context.Context) Stream[T] {
		stream := make(chan T)
		go func() {
			defer close(stream)
			for _, v := range values {
				select {
				case stream <- v:
				case <-ctx.Done():
					return
				}
			}
		}()
		return stream
	})
}
