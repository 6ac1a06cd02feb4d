// Package retry hosts utilities for retrying calls which fail temporarily.
// All functions in this package operate using a predefined set of constants
// for simplicity, which can be changed externally if needed.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type (
	RecoverFunc    func(ctx context.Context) error
	DelayScheduler func() time.Duration
	// Notifier is called with the cause of every recovery before sleeping.
	Notifier func(err error, delay time.Duration)
)

type recoverError struct {
	wrapped error
}

func (e recoverError) Error() string {
	return fmt.Sprintf("recoverable error: %s", e.wrapped.Error())
}

func (e recoverError) Unwrap() error {
	return e.wrapped
}

// Recoverable is used to explicitly mark an error as temporary, meaning
// that the call which returned it can be retried after some delay.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return recoverError{err}
}

// IsRecoverable reports whether the error was marked using Recoverable.
func IsRecoverable(err error) bool {
	var re recoverError
	return errors.As(err, &re)
}

// Recover runs the function using a custom delay scheduler. If the function
// returns an error marked as Recoverable, the notifier is called with the original
// error and the call is retried once the scheduled delay passes. Otherwise the
// error is returned (meaning it is nil or unrecoverable). If the context is done
// while waiting, its error is returned.
func Recover(ctx context.Context, notify Notifier, f RecoverFunc, s DelayScheduler) error {
	for {
		var re recoverError
		if err := f(ctx); !errors.As(err, &re) {
			return err
		}

		delay := s()
		if notify != nil {
			notify(re.wrapped, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

var (
	DefaultBackoffMinDelay = time.Millisecond * 50
	DefaultBackoffMaxDelay = time.Minute * 10
	DefaultBackoffFactor   = 2
)

// BackoffScheduler returns a fresh exponential delay scheduler.
func BackoffScheduler() DelayScheduler {
	delay, next := time.Duration(0), DefaultBackoffMinDelay
	return func() time.Duration {
		delay, next = next, next*time.Duration(DefaultBackoffFactor)
		if next > DefaultBackoffMaxDelay {
			next = DefaultBackoffMaxDelay
		}
		return delay
	}
}

// Backoff runs the function using the backoff retry algorithm.
func Backoff(ctx context.Context, notify Notifier, f RecoverFunc) error {
	return Recover(ctx, notify, f, BackoffScheduler())
}

var DefaultStaticDelay = time.Second

// Static runs the function using a static retry delay.
func Static(ctx context.Context, notify Notifier, f RecoverFunc) error {
	return Recover(ctx, notify, f, func() time.Duration {
		return DefaultStaticDelay
	})
}
