package futures

import (
	"context"
	"time"
)

const pollInterval = 500 * time.Microsecond

// Wait drives f to completion, sleeping briefly between polls. It is a
// stand-in for a real executor, good enough for tests and the demo binary.
func Wait[T any](ctx context.Context, f Future[T]) (T, error) {
	for {
		v, ok, err := f.Poll()
		if err != nil {
			return v, err
		}
		if ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// WaitNext drives s until it yields its next item or finishes.
func WaitNext[T any](ctx context.Context, s Stream[T]) (T, State, error) {
	for {
		v, st, err := s.PollNext()
		if err != nil || st != Pending {
			return v, st, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, Pending, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
