package muxing

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ddorgan/libp2p-sim/futures"
)

const pollInterval = 500 * time.Microsecond

// Drive re-invokes fn until it stops reporting ErrWouldBlock. A minimal
// stand-in for a real executor, for tests and demos.
func Drive(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, ErrWouldBlock) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// AwaitInbound drives PollInbound until it leaves Pending.
func AwaitInbound[S, O any](ctx context.Context, m StreamMuxer[S, O]) (S, futures.State, error) {
	for {
		s, st, err := m.PollInbound()
		if err != nil || st != futures.Pending {
			return s, st, err
		}
		select {
		case <-ctx.Done():
			var zero S
			return zero, futures.Pending, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// AwaitOutbound drives an outbound handle to resolution.
func AwaitOutbound[S, O any](ctx context.Context, m StreamMuxer[S, O], o O) (S, futures.State, error) {
	for {
		s, st, err := m.PollOutbound(o)
		if err != nil || st != futures.Pending {
			return s, st, err
		}
		select {
		case <-ctx.Done():
			var zero S
			return zero, futures.Pending, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// ReadAll drains s until EOF, driving would-block reads.
func ReadAll[S, O any](ctx context.Context, m StreamMuxer[S, O], s S) ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := m.ReadSubstream(s, buf)
		out = append(out, buf[:n]...)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return out, nil
		case errors.Is(err, ErrWouldBlock):
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(pollInterval):
			}
		default:
			return out, err
		}
	}
}

// WriteAll writes all of p to s, driving would-block writes.
func WriteAll[S, O any](ctx context.Context, m StreamMuxer[S, O], s S, p []byte) error {
	for len(p) > 0 {
		n, err := m.WriteSubstream(s, p)
		p = p[n:]
		switch {
		case err == nil:
		case errors.Is(err, ErrWouldBlock):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		default:
			return err
		}
	}
	return nil
}
