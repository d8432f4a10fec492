// Package muxing defines the stream-multiplexing contract: many logical
// bidirectional substreams over one physical connection, with independent
// inbound/outbound lifecycles and half-close teardown. Everything is
// poll-driven; no method blocks.
package muxing

import (
	"errors"

	"github.com/ddorgan/libp2p-sim/futures"
)

// ErrWouldBlock is returned by non-blocking operations that cannot make
// progress yet. The caller re-polls after an external wake-up.
var ErrWouldBlock = errors.New("muxing: operation would block")

// RawStream is a non-blocking bidirectional byte stream with explicit flush
// and independent write-side shutdown. Read returns (0, ErrWouldBlock) when
// no data is buffered and io.EOF once the peer half-closed its write side.
type RawStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Flush pushes buffered writes out; ErrWouldBlock until complete.
	Flush() error
	// Shutdown half-closes the write side; ErrWouldBlock until complete.
	// Reads remain valid afterwards.
	Shutdown() error
	Close() error
}

// StreamMuxer multiplexes substreams of type S over one connection. O is the
// transport-specific handle for a pending outbound substream.
//
// A muxer instance is shared mutable state across its substreams, but
// callers must drive it from one poll context at a time. Substreams and
// outbound handles are only valid against the exact muxer instance that
// created them; passing a foreign or already-destroyed value is a
// composition bug and panics rather than corrupting state.
type StreamMuxer[S, O any] interface {
	// PollInbound yields the next substream opened by the remote. Done means
	// the remote will open no more (or CloseInbound was called locally).
	PollInbound() (S, futures.State, error)

	// OpenOutbound registers intent to open a substream and returns a
	// lightweight handle immediately. Every handle must either be driven to
	// success via PollOutbound or released with DestroyOutbound.
	OpenOutbound() O

	// PollOutbound drives a pending outbound handle. On Ready the handle is
	// consumed and the substream returned; polling a consumed handle panics.
	PollOutbound(o O) (S, futures.State, error)

	// DestroyOutbound releases an abandoned outbound handle. Mandatory for
	// every handle not driven to success.
	DestroyOutbound(o O)

	// ReadSubstream reads from s. (0, ErrWouldBlock) when no data, io.EOF
	// once the remote half-closed.
	ReadSubstream(s S, p []byte) (int, error)

	// WriteSubstream writes to s, returning the count accepted or
	// ErrWouldBlock.
	WriteSubstream(s S, p []byte) (int, error)

	// FlushSubstream pushes buffered writes on s; ErrWouldBlock until done.
	FlushSubstream(s S) error

	// ShutdownSubstream half-closes the write side of s; ErrWouldBlock until
	// the shutdown completes. Reads remain valid.
	ShutdownSubstream(s S) error

	// DestroySubstream releases all bookkeeping for s once both sides are
	// finished with it. Mandatory for every substream.
	DestroySubstream(s S)

	// CloseInbound stops offering new inbound substreams; PollInbound
	// reports Done from then on. Already-open substreams are unaffected.
	CloseInbound()

	// CloseOutbound stops allowing new outbound requests. Already-open
	// substreams are unaffected.
	CloseOutbound()
}
