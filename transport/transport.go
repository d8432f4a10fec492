// Package transport defines the address-based connection establishment
// contract and the combinators that compose transports into upgrade
// pipelines. A pipeline is built once from a base transport and zero or more
// AndThen stages, then handed to external code that drives the returned
// futures and listener sequences through polling.
package transport

import (
	"errors"
	"fmt"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/futures"
)

// Incoming pairs a pending connection with the remote address it came from.
// The future completes the transport-level establishment and any upgrades
// layered on top; a failure is scoped to this one connection.
type Incoming[O any] struct {
	Conn   futures.Future[O]
	Remote addr.Addr
}

// Listener is the lazy sequence of connections arriving on a bound address.
// Items are delivered in the order the underlying transport reports them.
// One item's upgrade failing never terminates the sequence; only the
// transport itself going away does.
type Listener[O any] interface {
	PollNext() (Incoming[O], futures.State, error)
	Close() error
}

// Transport establishes outbound connections and accepts inbound ones, given
// addresses. O is the connection type it produces — a raw byte stream for a
// base transport, or whatever the last upgrade stage yields for a pipeline.
//
// Rejections versus failures: when a transport does not support an address
// it returns a *RejectedAddrError and MUST leave itself untouched, so the
// caller can retry the same value with another address or hand the address
// to another transport. I/O failures after the address was accepted travel
// as error values on the returned future or listener poll.
type Transport[O any] interface {
	// Dial opens a connection to raddr. The returned future resolves to the
	// connection or to a connection-level error.
	Dial(raddr addr.Addr) (futures.Future[O], error)

	// Listen binds laddr and returns the listener together with the
	// concrete bound address (which may differ, e.g. an allocated port).
	Listen(laddr addr.Addr) (Listener[O], addr.Addr, error)

	// NATTraversal computes the address a remote peer could dial back,
	// given the address this side advertised and the address the peer
	// observed. Pure; ok is false when no answer exists.
	NATTraversal(server, observed addr.Addr) (addr.Addr, bool)
}

// MuxedTransport is a Transport whose listen side can surface connections
// that were not explicitly solicited, e.g. many logical peer connections
// over one physical session.
type MuxedTransport[O any] interface {
	Transport[O]

	// NextIncoming yields the next unsolicited connection. Repeatable.
	NextIncoming() futures.Future[Incoming[O]]
}

// RejectedAddrError reports that a transport does not support an address.
// The transport that returned it is untouched and fully reusable.
type RejectedAddrError struct {
	Addr   addr.Addr
	Reason string
}

func (e *RejectedAddrError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transport: address %q not supported", e.Addr)
	}
	return fmt.Sprintf("transport: address %q not supported: %s", e.Addr, e.Reason)
}

// Reject builds a rejection for a.
func Reject(a addr.Addr, reason string) error {
	return &RejectedAddrError{Addr: a, Reason: reason}
}

// IsRejected reports whether err is an address rejection.
func IsRejected(err error) bool {
	var re *RejectedAddrError
	return errors.As(err, &re)
}

// RejectedAddr extracts the rejected address from err, if any.
func RejectedAddr(err error) (addr.Addr, bool) {
	var re *RejectedAddrError
	if errors.As(err, &re) {
		return re.Addr, true
	}
	return addr.Addr{}, false
}
