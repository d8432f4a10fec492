// Package upgrade defines the contract for asynchronous connection upgrades:
// steps that turn a freshly established connection into something more
// capable, such as a secured channel or a multiplexed session.
package upgrade

import (
	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/futures"
)

// Endpoint tells an upgrade which side of the connection it is running on.
type Endpoint uint8

const (
	// Dialer is the side that initiated the connection.
	Dialer Endpoint = iota + 1
	// Listener is the side that accepted the connection.
	Listener
)

func (e Endpoint) String() string {
	switch e {
	case Dialer:
		return "dialer"
	case Listener:
		return "listener"
	default:
		return "invalid"
	}
}

// Func upgrades a connection of type I into one of type O. It is invoked
// once per connection with the endpoint role and the remote address, and
// must be duplicable: the same Func value runs independently across
// overlapping connection lifetimes, so it may capture shared read-only
// configuration but never per-connection state.
//
// A negotiation failure is reported as an error on the returned future. It
// is scoped to that one connection and never tears down the listener that
// produced it.
type Func[I, O any] func(conn I, ep Endpoint, remote addr.Addr) futures.Future[O]

// Sync lifts a synchronous upgrade step into a Func. Useful for upgrades
// that complete without further I/O, such as wrapping a connection in a
// recording or labelling layer.
func Sync[I, O any](fn func(conn I, ep Endpoint, remote addr.Addr) (O, error)) Func[I, O] {
	return func(conn I, ep Endpoint, remote addr.Addr) futures.Future[O] {
		v, err := fn(conn, ep, remote)
		if err != nil {
			return futures.Failed[O](err)
		}
		return futures.Resolved(v)
	}
}

// Identity is the no-op upgrade.
func Identity[I any]() Func[I, I] {
	return func(conn I, _ Endpoint, _ addr.Addr) futures.Future[I] {
		return futures.Resolved(conn)
	}
}
