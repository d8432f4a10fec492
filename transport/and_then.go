package transport

import (
	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/upgrade"
)

// AndThen chains a base transport with an asynchronous upgrade step. Dialed
// connections are upgraded with endpoint role Dialer and the originally
// requested address; accepted connections with role Listener and the remote
// peer's address. The combinator is immutable once built and reusable across
// dial/listen attempts; a rejection from the base leaves it untouched.
//
// An upgrade failure resolves the affected connection's future with an
// error. It never terminates the listener sequence the connection came from.
type AndThen[I, O any, T Transport[I]] struct {
	inner T
	up    upgrade.Func[I, O]
}

// Chain composes inner with up.
func Chain[I, O any, T Transport[I]](inner T, up upgrade.Func[I, O]) *AndThen[I, O, T] {
	return &AndThen[I, O, T]{inner: inner, up: up}
}

// Inner returns the base transport.
func (t *AndThen[I, O, T]) Inner() T { return t.inner }

func (t *AndThen[I, O, T]) Dial(raddr addr.Addr) (futures.Future[O], error) {
	fut, err := t.inner.Dial(raddr)
	if err != nil {
		return nil, err
	}
	up := t.up
	// The upgrade sees the address the caller asked for, not any resolved
	// variant the base transport may have used.
	return futures.Then(fut, func(conn I) futures.Future[O] {
		return up(conn, upgrade.Dialer, raddr)
	}), nil
}

func (t *AndThen[I, O, T]) Listen(laddr addr.Addr) (Listener[O], addr.Addr, error) {
	inner, bound, err := t.inner.Listen(laddr)
	if err != nil {
		return nil, addr.Addr{}, err
	}
	return &upgradingListener[I, O]{inner: inner, up: t.up}, bound, nil
}

func (t *AndThen[I, O, T]) NATTraversal(server, observed addr.Addr) (addr.Addr, bool) {
	// Upgrades never change addressing.
	return t.inner.NATTraversal(server, observed)
}

type upgradingListener[I, O any] struct {
	inner Listener[I]
	up    upgrade.Func[I, O]
}

func (l *upgradingListener[I, O]) PollNext() (Incoming[O], futures.State, error) {
	item, st, err := l.inner.PollNext()
	if err != nil || st != futures.Ready {
		return Incoming[O]{}, st, err
	}
	return upgradeIncoming(item, l.up), futures.Ready, nil
}

func (l *upgradingListener[I, O]) Close() error { return l.inner.Close() }

func upgradeIncoming[I, O any](item Incoming[I], up upgrade.Func[I, O]) Incoming[O] {
	remote := item.Remote
	return Incoming[O]{
		Conn: futures.Then(item.Conn, func(conn I) futures.Future[O] {
			return up(conn, upgrade.Listener, remote)
		}),
		Remote: remote,
	}
}

// AndThenMuxed is AndThen over a MuxedTransport: unsolicited incoming
// connections are upgraded exactly like listener items, always with role
// Listener and the already-known remote address.
type AndThenMuxed[I, O any, T MuxedTransport[I]] struct {
	AndThen[I, O, T]
}

// ChainMuxed composes a muxed transport with up.
func ChainMuxed[I, O any, T MuxedTransport[I]](inner T, up upgrade.Func[I, O]) *AndThenMuxed[I, O, T] {
	return &AndThenMuxed[I, O, T]{AndThen[I, O, T]{inner: inner, up: up}}
}

func (t *AndThenMuxed[I, O, T]) NextIncoming() futures.Future[Incoming[O]] {
	up := t.up
	return futures.Map(t.inner.NextIncoming(), func(item Incoming[I]) (Incoming[O], error) {
		return upgradeIncoming(item, up), nil
	})
}
