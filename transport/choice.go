package transport

import (
	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/either"
	"github.com/ddorgan/libp2p-sim/futures"
)

// Choice composes two transports into one whose output is a two-case sum.
// Every operation is attempted on the first transport and falls back to the
// second only when the first rejects the address; produced connections carry
// the case of the transport that made them.
type Choice[AO, BO any, A Transport[AO], B Transport[BO]] struct {
	a A
	b B
}

// Or builds the "a or b" transport.
func Or[AO, BO any, A Transport[AO], B Transport[BO]](a A, b B) *Choice[AO, BO, A, B] {
	return &Choice[AO, BO, A, B]{a: a, b: b}
}

func (t *Choice[AO, BO, A, B]) Dial(raddr addr.Addr) (futures.Future[either.Either[AO, BO]], error) {
	fa, err := t.a.Dial(raddr)
	if err == nil {
		return either.FirstFuture[AO, BO](fa), nil
	}
	if !IsRejected(err) {
		return nil, err
	}
	fb, err := t.b.Dial(raddr)
	if err != nil {
		return nil, err
	}
	return either.SecondFuture[AO, BO](fb), nil
}

func (t *Choice[AO, BO, A, B]) Listen(laddr addr.Addr) (Listener[either.Either[AO, BO]], addr.Addr, error) {
	la, bound, err := t.a.Listen(laddr)
	if err == nil {
		return FirstListener[AO, BO](la), bound, nil
	}
	if !IsRejected(err) {
		return nil, addr.Addr{}, err
	}
	lb, bound, err := t.b.Listen(laddr)
	if err != nil {
		return nil, addr.Addr{}, err
	}
	return SecondListener[AO, BO](lb), bound, nil
}

func (t *Choice[AO, BO, A, B]) NATTraversal(server, observed addr.Addr) (addr.Addr, bool) {
	if a, ok := t.a.NATTraversal(server, observed); ok {
		return a, true
	}
	return t.b.NATTraversal(server, observed)
}

// EitherListener dispatches a listener sequence to the populated case,
// wrapping every yielded connection future in the same case. It lives here
// rather than in package either because listener items are transport types.
type EitherListener[AO, BO any] struct {
	tag either.Tag
	a   Listener[AO]
	b   Listener[BO]
}

// FirstListener wraps a first-case listener.
func FirstListener[AO, BO any](l Listener[AO]) *EitherListener[AO, BO] {
	return &EitherListener[AO, BO]{tag: either.First, a: l}
}

// SecondListener wraps a second-case listener.
func SecondListener[AO, BO any](l Listener[BO]) *EitherListener[AO, BO] {
	return &EitherListener[AO, BO]{tag: either.Second, b: l}
}

// Tag reports which case is populated.
func (l *EitherListener[AO, BO]) Tag() either.Tag { return l.tag }

func (l *EitherListener[AO, BO]) PollNext() (Incoming[either.Either[AO, BO]], futures.State, error) {
	switch l.tag {
	case either.First:
		item, st, err := l.a.PollNext()
		if err != nil || st != futures.Ready {
			return Incoming[either.Either[AO, BO]]{}, st, err
		}
		return Incoming[either.Either[AO, BO]]{
			Conn:   either.FirstFuture[AO, BO](item.Conn),
			Remote: item.Remote,
		}, futures.Ready, nil
	case either.Second:
		item, st, err := l.b.PollNext()
		if err != nil || st != futures.Ready {
			return Incoming[either.Either[AO, BO]]{}, st, err
		}
		return Incoming[either.Either[AO, BO]]{
			Conn:   either.SecondFuture[AO, BO](item.Conn),
			Remote: item.Remote,
		}, futures.Ready, nil
	}
	panic("transport: either listener holds no case")
}

func (l *EitherListener[AO, BO]) Close() error {
	switch l.tag {
	case either.First:
		return l.a.Close()
	case either.Second:
		return l.b.Close()
	}
	panic("transport: either listener holds no case")
}
