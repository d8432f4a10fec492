package either

import "github.com/ddorgan/libp2p-sim/futures"

// Future dispatches Poll to the populated case and wraps the resolved value
// in the same case, unifying a future of A and a future of B under one
// result type.
type Future[A, B any] struct {
	tag Tag
	a   futures.Future[A]
	b   futures.Future[B]
}

// FirstFuture wraps a first-case future.
func FirstFuture[A, B any](f futures.Future[A]) *Future[A, B] {
	return &Future[A, B]{tag: First, a: f}
}

// SecondFuture wraps a second-case future.
func SecondFuture[A, B any](f futures.Future[B]) *Future[A, B] {
	return &Future[A, B]{tag: Second, b: f}
}

// Tag reports which case is populated.
func (f *Future[A, B]) Tag() Tag { return f.tag }

func (f *Future[A, B]) Poll() (Either[A, B], bool, error) {
	switch f.tag {
	case First:
		v, ok, err := f.a.Poll()
		if err != nil || !ok {
			return Either[A, B]{}, false, err
		}
		return NewFirst[A, B](v), true, nil
	case Second:
		v, ok, err := f.b.Poll()
		if err != nil || !ok {
			return Either[A, B]{}, false, err
		}
		return NewSecond[A, B](v), true, nil
	}
	panic("either: future holds no case")
}
