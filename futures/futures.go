// Package futures provides the minimal poll-driven asynchrony vocabulary the
// transport composition core is written against. Nothing here blocks or
// spawns goroutines; callers re-poll after an external wake-up, which is the
// executor's concern, not ours.
package futures

// State reports the outcome of polling a stream.
type State uint8

const (
	// Pending means no value is available yet; poll again after a wake-up.
	Pending State = iota
	// Ready means a value was produced.
	Ready
	// Done means the stream is exhausted and will produce no further values.
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Done:
		return "done"
	default:
		return "invalid"
	}
}

// Future is a single eventual value of type T.
//
// Poll returns (value, true, nil) once resolved, (zero, false, nil) while
// pending, and (zero, false, err) if the future failed. Polling after
// resolution is undefined.
type Future[T any] interface {
	Poll() (T, bool, error)
}

// Stream is a lazy sequence of values of type T. PollNext never blocks;
// a Ready state carries the next item, Done means the sequence is exhausted.
// An error terminates the stream.
type Stream[T any] interface {
	PollNext() (T, State, error)
}

type resolved[T any] struct {
	v T
}

func (f resolved[T]) Poll() (T, bool, error) { return f.v, true, nil }

// Resolved returns a future that is immediately ready with v.
func Resolved[T any](v T) Future[T] { return resolved[T]{v: v} }

type failed[T any] struct {
	err error
}

func (f failed[T]) Poll() (T, bool, error) {
	var zero T
	return zero, false, f.err
}

// Failed returns a future that immediately fails with err.
func Failed[T any](err error) Future[T] { return failed[T]{err: err} }

type mapFuture[T, U any] struct {
	inner Future[T]
	fn    func(T) (U, error)
}

func (f *mapFuture[T, U]) Poll() (U, bool, error) {
	var zero U
	v, ok, err := f.inner.Poll()
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	u, err := f.fn(v)
	if err != nil {
		return zero, false, err
	}
	return u, true, nil
}

// Map transforms the result of f with fn once it resolves. An error from fn
// fails the returned future.
func Map[T, U any](f Future[T], fn func(T) (U, error)) Future[U] {
	return &mapFuture[T, U]{inner: f, fn: fn}
}

type thenFuture[T, U any] struct {
	first Future[T]
	fn    func(T) Future[U]
	next  Future[U]
}

func (f *thenFuture[T, U]) Poll() (U, bool, error) {
	var zero U
	if f.next == nil {
		v, ok, err := f.first.Poll()
		if err != nil {
			return zero, false, err
		}
		if !ok {
			return zero, false, nil
		}
		f.next = f.fn(v)
		f.first = nil
		f.fn = nil
	}
	return f.next.Poll()
}

// Then chains f with a second asynchronous step. fn runs exactly once, when
// f resolves; errors from either stage fail the returned future.
func Then[T, U any](f Future[T], fn func(T) Future[U]) Future[U] {
	return &thenFuture[T, U]{first: f, fn: fn}
}
