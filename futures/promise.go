package futures

import "sync"

// Promise is a Future resolved from another goroutine. It is the bridge
// between blocking libraries and the poll-driven world: an adapter runs the
// blocking call in a goroutine and resolves the promise when it returns.
type Promise[T any] struct {
	mu   sync.Mutex
	v    T
	err  error
	done bool
}

// NewPromise returns an unresolved promise.
func NewPromise[T any]() *Promise[T] { return &Promise[T]{} }

// Resolve completes the promise with v. Resolving twice is a bug and panics.
func (p *Promise[T]) Resolve(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		panic("futures: promise resolved twice")
	}
	p.v = v
	p.done = true
}

// Fail completes the promise with err.
func (p *Promise[T]) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		panic("futures: promise resolved twice")
	}
	p.err = err
	p.done = true
}

func (p *Promise[T]) Poll() (T, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	if !p.done {
		return zero, false, nil
	}
	if p.err != nil {
		return zero, false, p.err
	}
	return p.v, true, nil
}
