package muxing

import "github.com/ddorgan/libp2p-sim/futures"

// StreamPool recycles substreams over one muxer so short exchanges do not
// pay the open/teardown cost every time. Get hands out an idle substream or
// drives a fresh outbound request; Put returns one for reuse.
//
// Like the muxer it wraps, the pool expects a single poll context.
type StreamPool[S, O any] struct {
	m       StreamMuxer[S, O]
	max     int
	free    []S
	pending []O
}

// NewStreamPool creates a pool keeping at most size idle substreams.
func NewStreamPool[S, O any](m StreamMuxer[S, O], size int) *StreamPool[S, O] {
	return &StreamPool[S, O]{m: m, max: size}
}

// Get returns an idle substream immediately, or opens a new outbound request
// and reports Pending until it resolves.
func (p *StreamPool[S, O]) Get() (S, futures.State, error) {
	var zero S
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		return s, futures.Ready, nil
	}
	if len(p.pending) == 0 {
		p.pending = append(p.pending, p.m.OpenOutbound())
	}
	s, st, err := p.m.PollOutbound(p.pending[0])
	if err != nil {
		// The handle will never resolve; release it.
		p.m.DestroyOutbound(p.pending[0])
		p.pending = p.pending[1:]
		return zero, futures.Done, err
	}
	if st != futures.Ready {
		return zero, futures.Pending, nil
	}
	p.pending = p.pending[1:]
	return s, futures.Ready, nil
}

// Put returns a substream to the pool. When the pool is full the substream
// is destroyed instead.
func (p *StreamPool[S, O]) Put(s S) {
	if len(p.free) >= p.max {
		p.m.DestroySubstream(s)
		return
	}
	p.free = append(p.free, s)
}

// Close releases every idle substream and abandoned outbound request.
func (p *StreamPool[S, O]) Close() {
	for _, s := range p.free {
		p.m.DestroySubstream(s)
	}
	p.free = nil
	for _, o := range p.pending {
		p.m.DestroyOutbound(o)
	}
	p.pending = nil
}
