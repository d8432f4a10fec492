package memmux

import "sync"

// Exchange pairs the two ends of an established connection with connected
// muxer endpoints, keyed by a link id both sides know (for instance the
// in-memory transport's pipe link). The first side to claim a link creates
// the pair and keeps one endpoint; the second side receives the other.
//
// This is the multiplexing upgrade for in-process pipelines, where no wire
// protocol runs between the two sides.
type Exchange struct {
	mu      sync.Mutex
	pending map[string]*Muxer
}

// NewExchange creates an empty rendezvous table.
func NewExchange() *Exchange {
	return &Exchange{pending: make(map[string]*Muxer)}
}

// Claim returns this side's muxer endpoint for link.
func (x *Exchange) Claim(link string) *Muxer {
	x.mu.Lock()
	defer x.mu.Unlock()
	if m, ok := x.pending[link]; ok {
		delete(x.pending, link)
		return m
	}
	a, b := Pair()
	x.pending[link] = b
	return a
}
