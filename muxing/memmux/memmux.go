// Package memmux is an in-process reference implementation of the stream
// muxing contract. Pair returns two connected endpoints: substreams opened
// on one side surface as inbound substreams on the other, with no wire
// protocol in between. It backs the contract tests and the in-memory demo
// pipeline.
package memmux

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
)

var (
	errOutboundClosed = errors.New("memmux: outbound side closed")
	errPeerRefusing   = errors.New("memmux: remote no longer accepts substreams")
	errReset          = errors.New("memmux: substream reset by peer")
)

// Muxer is one endpoint of an in-process multiplexed connection. It
// implements muxing.StreamMuxer[*Substream, *Outbound].
type Muxer struct {
	mu   *sync.Mutex // shared with the peer endpoint
	peer *Muxer

	inbound        []*Substream
	inboundClosed  bool
	outboundClosed bool
	remoteDone     bool // peer closed its outbound side

	open map[*Substream]struct{}
}

// Substream is one logical bidirectional channel. It is only valid against
// the muxer that produced it.
type Substream struct {
	id    string
	owner *Muxer
	peer  *Substream

	buf       bytes.Buffer // data written by the peer, read locally
	eof       bool         // peer half-closed its write side
	wclosed   bool         // local write side half-closed
	destroyed bool
}

// ID returns the substream's debugging identifier, shared with its peer.
func (s *Substream) ID() string { return s.id }

// Outbound is a pending open request.
type Outbound struct {
	owner     *Muxer
	err       error
	consumed  bool
	destroyed bool
}

// Pair returns two connected muxer endpoints.
func Pair() (*Muxer, *Muxer) {
	mu := &sync.Mutex{}
	a := &Muxer{mu: mu, open: make(map[*Substream]struct{})}
	b := &Muxer{mu: mu, open: make(map[*Substream]struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (m *Muxer) checkSubstream(s *Substream) {
	if s == nil || s.owner != m {
		panic("memmux: substream does not belong to this muxer")
	}
	if s.destroyed {
		panic("memmux: use of destroyed substream")
	}
}

func (m *Muxer) PollInbound() (*Substream, futures.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inboundClosed {
		return nil, futures.Done, nil
	}
	if len(m.inbound) > 0 {
		s := m.inbound[0]
		m.inbound = m.inbound[1:]
		return s, futures.Ready, nil
	}
	if m.remoteDone {
		return nil, futures.Done, nil
	}
	return nil, futures.Pending, nil
}

func (m *Muxer) OpenOutbound() *Outbound {
	o := &Outbound{owner: m}
	m.mu.Lock()
	if m.outboundClosed {
		o.err = errOutboundClosed
	}
	m.mu.Unlock()
	return o
}

func (m *Muxer) PollOutbound(o *Outbound) (*Substream, futures.State, error) {
	if o == nil || o.owner != m {
		panic("memmux: outbound handle does not belong to this muxer")
	}
	if o.consumed || o.destroyed {
		panic("memmux: reuse of resolved or destroyed outbound handle")
	}
	if o.err != nil {
		return nil, futures.Done, o.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peer.inboundClosed {
		return nil, futures.Done, errPeerRefusing
	}

	id := shortuuid.New()
	local := &Substream{id: id, owner: m}
	remote := &Substream{id: id, owner: m.peer}
	local.peer, remote.peer = remote, local

	m.open[local] = struct{}{}
	m.peer.open[remote] = struct{}{}
	m.peer.inbound = append(m.peer.inbound, remote)

	o.consumed = true
	return local, futures.Ready, nil
}

func (m *Muxer) DestroyOutbound(o *Outbound) {
	if o == nil || o.owner != m {
		panic("memmux: outbound handle does not belong to this muxer")
	}
	if o.consumed {
		panic("memmux: destroying an outbound handle that already resolved")
	}
	if o.destroyed {
		panic("memmux: outbound handle destroyed twice")
	}
	o.destroyed = true
}

func (m *Muxer) ReadSubstream(s *Substream, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkSubstream(s)
	if s.buf.Len() > 0 {
		return s.buf.Read(p)
	}
	if s.eof {
		return 0, io.EOF
	}
	return 0, muxing.ErrWouldBlock
}

func (m *Muxer) WriteSubstream(s *Substream, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkSubstream(s)
	if s.wclosed {
		return 0, io.ErrClosedPipe
	}
	if s.peer.destroyed {
		return 0, errReset
	}
	return s.peer.buf.Write(p)
}

func (m *Muxer) FlushSubstream(s *Substream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkSubstream(s)
	return nil
}

func (m *Muxer) ShutdownSubstream(s *Substream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkSubstream(s)
	s.wclosed = true
	s.peer.eof = true
	return nil
}

func (m *Muxer) DestroySubstream(s *Substream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || s.owner != m {
		panic("memmux: substream does not belong to this muxer")
	}
	if _, ok := m.open[s]; !ok {
		panic("memmux: substream destroyed twice")
	}
	delete(m.open, s)
	s.destroyed = true
	s.buf.Reset()
	s.peer.eof = true
}

func (m *Muxer) CloseInbound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inboundClosed = true
	// Queued substreams will never be handed out; release them.
	for _, s := range m.inbound {
		delete(m.open, s)
		s.destroyed = true
		s.peer.eof = true
	}
	m.inbound = nil
}

func (m *Muxer) CloseOutbound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outboundClosed = true
	m.peer.remoteDone = true
}
