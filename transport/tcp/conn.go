package tcp

import (
	"errors"
	"sync"

	"github.com/hashicorp/yamux"
	"github.com/lithammer/shortuuid/v4"

	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
	"github.com/ddorgan/libp2p-sim/transport"
)

var errOutboundClosed = errors.New("tcp: outbound side closed")

// Conn is a yamux session exposed through the stream muxing contract; it
// implements muxing.StreamMuxer[*Stream, *PendingStream].
type Conn struct {
	id      string
	session *yamux.Session

	mu             sync.Mutex
	inbound        []*Stream
	inErr          error
	inDone         bool
	inboundClosed  bool
	outboundClosed bool
	streams        map[*Stream]struct{}
}

// Stream is one yamux stream exposed as a substream of a Conn, with pump
// buffering on both directions to satisfy the non-blocking contract.
type Stream struct {
	owner *Conn
	ys    *yamux.Stream
	rp    muxing.ReadPump
	wq    *muxing.WriteQueue
}

// PendingStream is an outbound substream request in flight.
type PendingStream struct {
	owner *Conn
	p     *futures.Promise[*Stream]

	mu        sync.Mutex
	consumed  bool
	destroyed bool
}

func newConn(session *yamux.Session) *Conn {
	c := &Conn{
		id:      shortuuid.New(),
		session: session,
		streams: make(map[*Stream]struct{}),
	}
	go c.acceptStreams()
	return c
}

// ID returns the session's debugging identifier.
func (c *Conn) ID() string { return c.id }

func (c *Conn) acceptStreams() {
	for {
		ys, err := c.session.AcceptStream()
		if err != nil {
			c.mu.Lock()
			if errors.Is(err, yamux.ErrSessionShutdown) || transport.IsOKNetworkError(err) {
				c.inDone = true
			} else {
				c.inErr = err
			}
			c.mu.Unlock()
			return
		}
		s := c.adopt(ys)
		c.mu.Lock()
		if c.inboundClosed {
			c.mu.Unlock()
			c.drop(s)
			continue
		}
		c.inbound = append(c.inbound, s)
		c.mu.Unlock()
	}
}

func (c *Conn) adopt(ys *yamux.Stream) *Stream {
	s := &Stream{owner: c, ys: ys, wq: muxing.NewWriteQueue()}
	c.mu.Lock()
	c.streams[s] = struct{}{}
	c.mu.Unlock()
	go s.rp.Run(ys)
	go s.wq.Run(ys, ys.Close)
	return s
}

func (c *Conn) drop(s *Stream) {
	s.wq.Abort()
	s.rp.Abort(errors.New("tcp: substream dropped"))
	_ = s.ys.Close()
}

func (c *Conn) check(s *Stream) {
	if s == nil || s.owner != c {
		panic("tcp: substream does not belong to this session")
	}
	c.mu.Lock()
	_, ok := c.streams[s]
	c.mu.Unlock()
	if !ok {
		panic("tcp: use of destroyed substream")
	}
}

func (c *Conn) PollInbound() (*Stream, futures.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inboundClosed {
		return nil, futures.Done, nil
	}
	if len(c.inbound) > 0 {
		s := c.inbound[0]
		c.inbound = c.inbound[1:]
		return s, futures.Ready, nil
	}
	if c.inErr != nil {
		return nil, futures.Done, c.inErr
	}
	if c.inDone {
		return nil, futures.Done, nil
	}
	return nil, futures.Pending, nil
}

func (c *Conn) OpenOutbound() *PendingStream {
	o := &PendingStream{owner: c, p: futures.NewPromise[*Stream]()}
	c.mu.Lock()
	closed := c.outboundClosed
	c.mu.Unlock()
	if closed {
		o.p.Fail(errOutboundClosed)
		return o
	}
	go func() {
		ys, err := c.session.OpenStream()
		if err != nil {
			o.p.Fail(err)
			return
		}
		s := c.adopt(ys)
		o.mu.Lock()
		abandoned := o.destroyed
		o.mu.Unlock()
		if abandoned {
			c.remove(s)
			c.drop(s)
			return
		}
		o.p.Resolve(s)
	}()
	return o
}

func (c *Conn) PollOutbound(o *PendingStream) (*Stream, futures.State, error) {
	if o == nil || o.owner != c {
		panic("tcp: outbound handle does not belong to this session")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.consumed || o.destroyed {
		panic("tcp: reuse of resolved or destroyed outbound handle")
	}
	s, ok, err := o.p.Poll()
	if err != nil {
		return nil, futures.Done, err
	}
	if !ok {
		return nil, futures.Pending, nil
	}
	o.consumed = true
	return s, futures.Ready, nil
}

func (c *Conn) DestroyOutbound(o *PendingStream) {
	if o == nil || o.owner != c {
		panic("tcp: outbound handle does not belong to this session")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.consumed {
		panic("tcp: destroying an outbound handle that already resolved")
	}
	if o.destroyed {
		panic("tcp: outbound handle destroyed twice")
	}
	o.destroyed = true
	if s, ok, _ := o.p.Poll(); ok {
		c.remove(s)
		c.drop(s)
	}
}

func (c *Conn) remove(s *Stream) {
	c.mu.Lock()
	delete(c.streams, s)
	c.mu.Unlock()
}

func (c *Conn) ReadSubstream(s *Stream, p []byte) (int, error) {
	c.check(s)
	return s.rp.Read(p)
}

func (c *Conn) WriteSubstream(s *Stream, p []byte) (int, error) {
	c.check(s)
	return s.wq.Write(p)
}

func (c *Conn) FlushSubstream(s *Stream) error {
	c.check(s)
	return s.wq.Flush()
}

func (c *Conn) ShutdownSubstream(s *Stream) error {
	c.check(s)
	return s.wq.Shutdown()
}

func (c *Conn) DestroySubstream(s *Stream) {
	if s == nil || s.owner != c {
		panic("tcp: substream does not belong to this session")
	}
	c.mu.Lock()
	if _, ok := c.streams[s]; !ok {
		c.mu.Unlock()
		panic("tcp: substream destroyed twice")
	}
	delete(c.streams, s)
	c.mu.Unlock()
	c.drop(s)
}

func (c *Conn) CloseInbound() {
	c.mu.Lock()
	c.inboundClosed = true
	queued := c.inbound
	c.inbound = nil
	c.mu.Unlock()
	for _, s := range queued {
		c.remove(s)
		c.drop(s)
	}
}

func (c *Conn) CloseOutbound() {
	c.mu.Lock()
	c.outboundClosed = true
	c.mu.Unlock()
}

// Close tears down the session and every substream on it.
func (c *Conn) Close() error {
	return c.session.Close()
}
