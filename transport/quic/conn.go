package quic

import (
	"context"
	"errors"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog/log"

	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
	"github.com/ddorgan/libp2p-sim/transport"
)

var errOutboundClosed = errors.New("quic: outbound side closed")

// resetCode is the application error code used when tearing down a
// substream that still has live directions.
const resetCode quic.StreamErrorCode = 0

// Conn is an established QUIC connection exposed through the stream muxing
// contract; it implements muxing.StreamMuxer[*Stream, *PendingStream].
type Conn struct {
	id string
	qc quic.Connection

	// ctx spans the connection; acceptCtx only the inbound accept loop, so
	// closing the inbound side leaves outbound opens untouched.
	ctx          context.Context
	cancel       context.CancelFunc
	acceptCtx    context.Context
	cancelAccept context.CancelFunc

	mu             sync.Mutex
	inbound        []*Stream
	inErr          error
	inDone         bool
	inboundClosed  bool
	outboundClosed bool
	streams        map[*Stream]struct{}
}

func newConn(qc quic.Connection) *Conn {
	c := &Conn{
		id:      shortuuid.New(),
		qc:      qc,
		streams: make(map[*Stream]struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.acceptCtx, c.cancelAccept = context.WithCancel(c.ctx)
	go c.acceptStreams()
	return c
}

// ID returns the connection's debugging identifier.
func (c *Conn) ID() string { return c.id }

func (c *Conn) acceptStreams() {
	for {
		qs, err := c.qc.AcceptStream(c.acceptCtx)
		if err != nil {
			var appErr *quic.ApplicationError
			c.mu.Lock()
			switch {
			case errors.As(err, &appErr), errors.Is(err, context.Canceled):
				c.inDone = true
			default:
				c.inErr = err
			}
			c.mu.Unlock()
			return
		}
		s := c.adopt(qs)
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

// adopt wraps a raw QUIC stream and starts its pumps.
func (c *Conn) adopt(qs quic.Stream) *Stream {
	s := &Stream{owner: c, qs: qs, wq: muxing.NewWriteQueue()}
	c.mu.Lock()
	c.streams[s] = struct{}{}
	c.mu.Unlock()
	go s.rp.Run(qs)
	go s.wq.Run(qs, qs.Close)
	return s
}

func (c *Conn) drop(s *Stream) {
	s.qs.CancelRead(resetCode)
	s.qs.CancelWrite(resetCode)
	s.wq.Abort()
	s.rp.Abort(errors.New("quic: substream dropped"))
}

func (c *Conn) check(s *Stream) {
	if s == nil || s.owner != c {
		panic("quic: substream does not belong to this connection")
	}
	c.mu.Lock()
	_, ok := c.streams[s]
	c.mu.Unlock()
	if !ok {
		panic("quic: use of destroyed substream")
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
		qs, err := c.qc.OpenStreamSync(c.ctx)
		if err != nil {
			o.p.Fail(err)
			return
		}
		s := c.adopt(qs)
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

// PendingStream is an outbound substream request in flight.
type PendingStream struct {
	owner *Conn
	p     *futures.Promise[*Stream]

	mu        sync.Mutex
	consumed  bool
	destroyed bool
}

func (c *Conn) PollOutbound(o *PendingStream) (*Stream, futures.State, error) {
	if o == nil || o.owner != c {
		panic("quic: outbound handle does not belong to this connection")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.consumed || o.destroyed {
		panic("quic: reuse of resolved or destroyed outbound handle")
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
		panic("quic: outbound handle does not belong to this connection")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.consumed {
		panic("quic: destroying an outbound handle that already resolved")
	}
	if o.destroyed {
		panic("quic: outbound handle destroyed twice")
	}
	o.destroyed = true
	if s, ok, _ := o.p.Poll(); ok {
		// Resolved between the last poll and now; reclaim the stream.
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
		panic("quic: substream does not belong to this connection")
	}
	c.mu.Lock()
	if _, ok := c.streams[s]; !ok {
		c.mu.Unlock()
		panic("quic: substream destroyed twice")
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
	c.cancelAccept()
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

// Close tears down the whole connection and every substream on it.
func (c *Conn) Close() error {
	c.cancel()
	err := c.qc.CloseWithError(0, "")
	if err != nil && !transport.IsOKNetworkError(err) {
		log.Debug().Err(err).Str("conn", c.id).Msg("quic connection close")
	}
	return err
}
