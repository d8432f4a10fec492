package memory

import (
	"bytes"
	"io"
	"sync"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/muxing"
)

// Conn is one half of an in-process pipe. It satisfies the non-blocking raw
// byte-stream contract: reads drain what the peer has written so far, writes
// land in the peer's read buffer, and the write side can be half-closed
// independently of reading.
type Conn struct {
	link   string
	local  addr.Addr
	remote addr.Addr
	rd     *pipeBuf // peer writes here, we read
	wr     *pipeBuf // we write here, peer reads
}

type pipeBuf struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	eof    bool // writer half-closed
	closed bool
}

func (c *Conn) LocalAddr() addr.Addr  { return c.local }
func (c *Conn) RemoteAddr() addr.Addr { return c.remote }

func (c *Conn) Read(p []byte) (int, error) {
	c.rd.mu.Lock()
	defer c.rd.mu.Unlock()
	if c.rd.closed {
		return 0, io.ErrClosedPipe
	}
	if c.rd.buf.Len() > 0 {
		return c.rd.buf.Read(p)
	}
	if c.rd.eof {
		return 0, io.EOF
	}
	return 0, muxing.ErrWouldBlock
}

func (c *Conn) Write(p []byte) (int, error) {
	c.wr.mu.Lock()
	defer c.wr.mu.Unlock()
	if c.wr.eof {
		return 0, io.ErrClosedPipe
	}
	if c.wr.closed {
		return 0, io.ErrClosedPipe
	}
	return c.wr.buf.Write(p)
}

// Flush is a no-op: writes are visible to the peer immediately.
func (c *Conn) Flush() error { return nil }

// Shutdown half-closes the write side. The peer keeps draining buffered
// data and then sees EOF. Completes synchronously.
func (c *Conn) Shutdown() error {
	c.wr.mu.Lock()
	defer c.wr.mu.Unlock()
	c.wr.eof = true
	return nil
}

func (c *Conn) Close() error {
	c.wr.mu.Lock()
	c.wr.eof = true
	c.wr.mu.Unlock()

	c.rd.mu.Lock()
	c.rd.closed = true
	c.rd.buf.Reset()
	c.rd.mu.Unlock()
	return nil
}
