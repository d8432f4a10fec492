package muxing

import (
	"bytes"
	"io"
	"sync"
)

// ReadPump buffers reads from a blocking reader so they can be consumed
// through the non-blocking contract. Adapters over blocking libraries run
// Run in a goroutine and serve reads from the buffer.
type ReadPump struct {
	mu  sync.Mutex
	buf bytes.Buffer
	eof bool
	err error
}

// Run copies from r into the pump until EOF or error. It is the goroutine
// body; it returns when r is exhausted.
func (p *ReadPump) Run(r io.Reader) {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			p.mu.Lock()
			p.buf.Write(chunk[:n])
			p.mu.Unlock()
		}
		if err != nil {
			p.mu.Lock()
			if err == io.EOF {
				p.eof = true
			} else {
				p.err = err
			}
			p.mu.Unlock()
			return
		}
	}
}

// Read drains buffered data. (0, ErrWouldBlock) when empty, io.EOF once the
// underlying reader finished cleanly.
func (p *ReadPump) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() > 0 {
		return p.buf.Read(b)
	}
	if p.err != nil {
		return 0, p.err
	}
	if p.eof {
		return 0, io.EOF
	}
	return 0, ErrWouldBlock
}

// Abort discards buffered data and makes further reads fail with err.
func (p *ReadPump) Abort(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Reset()
	if p.err == nil && !p.eof {
		p.err = err
	}
}

// WriteQueue orders writes to a blocking writer. Write and Flush are
// non-blocking; a goroutine running Run drains the queue. Shutdown half
// closes the writer (via the closer passed to Run) once the queue drains.
type WriteQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  [][]byte
	inflight bool
	shutdown bool
	closed   bool
	aborted  bool
	err      error
}

func NewWriteQueue() *WriteQueue {
	q := &WriteQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Run drains the queue into w, calling closeWrite once after a Shutdown
// request has been fully drained. It is the goroutine body.
func (q *WriteQueue) Run(w io.Writer, closeWrite func() error) {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.shutdown && !q.aborted {
			q.cond.Wait()
		}
		if q.aborted {
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.inflight = len(batch) > 0
		done := q.shutdown && len(batch) == 0
		q.mu.Unlock()

		for _, b := range batch {
			if _, err := w.Write(b); err != nil {
				q.mu.Lock()
				q.err = err
				q.inflight = false
				q.mu.Unlock()
				return
			}
		}

		q.mu.Lock()
		q.inflight = false
		q.mu.Unlock()

		if done {
			err := closeWrite()
			q.mu.Lock()
			q.closed = true
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
			return
		}
	}
}

// Write queues b. The queue owns a copy, so callers may reuse b.
func (q *WriteQueue) Write(b []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	if q.shutdown || q.closed || q.aborted {
		return 0, io.ErrClosedPipe
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	q.pending = append(q.pending, buf)
	q.cond.Signal()
	return len(b), nil
}

// Flush reports ErrWouldBlock until all queued writes reached the writer.
func (q *WriteQueue) Flush() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if len(q.pending) > 0 || q.inflight {
		return ErrWouldBlock
	}
	return nil
}

// Shutdown requests a write-side close. ErrWouldBlock until the queue has
// drained and the closer ran; then nil.
func (q *WriteQueue) Shutdown() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil && !q.closed {
		return q.err
	}
	if q.closed {
		return nil
	}
	q.shutdown = true
	q.cond.Signal()
	return ErrWouldBlock
}

// Abort stops the pump without flushing. Pending writes are dropped.
func (q *WriteQueue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = true
	q.pending = nil
	if q.err == nil {
		q.err = io.ErrClosedPipe
	}
	q.cond.Signal()
}
