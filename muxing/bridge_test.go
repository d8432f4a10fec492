package muxing

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func awaitNonBlocking(t *testing.T, fn func() error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := fn()
		if err == nil {
			return
		}
		if !errors.Is(err, ErrWouldBlock) {
			t.Fatalf("unexpected error: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the operation to complete")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReadPump(t *testing.T) {
	var p ReadPump

	pr, pw := io.Pipe()
	go p.Run(pr)

	buf := make([]byte, 16)
	if _, err := p.Read(buf); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("empty pump should report would-block, got: %v", err)
	}

	if _, err := pw.Write([]byte("pumped")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var got []byte
	awaitNonBlocking(t, func() error {
		n, err := p.Read(buf)
		got = append(got, buf[:n]...)
		return err
	})
	if !bytes.Equal(got, []byte("pumped")) {
		t.Errorf("incorrect data. want: %q, got: %q", "pumped", got)
	}

	pw.Close()
	awaitNonBlocking(t, func() error {
		_, err := p.Read(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err == nil {
			return ErrWouldBlock
		}
		return err
	})
}

func TestReadPumpAbort(t *testing.T) {
	var p ReadPump
	boom := errors.New("torn down")

	p.Abort(boom)

	if _, err := p.Read(make([]byte, 4)); !errors.Is(err, boom) {
		t.Errorf("aborted pump should fail reads, got: %v", err)
	}
}

type blockingWriter struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *blockingWriter) closeWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestWriteQueue(t *testing.T) {
	q := NewWriteQueue()
	w := &blockingWriter{}
	go q.Run(w, w.closeWrite)

	payload := []byte("queued bytes")
	n, err := q.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("write failed, n=%d err=%v", n, err)
	}
	awaitNonBlocking(t, q.Flush)

	w.mu.Lock()
	got := append([]byte(nil), w.data...)
	w.mu.Unlock()
	if !bytes.Equal(got, payload) {
		t.Errorf("incorrect drained data. want: %q, got: %q", payload, got)
	}

	awaitNonBlocking(t, q.Shutdown)

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if !closed {
		t.Error("shutdown should have half-closed the writer")
	}

	if _, err := q.Write([]byte("late")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("write after shutdown should fail, got: %v", err)
	}
}

func TestWriteQueueAbort(t *testing.T) {
	q := NewWriteQueue()
	w := &blockingWriter{}
	go q.Run(w, w.closeWrite)

	q.Abort()

	if _, err := q.Write([]byte("x")); err == nil {
		t.Error("write after abort should fail")
	}

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		t.Error("abort must not run the graceful closer")
	}
}

func TestWriteQueueCopiesBuffers(t *testing.T) {
	q := NewWriteQueue()
	w := &blockingWriter{}

	b := []byte("original")
	if _, err := q.Write(b); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	copy(b, "clobber!")

	go q.Run(w, w.closeWrite)
	awaitNonBlocking(t, q.Flush)

	w.mu.Lock()
	got := append([]byte(nil), w.data...)
	w.mu.Unlock()
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("queue must own a copy of the buffer, got: %q", got)
	}
}
