package either

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
	"github.com/ddorgan/libp2p-sim/muxing/memmux"
)

func TestEitherCases(t *testing.T) {
	first := NewFirst[int, string](7)
	if first.Tag() != First {
		t.Errorf("incorrect tag: %v", first.Tag())
	}
	if v, ok := first.First(); !ok || v != 7 {
		t.Errorf("first case not populated, v=%d ok=%v", v, ok)
	}
	if _, ok := first.Second(); ok {
		t.Error("second case should not be populated")
	}

	second := NewSecond[int, string]("x")
	if v, ok := second.Second(); !ok || v != "x" {
		t.Errorf("second case not populated, v=%q ok=%v", v, ok)
	}

	var zero Either[int, string]
	if zero.Tag() != 0 {
		t.Errorf("zero value should hold no case, tag=%v", zero.Tag())
	}
}

type mockStream struct {
	readData  []byte
	writeData []byte
	flushed   bool
	shutdown  bool
	closed    bool
}

func (m *mockStream) Read(p []byte) (int, error) {
	n := copy(p, m.readData)
	m.readData = m.readData[n:]
	return n, nil
}

func (m *mockStream) Write(p []byte) (int, error) {
	m.writeData = append(m.writeData, p...)
	return len(p), nil
}

func (m *mockStream) Flush() error    { m.flushed = true; return nil }
func (m *mockStream) Shutdown() error { m.shutdown = true; return nil }
func (m *mockStream) Close() error    { m.closed = true; return nil }

func TestOutputForwardsToPopulatedCase(t *testing.T) {
	inner := &mockStream{readData: []byte("data")}
	var o muxing.RawStream = SecondOutput[*mockStream, *mockStream](inner)

	buf := make([]byte, 8)
	n, err := o.Read(buf)
	if err != nil || string(buf[:n]) != "data" {
		t.Fatalf("read not forwarded, n=%d err=%v", n, err)
	}
	if _, err := o.Write([]byte("reply")); err != nil {
		t.Fatalf("write not forwarded: %v", err)
	}
	if !bytes.Equal(inner.writeData, []byte("reply")) {
		t.Errorf("incorrect forwarded write: %q", inner.writeData)
	}
	if err := o.Flush(); err != nil || !inner.flushed {
		t.Error("flush not forwarded")
	}
	if err := o.Shutdown(); err != nil || !inner.shutdown {
		t.Error("shutdown not forwarded")
	}
	if err := o.Close(); err != nil || !inner.closed {
		t.Error("close not forwarded")
	}
}

func TestFutureWrapsResolvedValue(t *testing.T) {
	p := futures.NewPromise[int]()
	f := FirstFuture[int, string](p)

	if _, ok, err := f.Poll(); ok || err != nil {
		t.Fatalf("pending future should stay pending, ok=%v err=%v", ok, err)
	}

	p.Resolve(9)
	v, ok, err := f.Poll()
	if err != nil || !ok {
		t.Fatalf("unexpected result, ok=%v err=%v", ok, err)
	}
	if got, populated := v.First(); !populated || got != 9 {
		t.Errorf("incorrect wrapped value, got=%d populated=%v", got, populated)
	}
}

func TestFuturePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	f := SecondFuture[int, string](futures.Failed[string](boom))

	if _, _, err := f.Poll(); !errors.Is(err, boom) {
		t.Errorf("incorrect error. want: %v, got: %v", boom, err)
	}
}

type memEither = Muxer[*memmux.Substream, *memmux.Outbound, *memmux.Substream, *memmux.Outbound, *memmux.Muxer, *memmux.Muxer]

func wrapFirst(m *memmux.Muxer) *memEither {
	return FirstMuxer[*memmux.Substream, *memmux.Outbound, *memmux.Substream, *memmux.Outbound, *memmux.Muxer, *memmux.Muxer](m)
}

func wrapSecond(m *memmux.Muxer) *memEither {
	return SecondMuxer[*memmux.Substream, *memmux.Outbound, *memmux.Substream, *memmux.Outbound, *memmux.Muxer, *memmux.Muxer](m)
}

func TestMuxerTransparency(t *testing.T) {
	ia, ib := memmux.Pair()
	a := wrapFirst(ia)
	b := wrapFirst(ib)

	o := a.OpenOutbound()
	local, st, err := a.PollOutbound(o)
	if err != nil || st != futures.Ready {
		t.Fatalf("open through wrapper failed, st=%v err=%v", st, err)
	}
	remote, st, err := b.PollInbound()
	if err != nil || st != futures.Ready {
		t.Fatalf("accept through wrapper failed, st=%v err=%v", st, err)
	}

	payload := []byte("through the sum type")
	if _, err := a.WriteSubstream(local, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := a.ShutdownSubstream(local); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	buf := make([]byte, 64)
	n, err := b.ReadSubstream(remote, buf)
	if err != nil || !bytes.Equal(buf[:n], payload) {
		t.Fatalf("read failed, n=%d err=%v", n, err)
	}

	b.DestroySubstream(remote)
	a.DestroySubstream(local)
	a.CloseOutbound()
	a.CloseInbound()
	b.CloseInbound()
	b.CloseOutbound()
}

func TestMuxerCaseMismatchPanics(t *testing.T) {
	ia, ib := memmux.Pair()
	a := wrapFirst(ia)
	b := wrapFirst(ib)
	other := wrapSecond(ib)

	o := a.OpenOutbound()
	local, st, err := a.PollOutbound(o)
	if err != nil || st != futures.Ready {
		t.Fatalf("open failed, st=%v err=%v", st, err)
	}
	if _, st, err := b.PollInbound(); err != nil || st != futures.Ready {
		t.Fatalf("accept failed, st=%v err=%v", st, err)
	}

	tests := []struct {
		name string
		fn   func()
	}{
		{
			name: "substream against mismatched case",
			fn:   func() { _, _ = other.ReadSubstream(local, make([]byte, 1)) },
		},
		{
			name: "outbound handle against mismatched case",
			fn:   func() { _, _, _ = other.PollOutbound(NewFirst[*memmux.Outbound, *memmux.Outbound](a.a.OpenOutbound())) },
		},
		{
			name: "zero substream value",
			fn:   func() { _ = a.FlushSubstream(Either[*memmux.Substream, *memmux.Substream]{}) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}
