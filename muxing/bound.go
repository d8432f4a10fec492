package muxing

// Bound ties a substream to the muxer that owns it, presenting the pair as a
// single RawStream value. Close destroys the substream.
type Bound[S, O any] struct {
	m StreamMuxer[S, O]
	s S
}

// Bind wraps (m, s) into a RawStream.
func Bind[S, O any](m StreamMuxer[S, O], s S) *Bound[S, O] {
	return &Bound[S, O]{m: m, s: s}
}

// Substream returns the wrapped substream.
func (b *Bound[S, O]) Substream() S { return b.s }

func (b *Bound[S, O]) Read(p []byte) (int, error)  { return b.m.ReadSubstream(b.s, p) }
func (b *Bound[S, O]) Write(p []byte) (int, error) { return b.m.WriteSubstream(b.s, p) }
func (b *Bound[S, O]) Flush() error                { return b.m.FlushSubstream(b.s) }
func (b *Bound[S, O]) Shutdown() error             { return b.m.ShutdownSubstream(b.s) }

func (b *Bound[S, O]) Close() error {
	b.m.DestroySubstream(b.s)
	return nil
}
