package either

import (
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
)

// Muxer unifies two stream muxers under one static type. Substreams and
// outbound handles it produces are Either values tagged with the case that
// created them; presenting a value tagged with the other case panics.
type Muxer[SA, OA, SB, OB any, A muxing.StreamMuxer[SA, OA], B muxing.StreamMuxer[SB, OB]] struct {
	tag Tag
	a   A
	b   B
}

// FirstMuxer wraps a first-case muxer.
func FirstMuxer[SA, OA, SB, OB any, A muxing.StreamMuxer[SA, OA], B muxing.StreamMuxer[SB, OB]](m A) *Muxer[SA, OA, SB, OB, A, B] {
	return &Muxer[SA, OA, SB, OB, A, B]{tag: First, a: m}
}

// SecondMuxer wraps a second-case muxer.
func SecondMuxer[SA, OA, SB, OB any, A muxing.StreamMuxer[SA, OA], B muxing.StreamMuxer[SB, OB]](m B) *Muxer[SA, OA, SB, OB, A, B] {
	return &Muxer[SA, OA, SB, OB, A, B]{tag: Second, b: m}
}

// Tag reports which case is populated.
func (m *Muxer[SA, OA, SB, OB, A, B]) Tag() Tag { return m.tag }

func (m *Muxer[SA, OA, SB, OB, A, B]) PollInbound() (Either[SA, SB], futures.State, error) {
	switch m.tag {
	case First:
		s, st, err := m.a.PollInbound()
		if err != nil || st != futures.Ready {
			return Either[SA, SB]{}, st, err
		}
		return NewFirst[SA, SB](s), futures.Ready, nil
	case Second:
		s, st, err := m.b.PollInbound()
		if err != nil || st != futures.Ready {
			return Either[SA, SB]{}, st, err
		}
		return NewSecond[SA, SB](s), futures.Ready, nil
	}
	panic("either: muxer holds no case")
}

func (m *Muxer[SA, OA, SB, OB, A, B]) OpenOutbound() Either[OA, OB] {
	switch m.tag {
	case First:
		return NewFirst[OA, OB](m.a.OpenOutbound())
	case Second:
		return NewSecond[OA, OB](m.b.OpenOutbound())
	}
	panic("either: muxer holds no case")
}

func (m *Muxer[SA, OA, SB, OB, A, B]) PollOutbound(o Either[OA, OB]) (Either[SA, SB], futures.State, error) {
	switch {
	case m.tag == First && o.tag == First:
		s, st, err := m.a.PollOutbound(o.a)
		if err != nil || st != futures.Ready {
			return Either[SA, SB]{}, st, err
		}
		return NewFirst[SA, SB](s), futures.Ready, nil
	case m.tag == Second && o.tag == Second:
		s, st, err := m.b.PollOutbound(o.b)
		if err != nil || st != futures.Ready {
			return Either[SA, SB]{}, st, err
		}
		return NewSecond[SA, SB](s), futures.Ready, nil
	}
	panic("either: outbound handle does not match muxer case")
}

func (m *Muxer[SA, OA, SB, OB, A, B]) DestroyOutbound(o Either[OA, OB]) {
	switch {
	case m.tag == First && o.tag == First:
		m.a.DestroyOutbound(o.a)
	case m.tag == Second && o.tag == Second:
		m.b.DestroyOutbound(o.b)
	default:
		panic("either: outbound handle does not match muxer case")
	}
}

func (m *Muxer[SA, OA, SB, OB, A, B]) ReadSubstream(s Either[SA, SB], p []byte) (int, error) {
	switch {
	case m.tag == First && s.tag == First:
		return m.a.ReadSubstream(s.a, p)
	case m.tag == Second && s.tag == Second:
		return m.b.ReadSubstream(s.b, p)
	}
	panic("either: substream does not match muxer case")
}

func (m *Muxer[SA, OA, SB, OB, A, B]) WriteSubstream(s Either[SA, SB], p []byte) (int, error) {
	switch {
	case m.tag == First && s.tag == First:
		return m.a.WriteSubstream(s.a, p)
	case m.tag == Second && s.tag == Second:
		return m.b.WriteSubstream(s.b, p)
	}
	panic("either: substream does not match muxer case")
}

func (m *Muxer[SA, OA, SB, OB, A, B]) FlushSubstream(s Either[SA, SB]) error {
	switch {
	case m.tag == First && s.tag == First:
		return m.a.FlushSubstream(s.a)
	case m.tag == Second && s.tag == Second:
		return m.b.FlushSubstream(s.b)
	}
	panic("either: substream does not match muxer case")
}

func (m *Muxer[SA, OA, SB, OB, A, B]) ShutdownSubstream(s Either[SA, SB]) error {
	switch {
	case m.tag == First && s.tag == First:
		return m.a.ShutdownSubstream(s.a)
	case m.tag == Second && s.tag == Second:
		return m.b.ShutdownSubstream(s.b)
	}
	panic("either: substream does not match muxer case")
}

func (m *Muxer[SA, OA, SB, OB, A, B]) DestroySubstream(s Either[SA, SB]) {
	switch {
	case m.tag == First && s.tag == First:
		m.a.DestroySubstream(s.a)
	case m.tag == Second && s.tag == Second:
		m.b.DestroySubstream(s.b)
	default:
		panic("either: substream does not match muxer case")
	}
}

func (m *Muxer[SA, OA, SB, OB, A, B]) CloseInbound() {
	switch m.tag {
	case First:
		m.a.CloseInbound()
	case Second:
		m.b.CloseInbound()
	default:
		panic("either: muxer holds no case")
	}
}

func (m *Muxer[SA, OA, SB, OB, A, B]) CloseOutbound() {
	switch m.tag {
	case First:
		m.a.CloseOutbound()
	case Second:
		m.b.CloseOutbound()
	default:
		panic("either: muxer holds no case")
	}
}
