package either

import "github.com/ddorgan/libp2p-sim/muxing"

// Output is a two-case raw byte stream. Both cases keep their concrete type,
// so dispatch is a tag switch rather than an interface call.
type Output[A, B muxing.RawStream] struct {
	tag Tag
	a   A
	b   B
}

// FirstOutput wraps a first-case stream.
func FirstOutput[A, B muxing.RawStream](a A) *Output[A, B] {
	return &Output[A, B]{tag: First, a: a}
}

// SecondOutput wraps a second-case stream.
func SecondOutput[A, B muxing.RawStream](b B) *Output[A, B] {
	return &Output[A, B]{tag: Second, b: b}
}

// Tag reports which case is populated.
func (o *Output[A, B]) Tag() Tag { return o.tag }

func (o *Output[A, B]) Read(p []byte) (int, error) {
	switch o.tag {
	case First:
		return o.a.Read(p)
	case Second:
		return o.b.Read(p)
	}
	panic("either: output holds no case")
}

func (o *Output[A, B]) Write(p []byte) (int, error) {
	switch o.tag {
	case First:
		return o.a.Write(p)
	case Second:
		return o.b.Write(p)
	}
	panic("either: output holds no case")
}

func (o *Output[A, B]) Flush() error {
	switch o.tag {
	case First:
		return o.a.Flush()
	case Second:
		return o.b.Flush()
	}
	panic("either: output holds no case")
}

func (o *Output[A, B]) Shutdown() error {
	switch o.tag {
	case First:
		return o.a.Shutdown()
	case Second:
		return o.b.Shutdown()
	}
	panic("either: output holds no case")
}

func (o *Output[A, B]) Close() error {
	switch o.tag {
	case First:
		return o.a.Close()
	case Second:
		return o.b.Close()
	}
	panic("either: output holds no case")
}
