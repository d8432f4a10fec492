// Package either provides closed two-case sum types used to let two concrete
// implementations of a contract share one static type. Every wrapper
// dispatches on the populated case and forwards to the inner value's
// operation, re-wrapping produced values in the same case.
//
// Pairing values across cases — say a muxer holding the first case with a
// substream tagged second — is a composition bug, never an environmental
// condition, and panics loudly instead of corrupting state.
package either

// Tag identifies the populated case. The zero Tag is invalid.
type Tag uint8

const (
	First Tag = iota + 1
	Second
)

func (t Tag) String() string {
	switch t {
	case First:
		return "first"
	case Second:
		return "second"
	default:
		return "invalid"
	}
}

// Either holds exactly one of A or B. The zero value holds neither and is
// only valid as a placeholder.
type Either[A, B any] struct {
	tag Tag
	a   A
	b   B
}

// NewFirst populates the first case.
func NewFirst[A, B any](a A) Either[A, B] { return Either[A, B]{tag: First, a: a} }

// NewSecond populates the second case.
func NewSecond[A, B any](b B) Either[A, B] { return Either[A, B]{tag: Second, b: b} }

// Tag reports which case is populated.
func (e Either[A, B]) Tag() Tag { return e.tag }

// First returns the first-case value and whether it is populated.
func (e Either[A, B]) First() (A, bool) { return e.a, e.tag == First }

// Second returns the second-case value and whether it is populated.
func (e Either[A, B]) Second() (B, bool) { return e.b, e.tag == Second }
