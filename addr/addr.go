// Package addr defines the opaque address value transports dial and listen
// on. An address is a structured string of the form "/scheme/value", e.g.
// "/memory/1234", "/quic/127.0.0.1:4242" or "/tcp/10.0.0.1:9000". The core
// never interprets the value part; that is each transport's business.
package addr

import "strings"

// Addr is an immutable, comparable network address. The zero value is the
// empty address.
type Addr struct {
	s string
}

// New wraps a raw address string.
func New(s string) Addr { return Addr{s: s} }

func (a Addr) String() string { return a.s }

// IsZero reports whether a is the empty address.
func (a Addr) IsZero() bool { return a.s == "" }

// Equal reports whether two addresses are identical.
func (a Addr) Equal(b Addr) bool { return a == b }

// Scheme returns the leading path component, e.g. "memory" for
// "/memory/1234". Addresses without a leading slash have no scheme.
func (a Addr) Scheme() string {
	rest, ok := strings.CutPrefix(a.s, "/")
	if !ok {
		return ""
	}
	scheme, _, _ := strings.Cut(rest, "/")
	return scheme
}

// Value returns everything after the scheme component, e.g. "1234" for
// "/memory/1234".
func (a Addr) Value() string {
	rest, ok := strings.CutPrefix(a.s, "/")
	if !ok {
		return ""
	}
	_, value, _ := strings.Cut(rest, "/")
	return value
}
