package quic

import (
	"github.com/quic-go/quic-go"

	"github.com/ddorgan/libp2p-sim/muxing"
)

// Stream is one QUIC stream exposed as a substream of a Conn. Reads are
// served from a pump buffer, writes go through an ordered queue, so the
// muxing contract's non-blocking guarantees hold even though quic-go's
// stream API blocks.
type Stream struct {
	owner *Conn
	qs    quic.Stream
	rp    muxing.ReadPump
	wq    *muxing.WriteQueue
}
