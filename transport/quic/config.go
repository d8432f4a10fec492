package quic

import (
	"time"

	"github.com/quic-go/quic-go"
)

var qConfig = &quic.Config{
	HandshakeIdleTimeout:       5 * time.Second,
	MaxIdleTimeout:             30 * time.Second,
	KeepAlivePeriod:            1 * time.Second,
	MaxIncomingStreams:         1 << 60,
	MaxIncomingUniStreams:      -1,
	MaxConnectionReceiveWindow: 30 * (1 << 20), // 30 MB
	MaxStreamReceiveWindow:     6 * (1 << 20),  // 6 MB
	Versions:                   []quic.Version{quic.Version2},
}
