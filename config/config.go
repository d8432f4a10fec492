package config

import "time"

var (
	// DialTimeout bounds transport-level connection establishment.
	DialTimeout = 10 * time.Second
	// ShutdownTimeout bounds graceful teardown in the demo binary.
	ShutdownTimeout = 2 * time.Second
)

// ALPN is the protocol name negotiated on TLS-carrying transports.
const ALPN = "libp2p-sim"

// Ping configures the demo ping round trip.
type Ping struct {
	Transport string // "memory", "quic" or "tcp"
	Address   string // listen address; empty picks a transport default
	Payload   string
}
