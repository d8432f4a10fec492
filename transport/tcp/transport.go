// Package tcp adapts TCP (optionally TLS) connections multiplexed with
// yamux to the poll-driven transport and muxing contracts. Addresses look
// like "/tcp/10.0.0.1:9000"; the transport's output is a *Conn, a yamux
// session exposed as a stream muxer.
package tcp

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/hashicorp/yamux"
	"github.com/rs/zerolog/log"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/config"
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/transport"
)

const scheme = "tcp"

// Transport implements transport.Transport[*Conn] over TCP with yamux.
type Transport struct {
	tlsConf *tls.Config // optional; plain TCP when nil
}

// New creates a TCP transport. A nil TLS config means cleartext.
func New(tlsConf *tls.Config) *Transport {
	return &Transport{tlsConf: tlsConf}
}

func (t *Transport) Dial(raddr addr.Addr) (futures.Future[*Conn], error) {
	if raddr.Scheme() != scheme {
		return nil, transport.Reject(raddr, "")
	}
	p := futures.NewPromise[*Conn]()
	go func() {
		d := net.Dialer{Timeout: config.DialTimeout}
		var conn net.Conn
		var err error
		if t.tlsConf != nil {
			conn, err = tls.DialWithDialer(&d, "tcp", raddr.Value(), t.tlsConf)
		} else {
			conn, err = d.Dial("tcp", raddr.Value())
		}
		if err != nil {
			p.Fail(fmt.Errorf("tcp: could not dial %s: %w", raddr, err))
			return
		}
		session, err := yamux.Client(conn, nil)
		if err != nil {
			conn.Close()
			p.Fail(fmt.Errorf("tcp: could not establish yamux session: %w", err))
			return
		}
		p.Resolve(newConn(session))
	}()
	return p, nil
}

func (t *Transport) Listen(laddr addr.Addr) (transport.Listener[*Conn], addr.Addr, error) {
	if laddr.Scheme() != scheme {
		return nil, addr.Addr{}, transport.Reject(laddr, "")
	}
	var ln net.Listener
	var err error
	if t.tlsConf != nil {
		ln, err = tls.Listen("tcp", laddr.Value(), t.tlsConf)
	} else {
		ln, err = net.Listen("tcp", laddr.Value())
	}
	if err != nil {
		return nil, addr.Addr{}, fmt.Errorf("tcp: could not listen on %s: %w", laddr, err)
	}
	bound := addr.New("/tcp/" + ln.Addr().String())
	l := &listener{ln: ln}
	go l.acceptLoop()

	log.Debug().Msgf("tcp listening on %s", bound)
	return l, bound, nil
}

// NATTraversal keeps the observed host and substitutes the advertised port.
func (t *Transport) NATTraversal(server, observed addr.Addr) (addr.Addr, bool) {
	if server.Scheme() != scheme || observed.Scheme() != scheme {
		return addr.Addr{}, false
	}
	_, port, err := net.SplitHostPort(server.Value())
	if err != nil {
		return addr.Addr{}, false
	}
	host, _, err := net.SplitHostPort(observed.Value())
	if err != nil {
		return addr.Addr{}, false
	}
	return addr.New("/tcp/" + net.JoinHostPort(host, port)), true
}

type listener struct {
	ln net.Listener

	mu     sync.Mutex
	queue  []transport.Incoming[*Conn]
	err    error
	done   bool
	closed bool
}

func (l *listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.mu.Lock()
			if l.closed || transport.IsOKNetworkError(err) {
				l.done = true
			} else {
				l.err = err
			}
			l.mu.Unlock()
			return
		}
		remote := addr.New("/tcp/" + conn.RemoteAddr().String())
		session, err := yamux.Server(conn, nil)
		if err != nil {
			log.Debug().Err(err).Msgf("tcp: rejecting connection from %s", remote)
			conn.Close()
			continue
		}
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			session.Close()
			return
		}
		l.queue = append(l.queue, transport.Incoming[*Conn]{
			Conn:   futures.Resolved(newConn(session)),
			Remote: remote,
		})
		l.mu.Unlock()
	}
}

func (l *listener) PollNext() (transport.Incoming[*Conn], futures.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) > 0 {
		item := l.queue[0]
		l.queue = l.queue[1:]
		return item, futures.Ready, nil
	}
	if l.err != nil {
		return transport.Incoming[*Conn]{}, futures.Done, l.err
	}
	if l.done || l.closed {
		return transport.Incoming[*Conn]{}, futures.Done, nil
	}
	return transport.Incoming[*Conn]{}, futures.Pending, nil
}

func (l *listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	return l.ln.Close()
}
