// Package quic adapts quic-go to the poll-driven transport and muxing
// contracts. Addresses look like "/quic/127.0.0.1:4242"; the transport's
// output is a *Conn, which is itself a stream muxer with QUIC streams as
// substreams. Blocking quic-go calls run in pump goroutines; the contract
// surface never blocks.
package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog/log"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/config"
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/transport"
)

const scheme = "quic"

// Transport implements transport.Transport[*Conn] over quic-go.
type Transport struct {
	tlsConf  *tls.Config
	quicConf *quic.Config
}

// New creates a QUIC transport. The same value serves both dialing and
// listening; for listening the TLS config must carry a certificate.
func New(tlsConf *tls.Config) *Transport {
	return &Transport{tlsConf: tlsConf, quicConf: qConfig}
}

func (t *Transport) Dial(raddr addr.Addr) (futures.Future[*Conn], error) {
	if raddr.Scheme() != scheme {
		return nil, transport.Reject(raddr, "")
	}
	p := futures.NewPromise[*Conn]()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
		defer cancel()
		qc, err := quic.DialAddr(ctx, raddr.Value(), t.tlsConf, t.quicConf)
		if err != nil {
			p.Fail(fmt.Errorf("quic: could not dial %s: %w", raddr, err))
			return
		}
		p.Resolve(newConn(qc))
	}()
	return p, nil
}

func (t *Transport) Listen(laddr addr.Addr) (transport.Listener[*Conn], addr.Addr, error) {
	if laddr.Scheme() != scheme {
		return nil, addr.Addr{}, transport.Reject(laddr, "")
	}
	ln, err := quic.ListenAddr(laddr.Value(), t.tlsConf, t.quicConf)
	if err != nil {
		return nil, addr.Addr{}, fmt.Errorf("quic: could not listen on %s: %w", laddr, err)
	}
	bound := addr.New("/quic/" + ln.Addr().String())
	l := &listener{ln: ln}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	go l.acceptLoop()

	log.Debug().Msgf("quic listening on %s", bound)
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
	return addr.New("/quic/" + net.JoinHostPort(host, port)), true
}

type listener struct {
	ln     *quic.Listener
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []transport.Incoming[*Conn]
	err    error
	done   bool
	closed bool
}

func (l *listener) acceptLoop() {
	for {
		qc, err := l.ln.Accept(l.ctx)
		if err != nil {
			l.mu.Lock()
			if l.ctx.Err() != nil || transport.IsOKNetworkError(err) {
				l.done = true
			} else {
				l.err = err
			}
			l.mu.Unlock()
			return
		}
		item := transport.Incoming[*Conn]{
			Conn:   futures.Resolved(newConn(qc)),
			Remote: addr.New("/quic/" + qc.RemoteAddr().String()),
		}
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = qc.CloseWithError(0, "listener closing")
			return
		}
		l.queue = append(l.queue, item)
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

	l.cancel()
	return l.ln.Close()
}
