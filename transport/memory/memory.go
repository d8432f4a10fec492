// Package memory implements an in-process transport. Listeners register on a
// hub under "/memory/<id>" addresses; dialing the same address on a
// transport sharing the hub produces a non-blocking pipe between the two
// sides. Useful for tests and as a stand-in for a shared-memory transport.
package memory

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog/log"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/transport"
)

const scheme = "memory"

// Hub is the shared registry connecting transports that can reach each
// other. Distinct hubs are fully isolated, which keeps tests hermetic.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]*listener
	nextID    uint64
}

// NewHub creates an empty registry.
func NewHub() *Hub {
	return &Hub{listeners: make(map[string]*listener), nextID: 1 << 16}
}

func (h *Hub) allocID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		h.nextID++
		id := strconv.FormatUint(h.nextID, 10)
		if _, taken := h.listeners[id]; !taken {
			return id
		}
	}
}

// Transport dials and listens on a hub.
type Transport struct {
	hub *Hub
}

// New returns a transport attached to hub.
func New(hub *Hub) *Transport { return &Transport{hub: hub} }

func (t *Transport) Dial(raddr addr.Addr) (futures.Future[*Conn], error) {
	if raddr.Scheme() != scheme {
		return nil, transport.Reject(raddr, "")
	}

	t.hub.mu.Lock()
	l := t.hub.listeners[raddr.Value()]
	t.hub.mu.Unlock()
	if l == nil {
		// The address is well-formed but nobody is there: an ordinary
		// connection failure, delivered through the future.
		return futures.Failed[*Conn](fmt.Errorf("memory: no listener on %s", raddr)), nil
	}

	local := addr.New("/memory/" + t.hub.allocID())
	dialConn, listenConn := newPipe(local, raddr)
	if !l.deliver(transport.Incoming[*Conn]{
		Conn:   futures.Resolved(listenConn),
		Remote: local,
	}) {
		return futures.Failed[*Conn](fmt.Errorf("memory: listener on %s is gone", raddr)), nil
	}

	log.Debug().Str("link", dialConn.Link()).Msgf("memory dial %s -> %s", local, raddr)
	return futures.Resolved(dialConn), nil
}

func (t *Transport) Listen(laddr addr.Addr) (transport.Listener[*Conn], addr.Addr, error) {
	if laddr.Scheme() != scheme {
		return nil, addr.Addr{}, transport.Reject(laddr, "")
	}

	id := laddr.Value()
	if id == "" || id == "0" {
		id = t.hub.allocID()
	}

	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	if _, taken := t.hub.listeners[id]; taken {
		return nil, addr.Addr{}, transport.Reject(laddr, "address already in use")
	}
	bound := addr.New("/memory/" + id)
	l := &listener{hub: t.hub, id: id, bound: bound}
	t.hub.listeners[id] = l

	log.Debug().Msgf("memory listen on %s", bound)
	return l, bound, nil
}

func (t *Transport) NATTraversal(server, observed addr.Addr) (addr.Addr, bool) {
	// In-process addresses are reachable as-is or not at all.
	return addr.Addr{}, false
}

type listener struct {
	hub   *Hub
	id    string
	bound addr.Addr

	mu     sync.Mutex
	queue  []transport.Incoming[*Conn]
	closed bool
}

func (l *listener) deliver(item transport.Incoming[*Conn]) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, item)
	return true
}

func (l *listener) PollNext() (transport.Incoming[*Conn], futures.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) > 0 {
		item := l.queue[0]
		l.queue = l.queue[1:]
		return item, futures.Ready, nil
	}
	if l.closed {
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

	l.hub.mu.Lock()
	delete(l.hub.listeners, l.id)
	l.hub.mu.Unlock()
	return nil
}

// Link returns the id shared by both halves of a pipe. It lets the two ends
// of one connection recognise each other, e.g. for rendezvous in tests.
func (c *Conn) Link() string { return c.link }

func newPipe(dialerAddr, listenerAddr addr.Addr) (*Conn, *Conn) {
	link := shortuuid.New()
	ab, ba := &pipeBuf{}, &pipeBuf{}
	a := &Conn{link: link, local: dialerAddr, remote: listenerAddr, rd: ba, wr: ab}
	b := &Conn{link: link, local: listenerAddr, remote: dialerAddr, rd: ab, wr: ba}
	return a, b
}
