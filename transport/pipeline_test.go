package transport_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
	"github.com/ddorgan/libp2p-sim/muxing/memmux"
	"github.com/ddorgan/libp2p-sim/transport"
	"github.com/ddorgan/libp2p-sim/transport/memory"
	"github.com/ddorgan/libp2p-sim/upgrade"
)

// buildPipeline composes the in-memory base transport with a pass-through
// security stage and a multiplexing stage, the full shape a node would run.
func buildPipeline(hub *memory.Hub, exchange *memmux.Exchange) transport.Transport[*memmux.Muxer] {
	secured := transport.Chain(memory.New(hub), upgrade.Identity[*memory.Conn]())
	return transport.Chain(secured, upgrade.Sync(func(conn *memory.Conn, ep upgrade.Endpoint, remote addr.Addr) (*memmux.Muxer, error) {
		return exchange.Claim(conn.Link()), nil
	}))
}

func TestPipelinePingPong(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := memory.NewHub()
	exchange := memmux.NewExchange()
	pipeline := buildPipeline(hub, exchange)

	ln, bound, err := pipeline.Listen(addr.New("/memory/1234"))
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	if !bound.Equal(addr.New("/memory/1234")) {
		t.Fatalf("incorrect bound address: %v", bound)
	}

	payload := []byte("ping over the full stack")
	served := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		item, _, err := futures.WaitNext[transport.Incoming[*memmux.Muxer]](gctx, ln)
		if err != nil {
			return err
		}
		m, err := futures.Wait(gctx, item.Conn)
		if err != nil {
			return err
		}

		s, st, err := muxing.AwaitInbound[*memmux.Substream, *memmux.Outbound](gctx, m)
		if err != nil || st != futures.Ready {
			t.Errorf("inbound substream not delivered, st=%v err=%v", st, err)
			return err
		}
		data, err := muxing.ReadAll[*memmux.Substream, *memmux.Outbound](gctx, m, s)
		if err != nil {
			return err
		}
		if _, err := m.WriteSubstream(s, data); err != nil {
			return err
		}
		if err := m.ShutdownSubstream(s); err != nil {
			return err
		}
		close(served)

		// Hold the substream until the dialer read the echo.
		<-gctx.Done()
		return nil
	})

	fut, err := pipeline.Dial(bound)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	m, err := futures.Wait(ctx, fut)
	if err != nil {
		t.Fatalf("dial future failed: %v", err)
	}

	o := m.OpenOutbound()
	s, st, err := muxing.AwaitOutbound[*memmux.Substream, *memmux.Outbound](ctx, m, o)
	if err != nil || st != futures.Ready {
		t.Fatalf("open substream failed, st=%v err=%v", st, err)
	}

	// A second substream stays open for the whole exchange; the ping must not
	// depend on being the only one.
	o2 := m.OpenOutbound()
	decoy, st, err := muxing.AwaitOutbound[*memmux.Substream, *memmux.Outbound](ctx, m, o2)
	if err != nil || st != futures.Ready {
		t.Fatalf("open decoy substream failed, st=%v err=%v", st, err)
	}

	if _, err := m.WriteSubstream(s, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := m.ShutdownSubstream(s); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	echoed, err := muxing.ReadAll[*memmux.Substream, *memmux.Outbound](ctx, m, s)
	if err != nil {
		t.Fatalf("read echo failed: %v", err)
	}
	if !bytes.Equal(echoed, payload) {
		t.Errorf("incorrect echo. want: %q, got: %q", payload, echoed)
	}

	select {
	case <-served:
	case <-ctx.Done():
		t.Fatal("server never finished the exchange")
	}

	m.DestroySubstream(s)
	m.DestroySubstream(decoy)
	m.CloseOutbound()
	m.CloseInbound()

	cancel()
	if err := g.Wait(); err != nil && err != context.Canceled {
		t.Errorf("server goroutine failed: %v", err)
	}
}

func TestPipelineRejectionThenOtherAddress(t *testing.T) {
	hub := memory.NewHub()
	exchange := memmux.NewExchange()
	pipeline := buildPipeline(hub, exchange)

	// The whole pipeline rejects unsupported schemes and stays usable.
	if _, err := pipeline.Dial(addr.New("/quic/1.2.3.4:1")); !transport.IsRejected(err) {
		t.Fatalf("expected rejection, got: %v", err)
	}
	if _, _, err := pipeline.Listen(addr.New("/quic/0.0.0.0:1")); !transport.IsRejected(err) {
		t.Fatalf("expected rejection, got: %v", err)
	}

	ln, bound, err := pipeline.Listen(addr.New("/memory/0"))
	if err != nil {
		t.Fatalf("listen after rejection failed: %v", err)
	}
	defer ln.Close()
	if _, err := pipeline.Dial(bound); err != nil {
		t.Fatalf("dial after rejection failed: %v", err)
	}
}
