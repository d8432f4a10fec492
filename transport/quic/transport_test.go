package quic

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
	"github.com/ddorgan/libp2p-sim/transport"
	"github.com/ddorgan/libp2p-sim/utils/certs"
)

func TestDialWrongSchemeRejects(t *testing.T) {
	tr := New(certs.Insecure())

	bad := addr.New("/tcp/1.2.3.4:80")
	if _, err := tr.Dial(bad); !transport.IsRejected(err) {
		t.Fatalf("expected rejection, got: %v", err)
	}
	if _, _, err := tr.Listen(bad); !transport.IsRejected(err) {
		t.Fatalf("expected rejection, got: %v", err)
	}
}

func TestNATTraversal(t *testing.T) {
	tr := New(certs.Insecure())

	got, ok := tr.NATTraversal(addr.New("/quic/0.0.0.0:4242"), addr.New("/quic/198.51.100.3:50000"))
	if !ok || !got.Equal(addr.New("/quic/198.51.100.3:4242")) {
		t.Errorf("incorrect traversal address, got %v ok=%v", got, ok)
	}
	if _, ok := tr.NATTraversal(addr.New("/tcp/0.0.0.0:4242"), addr.New("/quic/198.51.100.3:50000")); ok {
		t.Error("mismatched schemes should have no answer")
	}
}

func TestLoopbackRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tlsConf, err := certs.Ephemeral("localhost")
	if err != nil {
		t.Fatalf("certificate generation failed: %v", err)
	}
	server := New(tlsConf)
	client := New(certs.Insecure())

	ln, bound, err := server.Listen(addr.New("/quic/127.0.0.1:0"))
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	fut, err := client.Dial(bound)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	dialConn, err := futures.Wait(ctx, fut)
	if err != nil {
		t.Fatalf("dial future failed: %v", err)
	}

	item, st, err := futures.WaitNext[transport.Incoming[*Conn]](ctx, ln)
	if err != nil || st != futures.Ready {
		t.Fatalf("accept failed, st=%v err=%v", st, err)
	}
	acceptConn, err := futures.Wait(ctx, item.Conn)
	if err != nil {
		t.Fatalf("accepted future failed: %v", err)
	}

	o := dialConn.OpenOutbound()
	local, st, err := muxing.AwaitOutbound[*Stream, *PendingStream](ctx, dialConn, o)
	if err != nil || st != futures.Ready {
		t.Fatalf("open substream failed, st=%v err=%v", st, err)
	}
	payload := []byte("quic ping")
	if err := muxing.WriteAll[*Stream, *PendingStream](ctx, dialConn, local, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := muxing.Drive(ctx, func() error { return dialConn.ShutdownSubstream(local) }); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	remote, st, err := muxing.AwaitInbound[*Stream, *PendingStream](ctx, acceptConn)
	if err != nil || st != futures.Ready {
		t.Fatalf("inbound substream failed, st=%v err=%v", st, err)
	}
	got, err := muxing.ReadAll[*Stream, *PendingStream](ctx, acceptConn, remote)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("incorrect payload. want: %q, got: %q", payload, got)
	}
	if err := muxing.WriteAll[*Stream, *PendingStream](ctx, acceptConn, remote, got); err != nil {
		t.Fatalf("echo write failed: %v", err)
	}
	if err := muxing.Drive(ctx, func() error { return acceptConn.ShutdownSubstream(remote) }); err != nil {
		t.Fatalf("echo shutdown failed: %v", err)
	}

	echoed, err := muxing.ReadAll[*Stream, *PendingStream](ctx, dialConn, local)
	if err != nil {
		t.Fatalf("read echo failed: %v", err)
	}
	if !bytes.Equal(echoed, payload) {
		t.Errorf("incorrect echo. want: %q, got: %q", payload, echoed)
	}

	dialConn.DestroySubstream(local)
	acceptConn.DestroySubstream(remote)
	dialConn.Close()
	acceptConn.Close()
}

func TestHalfCloseKeepsReadsAlive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tlsConf, err := certs.Ephemeral("localhost")
	if err != nil {
		t.Fatalf("certificate generation failed: %v", err)
	}
	server := New(tlsConf)
	client := New(certs.Insecure())

	ln, bound, err := server.Listen(addr.New("/quic/127.0.0.1:0"))
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	fut, err := client.Dial(bound)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	dialConn, err := futures.Wait(ctx, fut)
	if err != nil {
		t.Fatalf("dial future failed: %v", err)
	}

	item, _, err := futures.WaitNext[transport.Incoming[*Conn]](ctx, ln)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	acceptConn, err := futures.Wait(ctx, item.Conn)
	if err != nil {
		t.Fatalf("accepted future failed: %v", err)
	}

	// The dialer stops accepting new inbound substreams, then still opens
	// outbound ones: the directions are independent.
	dialConn.CloseInbound()

	o := dialConn.OpenOutbound()
	local, st, err := muxing.AwaitOutbound[*Stream, *PendingStream](ctx, dialConn, o)
	if err != nil || st != futures.Ready {
		t.Fatalf("open after CloseInbound failed, st=%v err=%v", st, err)
	}
	if err := muxing.WriteAll[*Stream, *PendingStream](ctx, dialConn, local, []byte("still open")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := muxing.Drive(ctx, func() error { return dialConn.ShutdownSubstream(local) }); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	remote, st, err := muxing.AwaitInbound[*Stream, *PendingStream](ctx, acceptConn)
	if err != nil || st != futures.Ready {
		t.Fatalf("inbound substream failed, st=%v err=%v", st, err)
	}
	got, err := muxing.ReadAll[*Stream, *PendingStream](ctx, acceptConn, remote)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if !bytes.Equal(got, []byte("still open")) {
		t.Errorf("incorrect payload. want: %q, got: %q", "still open", got)
	}

	dialConn.DestroySubstream(local)
	acceptConn.DestroySubstream(remote)
	dialConn.Close()
	acceptConn.Close()
}
