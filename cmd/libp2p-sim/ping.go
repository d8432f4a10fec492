package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ddorgan/libp2p-sim/addr"
	"github.com/ddorgan/libp2p-sim/config"
	"github.com/ddorgan/libp2p-sim/futures"
	"github.com/ddorgan/libp2p-sim/muxing"
	"github.com/ddorgan/libp2p-sim/muxing/memmux"
	"github.com/ddorgan/libp2p-sim/transport"
	"github.com/ddorgan/libp2p-sim/transport/memory"
	"github.com/ddorgan/libp2p-sim/transport/quic"
	"github.com/ddorgan/libp2p-sim/transport/tcp"
	"github.com/ddorgan/libp2p-sim/upgrade"
	"github.com/ddorgan/libp2p-sim/utils/certs"
)

var (
	re          = lipgloss.NewRenderer(os.Stdout)
	HeaderStyle = re.NewStyle().Bold(true).Align(lipgloss.Center)
	CellStyle   = re.NewStyle().Padding(0, 1)
	RowStyle    = CellStyle
	BorderStyle = lipgloss.NewStyle()
)

var (
	pingTransport string
	pingAddress   string
	pingPayload   string

	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Round-trip a payload over an upgraded transport pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), &config.Ping{
				Transport: pingTransport,
				Address:   pingAddress,
				Payload:   pingPayload,
			})
		},
	}
)

func init() {
	pingCmd.Flags().StringVar(&pingTransport, "transport", "memory", "Transport to ping over (memory, quic or tcp)")
	pingCmd.Flags().StringVar(&pingAddress, "address", "", "Listen address (defaults to a transport-specific ephemeral address)")
	pingCmd.Flags().StringVar(&pingPayload, "payload", "ping", "Payload to round-trip")
}

// stageRecord is one upgrade invocation as seen by the recording stages.
type stageRecord struct {
	Stage  string
	Role   upgrade.Endpoint
	Remote addr.Addr
}

type recorder struct {
	mu   sync.Mutex
	rows []stageRecord
}

func (r *recorder) note(stage string, role upgrade.Endpoint, remote addr.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, stageRecord{Stage: stage, Role: role, Remote: remote})
}

// recordStage is a pass-through upgrade that records who it ran for.
func recordStage[C any](rec *recorder, stage string) upgrade.Func[C, C] {
	return upgrade.Sync(func(conn C, ep upgrade.Endpoint, remote addr.Addr) (C, error) {
		rec.note(stage, ep, remote)
		return conn, nil
	})
}

func runPing(ctx context.Context, cfg *config.Ping) error {
	rec := &recorder{}

	var rtt time.Duration
	var err error
	switch cfg.Transport {
	case "memory":
		rtt, err = memoryPing(ctx, cfg, rec)
	case "quic":
		rtt, err = quicPing(ctx, cfg, rec)
	case "tcp":
		rtt, err = tcpPing(ctx, cfg, rec)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		log.Error().Err(err).Msg("ping failed")
		return err
	}

	log.Info().Msgf("round trip of %d bytes over %s took %s", len(cfg.Payload), cfg.Transport, rtt)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(BorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return HeaderStyle
			}

			return RowStyle
		}).
		Headers("№", "Stage", "Role", "Remote")

	rec.mu.Lock()
	for id, row := range rec.rows {
		t.Row(fmt.Sprintf("%d", id+1), row.Stage, row.Role.String(), row.Remote.String())
	}
	rec.mu.Unlock()

	fmt.Println(t)
	return nil
}

func memoryPing(ctx context.Context, cfg *config.Ping, rec *recorder) (time.Duration, error) {
	hub := memory.NewHub()
	exchange := memmux.NewExchange()

	secured := transport.Chain(memory.New(hub), recordStage[*memory.Conn](rec, "plaintext"))
	pipeline := transport.Chain(secured, upgrade.Sync(func(conn *memory.Conn, ep upgrade.Endpoint, remote addr.Addr) (*memmux.Muxer, error) {
		rec.note("memmux", ep, remote)
		return exchange.Claim(conn.Link()), nil
	}))

	listenAddr := cfg.Address
	if listenAddr == "" {
		listenAddr = "/memory/0"
	}
	return pingOver[*memmux.Substream, *memmux.Outbound, *memmux.Muxer](ctx, pipeline, pipeline, listenAddr, []byte(cfg.Payload))
}

func quicPing(ctx context.Context, cfg *config.Ping, rec *recorder) (time.Duration, error) {
	tlsConf, err := certs.Ephemeral("localhost")
	if err != nil {
		return 0, err
	}
	server := transport.Chain(quic.New(tlsConf), recordStage[*quic.Conn](rec, "quic-tls"))
	client := transport.Chain(quic.New(certs.Insecure()), recordStage[*quic.Conn](rec, "quic-tls"))

	listenAddr := cfg.Address
	if listenAddr == "" {
		listenAddr = "/quic/127.0.0.1:0"
	}
	return pingOver[*quic.Stream, *quic.PendingStream, *quic.Conn](ctx, server, client, listenAddr, []byte(cfg.Payload))
}

func tcpPing(ctx context.Context, cfg *config.Ping, rec *recorder) (time.Duration, error) {
	tlsConf, err := certs.Ephemeral("localhost")
	if err != nil {
		return 0, err
	}
	server := transport.Chain(tcp.New(tlsConf), recordStage[*tcp.Conn](rec, "tcp-tls"))
	client := transport.Chain(tcp.New(certs.Insecure()), recordStage[*tcp.Conn](rec, "tcp-tls"))

	listenAddr := cfg.Address
	if listenAddr == "" {
		listenAddr = "/tcp/127.0.0.1:0"
	}
	return pingOver[*tcp.Stream, *tcp.PendingStream, *tcp.Conn](ctx, server, client, listenAddr, []byte(cfg.Payload))
}

// pingOver listens with server, dials the bound address with client, and
// round-trips payload on one substream.
func pingOver[S, O any, M muxing.StreamMuxer[S, O]](ctx context.Context, server transport.Transport[M], client transport.Transport[M], listenAddr string, payload []byte) (time.Duration, error) {
	ln, bound, err := server.Listen(addr.New(listenAddr))
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	log.Info().Msgf("listening on %s", bound)

	// The echo side holds its substream until the dialer has read the full
	// echo; destroying earlier could reset in-flight data on real transports.
	done := make(chan struct{})

	var rtt time.Duration
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveEcho[S, O](gctx, ln, done)
	})
	g.Go(func() error {
		defer close(done)
		fut, err := client.Dial(bound)
		if err != nil {
			return err
		}
		rtt, err = dialPing[S, O](gctx, fut, payload)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return rtt, nil
}

func serveEcho[S, O any, M muxing.StreamMuxer[S, O]](ctx context.Context, ln transport.Listener[M], done <-chan struct{}) error {
	item, _, err := futures.WaitNext[transport.Incoming[M]](ctx, ln)
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	log.Info().Msgf("accepted connection from %s", item.Remote)

	m, err := futures.Wait(ctx, item.Conn)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	s, st, err := muxing.AwaitInbound[S, O](ctx, m)
	if err != nil {
		return fmt.Errorf("inbound substream: %w", err)
	}
	if st != futures.Ready {
		return fmt.Errorf("inbound substream sequence ended before the ping arrived")
	}

	payload, err := muxing.ReadAll[S, O](ctx, m, s)
	if err != nil {
		return fmt.Errorf("read ping: %w", err)
	}
	if err := muxing.WriteAll[S, O](ctx, m, s, payload); err != nil {
		return fmt.Errorf("write echo: %w", err)
	}
	if err := muxing.Drive(ctx, func() error { return m.ShutdownSubstream(s) }); err != nil {
		return fmt.Errorf("shutdown echo: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.DestroySubstream(s)
	m.CloseInbound()
	m.CloseOutbound()
	return nil
}

func dialPing[S, O any, M muxing.StreamMuxer[S, O]](ctx context.Context, fut futures.Future[M], payload []byte) (time.Duration, error) {
	m, err := futures.Wait(ctx, fut)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}

	start := time.Now()
	o := m.OpenOutbound()
	s, st, err := muxing.AwaitOutbound[S, O](ctx, m, o)
	if err != nil {
		m.DestroyOutbound(o)
		return 0, fmt.Errorf("open substream: %w", err)
	}
	if st != futures.Ready {
		m.DestroyOutbound(o)
		return 0, fmt.Errorf("outbound substream was refused")
	}

	if err := muxing.WriteAll[S, O](ctx, m, s, payload); err != nil {
		return 0, fmt.Errorf("write ping: %w", err)
	}
	if err := muxing.Drive(ctx, func() error { return m.FlushSubstream(s) }); err != nil {
		return 0, fmt.Errorf("flush ping: %w", err)
	}
	if err := muxing.Drive(ctx, func() error { return m.ShutdownSubstream(s) }); err != nil {
		return 0, fmt.Errorf("shutdown ping: %w", err)
	}

	echoed, err := muxing.ReadAll[S, O](ctx, m, s)
	if err != nil {
		return 0, fmt.Errorf("read echo: %w", err)
	}
	rtt := time.Since(start)
	if !bytes.Equal(echoed, payload) {
		return 0, fmt.Errorf("payload mismatch: sent %q, got %q", payload, echoed)
	}

	m.DestroySubstream(s)
	m.CloseOutbound()
	m.CloseInbound()
	return rtt, nil
}
