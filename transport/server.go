// Package transport implements the producer-side QUIC listener and the
// consumer-side QUIC client, plus the shared TLS setup both use.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ample-labs/geyser-gateway/fanout"
	"github.com/ample-labs/geyser-gateway/frame"
	"github.com/ample-labs/geyser-gateway/iox"
	"github.com/ample-labs/geyser-gateway/log"
	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/types"
)

// DrainDeadline bounds how long Close waits for connection goroutines to
// return before it stops waiting. Serializers stop as soon as the serving
// context is cancelled; envelopes still in the fan-out queues at that point
// are not sent.
const DrainDeadline = 2 * time.Second

// ServerConfig configures a Server.
type ServerConfig struct {
	BindAddr    string
	TLS         *tls.Config
	ProducerID  uuid.UUID
	Compression types.CompressionKind
}

// Server accepts QUIC connections from consumers, drives the handshake, and
// pumps fan-out queue contents onto each connection's per-kind data streams.
type Server struct {
	cfg      ServerConfig
	listener *quic.Listener
	queues   *fanout.Set
	metrics  *metrics.Collector
	logger   *log.Logger

	mu   sync.Mutex
	wg   sync.WaitGroup
	quit chan struct{}
}

// Start binds a QUIC listener on cfg.BindAddr and returns a Server handle.
// Call Serve to begin accepting connections.
func Start(cfg ServerConfig, queues *fanout.Set, m *metrics.Collector, logger *log.Logger) (*Server, *types.GatewayError) {
	quicCfg := &quic.Config{MaxIdleTimeout: 30 * time.Second}
	l, err := quic.ListenAddr(cfg.BindAddr, cfg.TLS, quicCfg)
	if err != nil {
		return nil, types.NewGatewayError(types.ErrConfiguration, "binding QUIC listener", err)
	}
	return &Server{
		cfg:      cfg,
		listener: l,
		queues:   queues,
		metrics:  m,
		logger:   logger,
		quit:     make(chan struct{}),
	}, nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			select {
			case <-s.quit:
				return
			case <-ctx.Done():
				return
			default:
				s.logger.Warn("accept failed", map[string]any{"err": err.Error()})
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Close stops accepting new connections and waits up to DrainDeadline for
// in-flight work to finish before returning.
func (s *Server) Close() error {
	close(s.quit)
	err := s.listener.Close()
	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(DrainDeadline):
		s.logger.Warn("drain deadline exceeded, forcing shutdown", nil)
	}
	return err
}

func (s *Server) handleConnection(ctx context.Context, conn quic.Connection) {
	state := types.NewConnectionState(uuid.New(), conn.RemoteAddr())
	s.metrics.IncConnectionAccepted()
	defer s.metrics.DecConnectionActive()

	connLogger := s.logger.With(map[string]any{"connection_id": state.ConnectionID.String(), "peer_addr": state.PeerAddr.String()})

	control, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		connLogger.Error("failed to open control stream", map[string]any{"err": err.Error()})
		return
	}
	if err := s.sendHandshake(control); err != nil {
		connLogger.Error("failed to send handshake", map[string]any{"err": err.Error()})
		s.metrics.IncHandshakeFailure()
		return
	}
	state.Transition(types.PhaseRunning)

	comp, cerr := compressorFor(s.cfg.Compression)
	if cerr != nil {
		connLogger.Error("failed to init compressor", map[string]any{"err": cerr.Error()})
		return
	}

	var streamWg sync.WaitGroup
	for _, kind := range types.AllEventKinds() {
		streamWg.Add(1)
		go func(kind types.EventKind) {
			defer streamWg.Done()
			s.serveDataStream(ctx, conn, kind, comp, state, connLogger)
		}(kind)
	}

	<-ctx.Done()
	state.Transition(types.PhaseDraining)
	streamWg.Wait()
	state.Transition(types.PhaseClosed)
	_ = conn.CloseWithError(0, "shutting down")
}

func (s *Server) sendHandshake(control quic.SendStream) error {
	desc := types.NewHandshakeDescriptor(s.cfg.ProducerID, s.cfg.Compression)
	raw, err := msgpack.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal handshake: %w", err)
	}
	if _, err := control.Write(raw); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}
	return control.Close()
}

func (s *Server) serveDataStream(ctx context.Context, conn quic.Connection, kind types.EventKind, comp frame.Compressor, state *types.ConnectionState, logger *log.Logger) {
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		logger.Error("failed to open data stream", map[string]any{"kind": kind.String(), "err": err.Error()})
		return
	}
	defer iox.DiscardClose(stream)

	enc := frame.NewEncoder(stream, kind, comp)
	queue := s.queues.For(kind)
	done := ctx.Done()

	for {
		env, ok := queue.Pop(done)
		if !ok {
			return
		}
		raw, merr := msgpack.Marshal(env)
		if merr != nil {
			logger.Warn("failed to marshal envelope", map[string]any{"kind": kind.String(), "err": merr.Error()})
			continue
		}
		n, gerr := enc.EncodeFrame(raw)
		if gerr != nil {
			logger.Warn("failed to write frame", map[string]any{"kind": kind.String(), "err": gerr.Error()})
			if gerr.Fatal() {
				return
			}
			continue
		}
		state.RecordFrame(kind, n)
		s.metrics.IncFramesOut(kind, 1, int64(n))
	}
}

func compressorFor(kind types.CompressionKind) (frame.Compressor, error) {
	switch kind {
	case types.CompressionZstd:
		return frame.NewZstdCompressor()
	case types.CompressionLZ4:
		return frame.NewLZ4Compressor(), nil
	default:
		return frame.NewIdentityCompressor(), nil
	}
}
