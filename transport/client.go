package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ample-labs/geyser-gateway/frame"
	"github.com/ample-labs/geyser-gateway/log"
	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/types"
)

// ReconnectMinBackoff and ReconnectMaxBackoff bound the client's
// exponential reconnection backoff; each attempt is jittered by ±25%.
const (
	ReconnectMinBackoff = 200 * time.Millisecond
	ReconnectMaxBackoff = 10 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	UpstreamAddr string
	TLS          *tls.Config
}

// Client dials a producer and exposes one decoded-envelope channel per
// event kind. It reconnects automatically on transient transport failure;
// a fatal error (e.g. an incompatible handshake) stops the reconnect loop
// and is reported on Fatal instead of being retried forever.
type Client struct {
	cfg     ClientConfig
	metrics *metrics.Collector
	logger  *log.Logger
	fatal   chan error
}

// NewClient returns a Client dialing per cfg.
func NewClient(cfg ClientConfig, m *metrics.Collector, logger *log.Logger) *Client {
	return &Client{cfg: cfg, metrics: m, logger: logger, fatal: make(chan error, 1)}
}

// Fatal reports a non-retryable error that ended the reconnect loop early,
// such as a producer advertising an incompatible protocol version. It is
// never sent to on a clean, context-cancelled shutdown.
func (c *Client) Fatal() <-chan error {
	return c.fatal
}

// Events starts the client's dial-and-reconnect loop in a new goroutine and
// returns one receive-only channel per event kind, indexed by kind. The
// channels are closed when that loop stops: when ctx is cancelled, or after
// a fatal error has been sent on Fatal.
func (c *Client) Events(ctx context.Context) [5]<-chan *types.EventEnvelope {
	var out [5]<-chan *types.EventEnvelope
	var in [5]chan *types.EventEnvelope
	for _, kind := range types.AllEventKinds() {
		ch := make(chan *types.EventEnvelope, 1024)
		in[kind] = ch
		out[kind] = ch
	}
	go c.run(ctx, in)
	return out
}

func (c *Client) run(ctx context.Context, out [5]chan *types.EventEnvelope) {
	defer func() {
		for _, ch := range out {
			close(ch)
		}
	}()

	backoff := ReconnectMinBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		handshakeOK, err := c.connectAndStream(ctx, out)
		if err != nil {
			if ge, ok := err.(*types.GatewayError); ok && ge.Kind == types.ErrIncompatibleHandshake {
				c.logger.Error("producer advertised an incompatible handshake, giving up", map[string]any{"err": err.Error()})
				c.fatal <- err
				return
			}
			c.logger.Warn("connection lost, reconnecting", map[string]any{"err": err.Error()})
			c.metrics.IncReconnect()
		}
		if ctx.Err() != nil {
			return
		}
		if handshakeOK {
			// The connection ran long enough to complete its handshake
			// before dropping; treat the next attempt as a fresh start.
			backoff = ReconnectMinBackoff
		}
		select {
		case <-time.After(jitter(backoff)):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > ReconnectMaxBackoff {
			backoff = ReconnectMaxBackoff
		}
	}
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.25
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

func (c *Client) connectAndStream(ctx context.Context, out [5]chan *types.EventEnvelope) (handshakeOK bool, err error) {
	quicCfg := &quic.Config{MaxIdleTimeout: 30 * time.Second}
	conn, err := quic.DialAddr(ctx, c.cfg.UpstreamAddr, c.cfg.TLS, quicCfg)
	if err != nil {
		return false, fmt.Errorf("dial upstream: %w", err)
	}
	defer conn.CloseWithError(0, "client shutting down")

	control, err := conn.AcceptUniStream(ctx)
	if err != nil {
		return false, fmt.Errorf("accept control stream: %w", err)
	}
	desc, err := readHandshake(control)
	if err != nil {
		c.metrics.IncHandshakeFailure()
		return false, fmt.Errorf("read handshake: %w", err)
	}
	if err := c.validateHandshake(desc); err != nil {
		c.metrics.IncHandshakeFailure()
		return false, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(types.AllEventKinds()))
	for range types.AllEventKinds() {
		go func() {
			stream, err := conn.AcceptUniStream(streamCtx)
			if err != nil {
				errCh <- err
				return
			}
			errCh <- c.readDataStream(streamCtx, stream, out)
		}()
	}

	for range types.AllEventKinds() {
		if err := <-errCh; err != nil && err != context.Canceled {
			cancel()
			return true, err
		}
	}
	return true, nil
}

func (c *Client) validateHandshake(desc types.HandshakeDescriptor) error {
	if desc.ProtocolVersion != types.ProtocolVersion {
		return types.NewGatewayError(types.ErrIncompatibleHandshake,
			fmt.Sprintf("producer protocol_version %d != %d", desc.ProtocolVersion, types.ProtocolVersion), nil)
	}
	if desc.ALPNExpected != types.ALPNProtocol {
		return types.NewGatewayError(types.ErrIncompatibleHandshake,
			fmt.Sprintf("producer alpn_expected %q != %q", desc.ALPNExpected, types.ALPNProtocol), nil)
	}
	if !desc.SupportsAll(types.AllEventKinds()) {
		return types.NewGatewayError(types.ErrIncompatibleHandshake, "producer does not advertise all required event kinds", nil)
	}
	return nil
}

func readHandshake(r io.Reader) (types.HandshakeDescriptor, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return types.HandshakeDescriptor{}, err
	}
	var desc types.HandshakeDescriptor
	if err := msgpack.Unmarshal(raw, &desc); err != nil {
		return types.HandshakeDescriptor{}, err
	}
	return desc, nil
}

func (c *Client) readDataStream(ctx context.Context, stream quic.ReceiveStream, out [5]chan *types.EventEnvelope) error {
	dec := frame.NewDecoder(stream)
	for {
		df, err := dec.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			c.metrics.IncDecodeError()
			if ge, ok := err.(*types.GatewayError); ok && !ge.Fatal() {
				continue
			}
			return err
		}
		var env types.EventEnvelope
		if err := msgpack.Unmarshal(df.Payload, &env); err != nil {
			c.metrics.IncDecodeError()
			continue
		}
		select {
		case out[df.Kind] <- &env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
