package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ample-labs/geyser-gateway/log"
	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/plugin"
	"github.com/ample-labs/geyser-gateway/sink"
	"github.com/ample-labs/geyser-gateway/transport"
	"github.com/ample-labs/geyser-gateway/types"
)

// DefaultStatsAddr is where the run command serves live metrics for the
// stats command to poll.
const DefaultStatsAddr = "127.0.0.1:9090"

// Exit codes for the run command.
const (
	exitClean         = 0
	exitConfiguration = 2
	exitTransportFail = 3
)

// RunCommand returns the run command: dial the upstream producer, host the
// configured downstream plugins, and relay decoded events until terminated.
// This is the only command with side effects.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Dial an upstream producer and relay its event feed to downstream plugins",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "upstream-proxy-addr",
				Usage:    "Producer address to dial, host:port",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "fqdn",
				Usage:    "Expected FQDN on the producer's server certificate",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "cert-path",
				Usage: "Path to the PEM certificate pinned for the upstream connection",
				Value: "certs/cert.pem",
			},
			&cli.StringSliceFlag{
				Name:    "geyser-plugin-config",
				Aliases: []string{"g"},
				Usage:   "Path to a downstream plugin's config file (repeatable)",
			},
			&cli.StringFlag{
				Name:  "metrics-otlp-url",
				Usage: "OTLP endpoint to export metrics to (acknowledged and logged only; exporting is an external collaborator's job)",
			},
			&cli.StringFlag{
				Name:  "stats-addr",
				Usage: "Local address to serve the live metrics snapshot on, for the stats command to poll",
				Value: DefaultStatsAddr,
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	logger := log.NewLogger(log.SessionContext{ProducerID: uuid.Nil})

	clientTLS, gerr := transport.ClientTLSConfig(c.String("cert-path"), c.String("fqdn"))
	if gerr != nil {
		return cli.Exit(fmt.Sprintf("tls config: %v", gerr), exitConfiguration)
	}

	pluginConfigs := c.StringSlice("geyser-plugin-config")
	for _, p := range pluginConfigs {
		logger.Info("downstream plugin configured", map[string]any{"config_path": p})
	}
	if url := c.String("metrics-otlp-url"); url != "" {
		logger.Info("otlp metrics export acknowledged (not performed by this binary)", map[string]any{"url": url})
	}
	if interval := os.Getenv("OTEL_METRIC_EXPORT_INTERVAL"); interval != "" {
		logger.Info("otel metric export interval acknowledged (not driven by this binary)", map[string]any{"interval_ms": interval})
	}

	m := metrics.NewCollector()
	client := transport.NewClient(transport.ClientConfig{
		UpstreamAddr: c.String("upstream-proxy-addr"),
		TLS:          clientTLS,
	}, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received", nil)
		cancel()
	}()

	go func() {
		if err := metrics.ServeHTTP(ctx, c.String("stats-addr"), m); err != nil {
			logger.Warn("stats endpoint stopped", map[string]any{"err": err.Error()})
		}
	}()

	host := plugin.NewLogHost(logger)
	dispatcher := sink.New(host, logger)

	events := client.Events(ctx)
	var errCounts [5]int64
	onError := func(kind types.EventKind) { errCounts[kind]++ }

	done := make(chan struct{}, len(types.AllEventKinds()))
	for _, kind := range types.AllEventKinds() {
		go func(kind types.EventKind) {
			dispatcher.Run(ctx, kind, events[kind], onError)
			done <- struct{}{}
		}(kind)
	}

	exitCode := exitClean
	select {
	case <-ctx.Done():
	case fatalErr := <-client.Fatal():
		logger.Error("stopping: upstream producer is incompatible", map[string]any{"err": fatalErr.Error()})
		exitCode = exitTransportFail
		cancel()
	}
	for range types.AllEventKinds() {
		<-done
	}

	snap := m.Snapshot()
	logger.Info("relay stopped", map[string]any{
		"reconnects_total":   snap.ReconnectsTotal,
		"handshake_failures": snap.HandshakeFailures,
	})

	return cli.Exit("", exitCode)
}
