package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ample-labs/geyser-gateway/cli/render"
	"github.com/ample-labs/geyser-gateway/metrics"
)

// StatsPollInterval is how often the TUI refreshes its view of a running
// relay's counters.
const StatsPollInterval = 2 * time.Second

// StatsCommand returns the stats command: a read-only view over the live
// counters a `run` invocation exposes on --stats-addr.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show live metrics for a running relay",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Address of a running relay's stats endpoint",
				Value: DefaultStatsAddr,
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	addr := c.String("addr")

	if c.Bool("tui") {
		return render.RunStatsTUI(c.Context, addr, StatsPollInterval)
	}

	ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
	defer cancel()

	snap, err := metrics.FetchSnapshot(ctx, addr)
	if err != nil {
		return fmt.Errorf("fetching snapshot from %s: %w", addr, err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(snap)
}
