// Package tui provides Bubble Tea TUI components for the geyser-gateway
// CLI.
//
// TUI mode is opt-in only (--tui flag) and read-only only (the stats
// command). TUI uses the same metrics.Snapshot payload as the non-TUI
// table; there is no TUI-exclusive data.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ample-labs/geyser-gateway/metrics"
)

// Run starts the stats TUI, polling addr every interval until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, addr string, interval time.Duration) error {
	model := newStatsModel(ctx, addr, interval)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type snapshotMsg struct {
	snap metrics.Snapshot
	err  error
}

func pollCmd(ctx context.Context, addr string, interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		fetchCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		snap, err := metrics.FetchSnapshot(fetchCtx, addr)
		return snapshotMsg{snap: snap, err: err}
	})
}
