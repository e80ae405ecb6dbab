package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/types"
)

var quitKey = key.NewBinding(key.WithKeys("q", "ctrl+c"))

// statsModel is a Bubble Tea model polling a running relay's stats endpoint
// and rendering its metrics.Snapshot.
type statsModel struct {
	ctx      context.Context
	addr     string
	interval time.Duration

	snap     metrics.Snapshot
	err      error
	quitting bool
}

func newStatsModel(ctx context.Context, addr string, interval time.Duration) statsModel {
	return statsModel{ctx: ctx, addr: addr, interval: interval}
}

func (m statsModel) Init() tea.Cmd {
	return pollCmd(m.ctx, m.addr, m.interval)
}

func (m statsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			m.quitting = true
			return m, tea.Quit
		}
	case snapshotMsg:
		m.snap, m.err = msg.snap, msg.err
		return m, pollCmd(m.ctx, m.addr, m.interval)
	}
	return m, nil
}

func (m statsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("geyser-gateway stats — %s", m.addr)))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("fetch error: %v", m.err)))
		b.WriteString("\n")
	} else {
		boxes := []string{
			m.renderStatBox("Connections Active", int(m.snap.ConnectionsActive), highlightColor),
			m.renderStatBox("Reconnects", int(m.snap.ReconnectsTotal), warningColor),
			m.renderStatBox("Handshake Failures", int(m.snap.HandshakeFailures), errorColor),
			m.renderStatBox("Decode Errors", int(m.snap.DecodeErrors), errorColor),
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
		b.WriteString("\n\n")
		b.WriteString(m.renderKindTable())
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func (m statsModel) renderKindTable() string {
	var b strings.Builder
	header := fmt.Sprintf("%-14s %12s %12s %10s", "kind", "frames_out", "bytes_out", "dropped")
	b.WriteString(LabelStyle.Width(0).Render(header))
	b.WriteString("\n")
	for _, kind := range types.AllEventKinds() {
		row := fmt.Sprintf("%-14s %12d %12d %10d",
			kind.String(),
			m.snap.FramesOutFor(kind),
			m.snap.BytesOutFor(kind),
			m.snap.DroppedFor(kind),
		)
		b.WriteString(ValueStyle.Render(row))
		b.WriteString("\n")
	}
	return b.String()
}

func (m statsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}
