package tui

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderTraffic(),
		m.renderAdaptation(),
	}

	if m.haveStats && len(m.snapshot.Sessions) > 0 {
		sections = append(sections, m.renderSessionTable())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-abr-proxy | %s -> %s | Sessions: %d | Elapsed: %s ",
		m.listenAddr,
		m.originAddr,
		m.ActiveSessions(),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func (m Model) renderTraffic() string {
	s := m.snapshot

	rows := []string{
		statRow("Active sessions", fmt.Sprintf("%d", s.ActiveSessions)),
		statRow("Total sessions", fmt.Sprintf("%d", s.TotalSessions)),
		statRow("Manifest requests", fmt.Sprintf("%d", s.ManifestReqs)),
		statRow("Segment requests", fmt.Sprintf("%d", s.SegmentReqs)),
		statRow("Passthrough", fmt.Sprintf("%d", s.PassthroughMsgs)),
		statRow("Bytes to client", formatBytes(s.BytesToClient)),
		statRow("Bytes to origin", formatBytes(s.BytesToOrigin)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Traffic")}, rows...)...)
	return boxStyle.Width(m.boxWidth()).Render(content)
}

func (m Model) renderAdaptation() string {
	s := m.snapshot

	rows := []string{
		statRow("Rewrites", fmt.Sprintf("%d", s.Rewrites)),
		statRow("Chunks", fmt.Sprintf("%d", s.Chunks)),
		statRow("Tracked paths", fmt.Sprintf("%d", m.pathCount)),
	}

	if s.Chunks > 0 {
		rows = append(rows,
			statRow("Chunk p50/p95/p99", fmt.Sprintf("%s / %s / %s",
				formatDuration(s.ChunkDurationP50),
				formatDuration(s.ChunkDurationP95),
				formatDuration(s.ChunkDurationP99))),
			statRow("Throughput p50/p95", fmt.Sprintf("%s / %s",
				formatBitrate(s.ThroughputP50),
				formatBitrate(s.ThroughputP95))),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Adaptation")}, rows...)...)
	return boxStyle.Width(m.boxWidth()).Render(content)
}

func (m Model) renderSessionTable() string {
	rows := []string{
		tableHeaderStyle.Render(fmt.Sprintf("%-24s %-12s %8s %8s %12s",
			"CLIENT", "BITRATE", "CHUNKS", "REWRITES", "BYTES OUT")),
	}

	// Stable ordering keeps the table from jumping between refreshes.
	list := append([]SessionRow(nil), toRows(m)...)
	sort.Slice(list, func(i, j int) bool { return list[i].Client < list[j].Client })

	const maxRows = 16
	for i, s := range list {
		if i >= maxRows {
			rows = append(rows, tableCellStyle.Render(
				fmt.Sprintf("... and %d more", len(list)-maxRows)))
			break
		}
		rows = append(rows, tableCellStyle.Render(
			fmt.Sprintf("%-24s %-12s %8d %8d %12s",
				truncate(s.Client, 24), s.Bitrate, s.Chunks, s.Rewrites,
				formatBytes(s.BytesOut))))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Sessions")}, rows...)...)
	return boxStyle.Width(m.boxWidth()).Render(content)
}

// SessionRow is one rendered line of the session table.
type SessionRow struct {
	Client   string
	Bitrate  string
	Chunks   int64
	Rewrites int64
	BytesOut int64
}

func toRows(m Model) []SessionRow {
	out := make([]SessionRow, 0, len(m.snapshot.Sessions))
	for _, s := range m.snapshot.Sessions {
		bitrate := "-"
		if s.Bitrate > 0 {
			bitrate = formatBitrate(float64(s.Bitrate))
		}
		out = append(out, SessionRow{
			Client:   s.Client,
			Bitrate:  bitrate,
			Chunks:   s.Chunks,
			Rewrites: s.Rewrites,
			BytesOut: s.BytesToClient,
		})
	}
	return out
}

func (m Model) renderFooter() string {
	return footerStyle.Render(fmt.Sprintf(
		" q: quit | r: refresh | metrics: %s | updated %s ago",
		m.metricsAddr,
		formatDuration(time.Since(m.lastUpdate)),
	))
}

func (m Model) boxWidth() int {
	w := m.width - 2
	if w < 40 {
		w = 40
	}
	return w
}

func statRow(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
