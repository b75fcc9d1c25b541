package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-abr-proxy/internal/stats"
)

// TickMsg is sent periodically to refresh the display.
type TickMsg time.Time

// StatsSource provides the aggregated statistics snapshot. Satisfied by
// *stats.Aggregator.
type StatsSource interface {
	Aggregate() stats.AggregatedStats
}

// PathSource reports the size of the shared throughput table.
type PathSource interface {
	Len() int
}

// Config holds TUI configuration.
type Config struct {
	OriginAddr  string
	ListenAddr  string
	MetricsAddr string
	Source      StatsSource
	Paths       PathSource
}

// Model represents the TUI state.
type Model struct {
	originAddr  string
	listenAddr  string
	metricsAddr string

	source StatsSource
	paths  PathSource

	snapshot  stats.AggregatedStats
	haveStats bool
	pathCount int

	startTime  time.Time
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		originAddr:  cfg.OriginAddr,
		listenAddr:  cfg.ListenAddr,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		paths:       cfg.Paths,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.snapshot = m.source.Aggregate()
			m.haveStats = true
		}
		if m.paths != nil {
			m.pathCount = m.paths.Len()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()
	}

	return m, nil
}

// tickCmd returns a command that sends a tick after one second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Elapsed returns the time since the proxy dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// ActiveSessions returns the current live session count.
func (m Model) ActiveSessions() int {
	if !m.haveStats {
		return 0
	}
	return m.snapshot.ActiveSessions
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
