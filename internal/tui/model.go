package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressUpdate carries deltas so the model never needs to share
// counters with the conversion goroutines.
type ProgressUpdate struct {
	TotalDelta      int
	ProcessedDelta  int
	FailedDelta     int
	BytesSavedDelta int64
	JobLabel        string // set when the current job changes
	Paused          *bool  // set on pause state transitions
}

type Model struct {
	updates    <-chan ProgressUpdate
	started    time.Time
	width      int
	total      int
	processed  int
	failed     int
	bytesSaved int64
	jobLabel   string
	paused     bool
	quitting   bool
}

type doneMsg struct{}

type updateMsg ProgressUpdate

func NewModel(updates <-chan ProgressUpdate) Model {
	return Model{updates: updates, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.total += msg.TotalDelta
		m.processed += msg.ProcessedDelta
		m.failed += msg.FailedDelta
		m.bytesSaved += msg.BytesSavedDelta
		if msg.JobLabel != "" {
			m.jobLabel = msg.JobLabel
		}
		if msg.Paused != nil {
			m.paused = *msg.Paused
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := titleStyle.Render("heiconv 📸")
	if m.paused {
		header += pausedStyle.Render("  [paused]")
	}
	if m.jobLabel != "" {
		header += dimStyle.Render("  " + m.jobLabel)
	}

	counters := labelStyle.Render(fmt.Sprintf("%d/%d converted", m.processed, m.total))
	if m.failed > 0 {
		counters += failStyle.Render(fmt.Sprintf("  %d failed", m.failed))
	}
	if m.bytesSaved > 0 {
		counters += dimStyle.Render(fmt.Sprintf("  %d bytes saved", m.bytesSaved))
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)

	lines := []string{
		header,
		counters,
		dimStyle.Render("Elapsed: " + elapsed.String()),
		m.renderBar(),
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderBar() string {
	width := 40
	if m.width > 0 {
		width = min(60, max(20, m.width-10))
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = math.Min(1, float64(m.processed)/float64(m.total))
	}
	filled := min(width, int(math.Round(ratio*float64(width))))

	bar := barFillStyle.Render(strings.Repeat("█", filled)) +
		barRestStyle.Render(strings.Repeat("░", width-filled))
	return bar + dimStyle.Render(fmt.Sprintf(" %3.0f%%", ratio*100))
}

func listenForUpdates(updates <-chan ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(ColorInk)
	dimStyle     = lipgloss.NewStyle().Foreground(ColorDim)
	failStyle    = lipgloss.NewStyle().Foreground(ColorWarn)
	pausedStyle  = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	barFillStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	barRestStyle = lipgloss.NewStyle().Foreground(ColorDim)
)
