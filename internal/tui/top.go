// Package tui implements the live session monitor behind nbq top. It is a
// read-only view: the model re-reads the state document once per second and
// tails the current run log, never mutating session state.
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nbqueue/nbq/internal/models"
	"github.com/nbqueue/nbq/internal/pidlock"
	"github.com/nbqueue/nbq/internal/runs"
	"github.com/nbqueue/nbq/internal/store"
)

const logTailBytes = 4096

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F59E0B")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Bold(true)

	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6B7280")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true)

	statusQueued   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	statusDone     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	statusCanceled = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
)

// FormatStatus renders a colored status marker.
func FormatStatus(s models.Status) string {
	switch s {
	case models.StatusQueued:
		return statusQueued.Render("● queued")
	case models.StatusRunning:
		return statusRunning.Render("● running")
	case models.StatusDone:
		return statusDone.Render("● done")
	case models.StatusFailed:
		return statusFailed.Render("● failed")
	case models.StatusCanceled:
		return statusCanceled.Render("● canceled")
	default:
		return string(s)
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the top monitor application model.
type Model struct {
	registry store.Registry

	spin     spinner.Model
	logView  viewport.Model
	width    int
	height   int
	readyLog bool

	session   *store.Session
	state     *models.State
	workerPID int
}

// New creates a monitor over the given registry.
func New(registry store.Registry) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusRunning
	return &Model{registry: registry, spin: sp}
}

// Run starts the monitor in the alternate screen.
func (m *Model) Run() error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	m.refresh()
	return tea.Batch(m.spin.Tick, tick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logHeight := msg.Height - 14
		if logHeight < 3 {
			logHeight = 3
		}
		if !m.readyLog {
			m.logView = viewport.New(msg.Width-4, logHeight)
			m.readyLog = true
		} else {
			m.logView.Width = msg.Width - 4
			m.logView.Height = logHeight
		}
	case tickMsg:
		m.refresh()
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refresh re-reads session state and the current run log tail.
func (m *Model) refresh() {
	session, err := m.registry.ActiveSession()
	if err == nil && session == nil {
		session, err = m.registry.LatestSession()
	}
	if err != nil || session == nil {
		m.session = nil
		m.state = nil
		return
	}
	m.session = session
	m.state = store.Load(*session)
	m.workerPID = 0
	if pid, ok := pidlock.ReadPID(session.LockPath()); ok && pidlock.Alive(pid) {
		m.workerPID = pid
	}
	if m.readyLog {
		m.logView.SetContent(m.logTail())
		m.logView.GotoBottom()
	}
}

// logTail returns the last few KB of the current run's log stream.
func (m *Model) logTail() string {
	if m.state == nil || m.state.Current == nil || m.state.Current.RunDir == nil {
		return "(no run in progress)"
	}
	path := filepath.Join(*m.state.Current.RunDir, runs.LogName)
	f, err := os.Open(path)
	if err != nil {
		return "(log not available yet)"
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "(log not available yet)"
	}
	offset := fi.Size() - logTailBytes
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, fi.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return "(log not available yet)"
	}
	return string(buf)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("nbq top"))
	b.WriteString("\n\n")

	if m.session == nil {
		b.WriteString("No sessions found.\n")
		b.WriteString(helpStyle.Render("q to quit"))
		return b.String()
	}

	worker := "no worker running"
	if m.workerPID != 0 {
		worker = fmt.Sprintf("worker pid %d", m.workerPID)
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("session %s — %s", m.session.ID(), worker)))
	b.WriteString("\n\n")

	if cur := m.state.Current; cur != nil {
		b.WriteString(fmt.Sprintf("%s %s %s  %s\n",
			m.spin.View(), FormatStatus(cur.Status), cur.ID, filepath.Base(cur.QueuePath)))
	} else {
		b.WriteString("idle\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("queued (%d)", len(m.state.Queue))))
	b.WriteString("\n")
	shown := m.state.Queue
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, qi := range shown {
		b.WriteString(fmt.Sprintf("  %s %s  %s\n", FormatStatus(qi.Status), qi.ID, filepath.Base(qi.QueuePath)))
	}
	if extra := len(m.state.Queue) - len(shown); extra > 0 {
		b.WriteString(helpStyle.Render(fmt.Sprintf("  … and %d more", extra)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("history (%d)", len(m.state.History))))
	b.WriteString("\n")
	if m.readyLog {
		b.WriteString(logBoxStyle.Render(m.logView.View()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q to quit — refreshes every second"))
	return b.String()
}
