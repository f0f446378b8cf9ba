// internal/tui/monitor.go
//
// Live session monitor. It uses bubbletea, which follows The Elm
// Architecture: a Model holding state, an Update function reacting to
// messages, and a View rendering the state to a string.
//
// The monitor is read-only operator tooling: it joins the lifecycle signal
// store with live tmux sessions and the orchestration logbook, and refreshes
// on a timer. Delegation itself happens through the CLI commands.

package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/dispatch/internal/logbook"
	"github.com/kingrea/dispatch/internal/orchestrator"
	"github.com/kingrea/dispatch/internal/signals"
)

const refreshInterval = 3 * time.Second

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	deadStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	aliveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	needsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	logStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
)

type refreshMsg struct {
	statuses []orchestrator.Status
	logLines []string
	err      error
}

type tickMsg time.Time

// sessionItem adapts one session status to the bubbles list.
type sessionItem struct {
	status orchestrator.Status
}

func (i sessionItem) FilterValue() string { return i.status.Signal.Session }

// sessionDelegate renders session rows.
type sessionDelegate struct{}

func (sessionDelegate) Height() int                         { return 1 }
func (sessionDelegate) Spacing() int                        { return 0 }
func (sessionDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (sessionDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(sessionItem)
	if !ok {
		return
	}
	line := renderSessionLine(it.status)
	if index == m.Index() {
		line = selectedStyle.Render("> " + line)
	} else {
		line = "  " + line
	}
	fmt.Fprint(w, line)
}

// renderSessionLine formats one status row: liveness, session, state, task.
func renderSessionLine(st orchestrator.Status) string {
	liveness := deadStyle.Render("●")
	if st.Alive {
		liveness = aliveStyle.Render("●")
	}
	state := string(st.Signal.State)
	if st.Signal.State == signals.StateNeedsInput {
		state = needsStyle.Render(state)
	}
	task := st.Signal.TaskID
	if task == "" {
		task = "-"
	}
	return fmt.Sprintf("%s %-28s %-12s %-10s %s/%s",
		liveness, st.Signal.Session, state, task, st.Signal.Worker, st.Signal.Model)
}

// Monitor is the bubbletea model.
type Monitor struct {
	orc      *orchestrator.Orchestrator
	log      *logbook.Logbook
	sessions list.Model
	logLines []string
	width    int
	height   int
	err      error
}

// NewMonitor builds the monitor over an orchestrator and its logbook.
func NewMonitor(orc *orchestrator.Orchestrator, log *logbook.Logbook) *Monitor {
	l := list.New(nil, sessionDelegate{}, 0, 0)
	l.Title = "worker sessions"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return &Monitor{orc: orc, log: log, sessions: l}
}

// Run starts the monitor loop and blocks until the user quits.
func (m *Monitor) Run() error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.refresh, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh gathers the current view state off the UI loop.
func (m *Monitor) refresh() tea.Msg {
	statuses, err := m.orc.Statuses()
	lines, _ := m.log.Tail(8)
	return refreshMsg{statuses: statuses, logLines: lines, err: err}
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sessions.SetSize(msg.Width-4, msg.Height-14)
	case tickMsg:
		return m, tea.Batch(m.refresh, tick())
	case refreshMsg:
		m.err = msg.err
		m.logLines = msg.logLines
		items := make([]list.Item, 0, len(msg.statuses))
		for _, st := range msg.statuses {
			items = append(items, sessionItem{status: st})
		}
		m.sessions.SetItems(items)
	}
	var cmd tea.Cmd
	m.sessions, cmd = m.sessions.Update(msg)
	return m, cmd
}

func (m *Monitor) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("dispatch monitor"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(needsStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n\n")
	}
	b.WriteString(m.sessions.View())
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("recent activity"))
	b.WriteString("\n")
	if len(m.logLines) == 0 {
		b.WriteString(logStyle.Render("  (no log entries yet)"))
		b.WriteString("\n")
	}
	for _, line := range m.logLines {
		b.WriteString(logStyle.Render("  " + line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(logStyle.Render("q quit"))
	return b.String()
}
