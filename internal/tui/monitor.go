package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/filedrop/internal/ledger"
)

const (
	refreshInterval = 2 * time.Second
	watchLimit      = 50
)

// Source supplies retrieval history to the monitor.
type Source interface {
	List(ctx context.Context, limit int) ([]*ledger.Entry, error)
	Count(ctx context.Context, status ledger.Status) (int, error)
}

// Model is the bubbletea model of "files watch".
type Model struct {
	source Source
	theme  Theme

	width  int
	height int

	table   table.Model
	entries []*ledger.Entry
	stored  int
	failed  int
	err     error
}

type entriesMsg struct {
	entries []*ledger.Entry
	stored  int
	total   int
}

type errMsg struct{ err error }

type tickMsg time.Time

// NewMonitor creates the watch model over source.
func NewMonitor(source Source) Model {
	theme := NewDefaultTheme()
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(theme.tableStyles())

	return Model{source: source, theme: theme, table: t}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tea.EnterAltScreen)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))
		m.table.SetHeight(max(m.height-10, 3))

	case entriesMsg:
		m.entries = msg.entries
		m.stored = msg.stored
		m.failed = msg.total - msg.stored
		m.err = nil
		m.table.SetRows(entryRows(m.theme, msg.entries))
		return m, tick()

	case errMsg:
		m.err = msg.err
		return m, tick()

	case tickMsg:
		return m, m.fetch()
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	status := m.theme.StatusOK.Render("OK")
	if m.err != nil {
		status = m.theme.StatusFailed.Render("ERROR: " + m.err.Error())
	}

	header := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width((m.width-4)/3).Render(fmt.Sprintf("Stored: %d", m.stored)),
			lipgloss.NewStyle().Width((m.width-4)/3).Render(fmt.Sprintf("Failed: %d", m.failed)),
			lipgloss.NewStyle().Width((m.width-4)/3).Render("Ledger: "+status),
		),
	)

	body := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Retrievals"),
			m.table.View(),
		),
	)

	help := m.theme.Dim.Render(" [q] Quit • [r] Refresh • [↑/↓] Scroll")

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, body, help),
	)
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
		defer cancel()

		entries, err := m.source.List(ctx, watchLimit)
		if err != nil {
			return errMsg{err}
		}
		stored, err := m.source.Count(ctx, ledger.StatusStored)
		if err != nil {
			return errMsg{err}
		}
		total, err := m.source.Count(ctx, "")
		if err != nil {
			return errMsg{err}
		}
		return entriesMsg{entries: entries, stored: stored, total: total}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
