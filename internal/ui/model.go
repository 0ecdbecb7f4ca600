package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/ui/component"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/ui/style"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/utils/logger"
)

const (
	DefaultPollInterval = time.Second
	fetchTimeout        = 2 * time.Second
	logPaneLines        = 6
)

// LogSource отдаёт последние записи лога движка
type LogSource interface {
	GetRecentLogs(limit int) []logger.LogEntry
}

// Model опрашивает источник состояния и рисует заголовок и таблицу узлов
type Model struct {
	source   Source
	interval time.Duration
	now      func() time.Time

	keys   KeyMap
	help   help.Model
	header *component.StatusHeader
	table  *component.EndpointTable
	logs   LogSource
	pane   *component.LogPane

	notice      string
	noticeStyle lipgloss.Style
	width       int
	height      int
}

// NewModel creates the status viewer; interval <= 0 means one second
func NewModel(source Source, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	palette := style.DefaultPalette()

	return &Model{
		source:      source,
		interval:    interval,
		now:         time.Now,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		header:      component.NewStatusHeader(),
		table:       component.NewEndpointTable(),
		pane:        component.NewLogPane(logPaneLines),
		noticeStyle: lipgloss.NewStyle().Foreground(palette.Warning),
	}
}

// SetClock подменяет время для детерминированного рендера
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
	m.header.SetClock(now)
}

// SetLogs включает панель последних логов
func (m *Model) SetLogs(logs LogSource) {
	m.logs = logs
	m.resize()
}

func (m *Model) resize() {
	if m.width == 0 {
		return
	}
	tableHeight := m.height - m.header.GetHeight() - 2
	if m.logs != nil {
		tableHeight -= m.pane.GetHeight()
	}
	m.header.SetWidth(m.width)
	m.help.Width = m.width
	m.pane.SetWidth(m.width)
	m.table.SetSize(m.width, tableHeight)
}

// Init initializes the application
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m *Model) fetch() tea.Cmd {
	source, now := m.source, m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		status, err := source.Fetch(ctx)
		return StatusMsg{Status: status, Err: err, At: now()}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) rotate() tea.Cmd {
	rotator, ok := m.source.(Rotator)
	if !ok {
		m.notice = "rotation is only available for an in-process engine"
		return nil
	}
	return func() tea.Msg {
		to, err := rotator.Rotate(context.Background())
		return RotatedMsg{To: to, Err: err}
	}
}

// Update handles application-level updates
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch()
		case key.Matches(msg, m.keys.Rotate):
			return m, m.rotate()
		}
		return m, m.table.Update(msg)

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case StatusMsg:
		m.header.SetStatus(msg.Status, msg.At, msg.Err)
		if msg.Err == nil {
			m.table.SetEndpoints(msg.Status.Endpoints)
		}
		if m.logs != nil {
			m.pane.SetEntries(m.logs.GetRecentLogs(m.pane.Lines()))
		}
		return m, nil

	case RotatedMsg:
		if msg.Err != nil {
			m.notice = "rotation failed: " + msg.Err.Error()
			return m, nil
		}
		m.notice = "rotated to " + msg.To
		return m, m.fetch()
	}
	return m, nil
}

// View renders the application
func (m *Model) View() string {
	parts := []string{m.header.View(), m.table.View()}
	if m.logs != nil {
		parts = append(parts, m.pane.View())
	}
	if m.notice != "" {
		parts = append(parts, m.noticeStyle.Render(m.notice))
	}
	parts = append(parts, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
