package component

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/ui/style"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/utils/logger"
)

// LogPane shows the newest log entries of the in-process engine
type LogPane struct {
	lines   int
	width   int
	entries []logger.LogEntry

	title  lipgloss.Style
	muted  lipgloss.Style
	levels map[string]lipgloss.Style
}

// NewLogPane creates a pane with room for the given number of entries
func NewLogPane(lines int) *LogPane {
	palette := style.DefaultPalette()
	level := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c).Bold(true) }

	return &LogPane{
		lines: lines,
		title: lipgloss.NewStyle().Foreground(palette.Secondary).Bold(true),
		muted: lipgloss.NewStyle().Foreground(palette.TextMuted),
		levels: map[string]lipgloss.Style{
			"DEBUG": level(palette.TextMuted),
			"INFO":  level(palette.Info),
			"WARN":  level(palette.Warning),
			"ERROR": level(palette.Error),
		},
	}
}

// Lines возвращает сколько записей помещается в панель
func (p *LogPane) Lines() int { return p.lines }

// GetHeight высота панели вместе с заголовком
func (p *LogPane) GetHeight() int { return p.lines + 1 }

func (p *LogPane) SetWidth(width int) { p.width = width }

func (p *LogPane) SetEntries(entries []logger.LogEntry) { p.entries = entries }

func (p *LogPane) View() string {
	rows := []string{p.title.Render("Recent logs")}
	if len(p.entries) == 0 {
		rows = append(rows, p.muted.Render("  no log entries yet"))
	}
	for _, e := range p.entries {
		rows = append(rows, p.renderEntry(e))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (p *LogPane) renderEntry(e logger.LogEntry) string {
	levelStyle, ok := p.levels[e.Level]
	if !ok {
		levelStyle = p.levels["ERROR"]
	}

	var b strings.Builder
	b.WriteString(e.Message)
	if e.Logger != "" {
		b.WriteString(" [" + e.Logger + "]")
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}

	line := fmt.Sprintf("  %s %s %s",
		p.muted.Render(e.Timestamp.Format("15:04:05")),
		levelStyle.Render(fmt.Sprintf("%-5s", e.Level)),
		b.String())
	if p.width > 0 {
		line = lipgloss.NewStyle().MaxWidth(p.width).Render(line)
	}
	return line
}
