package component

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/ui/style"
)

// EndpointTable renders per-endpoint health as a scrollable table
type EndpointTable struct {
	table  table.Model
	border lipgloss.Style
}

var endpointColumns = []table.Column{
	{Title: "", Width: 2},
	{Title: "Endpoint", Width: 32},
	{Title: "EWMA", Width: 8},
	{Title: "p50", Width: 7},
	{Title: "p95", Width: 7},
	{Title: "OK", Width: 6},
	{Title: "Fail", Width: 5},
	{Title: "Penalty", Width: 8},
	{Title: "Backoff", Width: 8},
	{Title: "Wins", Width: 6},
	{Title: "Last error", Width: 28},
}

// NewEndpointTable creates the table with the palette styles
func NewEndpointTable() *EndpointTable {
	palette := style.DefaultPalette()

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Foreground(palette.Secondary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(palette.TextMuted).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(palette.Background).
		Background(palette.Primary).
		Bold(false)

	t := table.New(
		table.WithColumns(endpointColumns),
		table.WithFocused(true),
		table.WithHeight(8),
		table.WithStyles(styles),
	)

	return &EndpointTable{
		table: t,
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.TextMuted),
	}
}

// SetEndpoints rebuilds rows from a snapshot, keeping the cursor in range
func (et *EndpointTable) SetEndpoints(endpoints []rpc.EndpointStatus) {
	rows := make([]table.Row, 0, len(endpoints))
	for _, ep := range endpoints {
		rows = append(rows, EndpointRow(ep))
	}
	et.table.SetRows(rows)
	if c := et.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		et.table.SetCursor(len(rows) - 1)
	}
}

// EndpointRow formats one endpoint
func EndpointRow(ep rpc.EndpointStatus) table.Row {
	marker := " "
	switch {
	case ep.Active:
		marker = "▶"
	case ep.BackoffRemainingMs > 0:
		marker = "✗"
	}

	backoff := "-"
	if ep.BackoffRemainingMs > 0 {
		backoff = humanize.Comma(ep.BackoffRemainingMs) + "ms"
	}

	return table.Row{
		marker,
		shortURL(ep.URL),
		formatMs(ep.LatencyEWMAMs),
		formatMs(ep.P50Ms),
		formatMs(ep.P95Ms),
		strconv.Itoa(ep.Successes),
		strconv.Itoa(ep.Failures),
		strconv.FormatFloat(ep.Penalty, 'f', 2, 64),
		backoff,
		strconv.Itoa(ep.RaceWins),
		ep.LastError,
	}
}

// SetSize fits the table into the remaining screen height
func (et *EndpointTable) SetSize(width, height int) {
	et.table.SetWidth(width - 2)
	if height > 4 {
		et.table.SetHeight(height - 2)
	}
}

func (et *EndpointTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	et.table, cmd = et.table.Update(msg)
	return cmd
}

func (et *EndpointTable) View() string {
	return et.border.Render(et.table.View())
}

func formatMs(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0fms", *v)
}

// shortURL оставляет хост и путь без схемы и query (в query часто лежит api key)
func shortURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host + u.Path
}
