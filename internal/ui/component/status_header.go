package component

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/ui/style"
)

// StatusHeader provides a clean header with essential status information
type StatusHeader struct {
	status    rpc.Status
	updatedAt time.Time
	err       error
	style     StatusHeaderStyle
	width     int
	now       func() time.Time
}

// StatusHeaderStyle contains all styling for the status header
type StatusHeaderStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	label     lipgloss.Style
	value     lipgloss.Style
	good      lipgloss.Style
	bad       lipgloss.Style
	muted     lipgloss.Style
}

// NewStatusHeader creates a new status header component
func NewStatusHeader() *StatusHeader {
	palette := style.DefaultPalette()

	return &StatusHeader{
		now: time.Now,
		style: StatusHeaderStyle{
			container: lipgloss.NewStyle().
				Foreground(palette.Text).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Primary).
				Padding(0, 2).
				MarginBottom(1),

			title: lipgloss.NewStyle().
				Foreground(palette.Primary).
				Bold(true),

			label: lipgloss.NewStyle().
				Foreground(palette.TextSecondary),

			value: lipgloss.NewStyle().
				Foreground(palette.Text).
				Bold(true),

			good: lipgloss.NewStyle().
				Foreground(palette.Success).
				Bold(true),

			bad: lipgloss.NewStyle().
				Foreground(palette.Error).
				Bold(true),

			muted: lipgloss.NewStyle().
				Foreground(palette.TextMuted),
		},
	}
}

// SetClock подменяет источник времени для относительных меток
func (sh *StatusHeader) SetClock(now func() time.Time) {
	sh.now = now
}

// SetStatus stores the latest snapshot; err marks a failed poll and keeps the old snapshot
func (sh *StatusHeader) SetStatus(status rpc.Status, at time.Time, err error) {
	sh.err = err
	if err != nil {
		return
	}
	sh.status = status
	sh.updatedAt = at
}

// SetWidth sets the component width for responsive layout
func (sh *StatusHeader) SetWidth(width int) {
	sh.width = width
	if width > 4 {
		sh.style.container = sh.style.container.Width(width - 4)
	}
}

// View renders the status header
func (sh *StatusHeader) View() string {
	now := sh.now()

	top := lipgloss.JoinHorizontal(lipgloss.Left,
		sh.style.title.Render("Solana RPC Racer"),
		" | ",
		sh.renderConnection(now),
		" | ",
		sh.field("Active", orDash(shortURL(sh.status.Active))),
	)

	fastest := orDash(shortURL(sh.status.Summary.FastestEndpoint))
	if p50 := sh.status.Summary.FastestP50Ms; p50 != nil {
		fastest = fmt.Sprintf("%s (p50 %.0fms", fastest, *p50)
		if p95 := sh.status.Summary.FastestP95Ms; p95 != nil {
			fastest += fmt.Sprintf(", p95 %.0fms", *p95)
		}
		fastest += ")"
	}

	middle := lipgloss.JoinHorizontal(lipgloss.Left,
		sh.field("Fastest", fastest),
		" | ",
		sh.field("Rotation", sh.renderRotation(now)),
	)

	bottom := lipgloss.JoinHorizontal(lipgloss.Left,
		sh.field("Send", sh.renderRace(sh.status.LastSendRace, now)),
		" | ",
		sh.field("Read", sh.renderRace(sh.status.LastReadRace, now)),
	)

	return sh.style.container.Render(lipgloss.JoinVertical(lipgloss.Left, top, middle, bottom))
}

func (sh *StatusHeader) field(label, value string) string {
	return sh.style.label.Render(label+": ") + sh.style.value.Render(value)
}

// renderConnection renders the poll status with emoji
func (sh *StatusHeader) renderConnection(now time.Time) string {
	if sh.err != nil {
		return sh.style.bad.Render("🔴 " + sh.err.Error())
	}
	if sh.updatedAt.IsZero() {
		return sh.style.muted.Render("waiting for status...")
	}
	return sh.style.good.Render("🟢 updated " + humanize.RelTime(sh.updatedAt, now, "ago", "from now"))
}

func (sh *StatusHeader) renderRotation(now time.Time) string {
	rot := sh.status.Summary.LastRotation
	if rot == nil {
		return "none"
	}
	return fmt.Sprintf("%s → %s (%s, %s)", shortURL(rot.From), shortURL(rot.To), rot.Reason, humanize.RelTime(rot.At, now, "ago", "from now"))
}

func (sh *StatusHeader) renderRace(meta *rpc.RaceMeta, now time.Time) string {
	if meta == nil {
		return "none"
	}
	winner := shortURL(meta.Winner)
	if winner == "" {
		winner = "failed"
	}
	return fmt.Sprintf("%s in %.0fms, %d attempts, %s", winner, meta.LatencyMs, meta.Attempts, humanize.RelTime(meta.At, now, "ago", "from now"))
}

// GetHeight returns the component height for layout calculations
func (sh *StatusHeader) GetHeight() int {
	return 6 // Border + three lines + margin
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
