package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ariefcatur/go-order-timing/internal/timing"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Render draws the board: one line per active order.
func Render(s Snapshot) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Order queue"))
	if !s.FetchedAt.IsZero() {
		b.WriteString(subtleStyle.Render(" as of " + s.FetchedAt.Format("15:04")))
	}
	b.WriteString("\n")
	if s.Outdated {
		b.WriteString(warningStyle.Render("! estimates may be outdated"))
		b.WriteString("\n")
	}
	if len(s.Orders) == 0 {
		b.WriteString(subtleStyle.Render("  no active orders"))
		b.WriteString("\n")
		return b.String()
	}

	for _, o := range s.Orders {
		b.WriteString(Line(o))
		b.WriteString("\n")
	}
	return b.String()
}

// Line renders one order; queued orders show their position.
func Line(o timing.Estimate) string {
	pos := "  -"
	if o.Status.Queued() {
		pos = fmt.Sprintf("%3d", o.QueuePosition+1)
	}
	left := timing.FormatRemaining(o.RemainingMinutes)
	if o.RemainingMinutes == 0 {
		left = readyStyle.Render(left)
	}
	return fmt.Sprintf("%s  %-20s %-10s %s", pos, o.OrderID, o.Status, left)
}
