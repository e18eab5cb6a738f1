package report

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for secondary text.
	HelpStyle = lipgloss.NewStyle().Faint(true)
)

// FormatPnL formats a PnL value with an indicator for its sign.
func FormatPnL(pnl float64) string {
	text := fmt.Sprintf("%.4f", pnl)

	switch {
	case pnl > 0:
		return text + " ▲"
	case pnl < 0:
		return text + " ▼"
	default:
		return text
	}
}

// renderTable draws a static table with every row visible.
func renderTable(columns []table.Column, rows []table.Row) string {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = lipgloss.NewStyle()

	t.SetStyles(s)
	// header line plus its bottom border
	t.SetHeight(len(rows) + 2)

	return t.View()
}
