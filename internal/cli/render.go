package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorText).Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	valueStyle  = lipgloss.NewStyle().Foreground(ColorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorTextMuted)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorTextDim)
	goodStyle   = lipgloss.NewStyle().Foreground(ColorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorOrange)
	badStyle    = lipgloss.NewStyle().Foreground(ColorRed)
)

// Separator is a row value that renders as a horizontal rule.
const Separator = "---"

// Table is a bordered text table. The first column is left aligned, the
// others right aligned.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a centered title in a rounded box.
func RenderTitle(title string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)
	return box.Render(titleStyle.Render(title))
}

// RenderMuted renders a secondary line of text.
func RenderMuted(s string) string {
	return mutedStyle.Render(s)
}

// RenderTable renders t. Widths account for multi-byte characters so
// accented names line up.
func RenderTable(t Table) string {
	cols := len(t.Headers)
	if cols == 0 && len(t.Rows) > 0 {
		cols = len(t.Rows[0])
	}
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < cols && i < len(row); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < cols-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}
	line := func(cells []string, style lipgloss.Style, leftAlignAll bool) {
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			gap := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if i == 0 || leftAlignAll {
				b.WriteString(style.Render(" " + cell + gap + " "))
			} else {
				b.WriteString(style.Render(" " + gap + cell + " "))
			}
			if i < cols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")
	if len(t.Headers) > 0 {
		line(t.Headers, headerStyle, true)
		rule("├", "┼", "┤")
	}
	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == Separator {
			rule("├", "┼", "┤")
			continue
		}
		line(row, valueStyle, false)
	}
	rule("╰", "┴", "╯")

	return b.String()
}

// RenderBudgetBar renders spending against a limit, colored by how much of
// the budget is used.
func RenderBudgetBar(percentage float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(percentage / 100 * float64(width))
	filled = max(0, min(filled, width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	style := goodStyle
	switch {
	case percentage > 100:
		style = badStyle
	case percentage >= 80:
		style = warnStyle
	}
	return style.Render(bar)
}

// RenderSparkline draws one block per value, scaled to the largest
// value. Negative values render as the lowest block.
func RenderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}
	if peak == 0 {
		peak = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / peak * float64(len(blocks)-1))
		b.WriteRune(blocks[max(0, min(idx, len(blocks)-1))])
	}
	return b.String()
}

// RenderStatus colors a short status word.
func RenderStatus(ok bool, text string) string {
	if ok {
		return goodStyle.Render(text)
	}
	return badStyle.Render(text)
}
