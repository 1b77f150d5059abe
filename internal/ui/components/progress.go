package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/gioe/aiq/internal/ui/theme"
)

// Bar displays a horizontal bar for a fraction in [0, 1], such as a category's
// share of a session or the standard error at a step.
type Bar struct {
	Label      string
	LabelWidth int
	Fraction   float64
	Width      int

	// Annotation is printed after the bar. Empty shows the percentage.
	Annotation string
}

// NewBar creates a new bar.
func NewBar(label string, fraction float64, width int) Bar {
	return Bar{
		Label:    label,
		Fraction: fraction,
		Width:    width,
	}
}

// View renders the bar.
func (b Bar) View() string {
	var result string

	if b.Label != "" {
		style := lipgloss.NewStyle().Foreground(theme.Text)
		if b.LabelWidth > 0 {
			style = style.Width(b.LabelWidth)
		}
		result += style.Render(b.Label) + "  "
	}

	barWidth := b.Width - lipgloss.Width(result)
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth)*b.Fraction + 0.5)
	filled = min(max(filled, 0), barWidth)
	empty := barWidth - filled

	result += theme.BarFilled.Render(strings.Repeat(" ", filled)) +
		theme.BarEmpty.Render(strings.Repeat(" ", empty))

	note := b.Annotation
	if note == "" {
		note = fmt.Sprintf("%d%%", int(b.Fraction*100+0.5))
	}
	result += lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Render("  " + note)

	return result
}
