package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// RenderUsageGauge draws a left-to-right fill bar for consumed percentage
// (0=empty, 100=full) with the percentage label. Negative input means the
// limit is still unknown and renders a dimmed track.
func RenderUsageGauge(usedPercent float64, width int) string {
	if width < 5 {
		width = 5
	}

	if usedPercent < 0 {
		track := lipgloss.NewStyle().Foreground(colorSurface).Render(strings.Repeat("─", width))
		return track + labelStyle.Render(" n/a")
	}
	if usedPercent > 100 {
		usedPercent = 100
	}

	filled := int(usedPercent / 100 * float64(width))
	if filled < 1 && usedPercent > 0 {
		filled = 1
	}
	empty := width - filled

	color := colorOK
	switch {
	case usedPercent >= 90:
		color = colorCrit
	case usedPercent >= 75:
		color = colorWarn
	}

	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("━", filled)) +
		lipgloss.NewStyle().Foreground(colorSurface).Render(strings.Repeat("━", empty))
	pct := lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%5.1f%%", usedPercent))
	return bar + " " + pct
}

// truncate clips a rendered line to width terminal cells, ANSI-aware.
func truncate(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width-1, "…")
}
