package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorOK      = lipgloss.Color("42")
	colorWarn    = lipgloss.Color("214")
	colorCrit    = lipgloss.Color("196")
	colorSurface = lipgloss.Color("238")
	colorDim     = lipgloss.Color("245")
	colorAccent  = lipgloss.Color("81")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle  = lipgloss.NewStyle().Foreground(colorDim)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(colorCrit)
	helpStyle   = lipgloss.NewStyle().Foreground(colorSurface)
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface).
			Padding(0, 1)
)
