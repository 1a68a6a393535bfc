// Package tui provides the terminal user interface for AgentScope.
package tui

import "github.com/charmbracelet/lipgloss"

// Tokyo Night inspired color palette
var (
	ColorBgAlt   = lipgloss.Color("#24283b")
	ColorFg      = lipgloss.Color("#c0caf5")
	ColorFgMuted = lipgloss.Color("#565f89")
	ColorRunning = lipgloss.Color("#9ece6a")
	ColorError   = lipgloss.Color("#f7768e")
	ColorPending = lipgloss.Color("#e0af68")
	ColorDone    = lipgloss.Color("#565f89")
	ColorAccent  = lipgloss.Color("#d4a373")
	ColorInfo    = lipgloss.Color("#7aa2f7")
)

// StatusColor returns the color for an agent or session status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "running", "starting":
		return ColorRunning
	case "error", "failed":
		return ColorError
	case "pending":
		return ColorPending
	case "complete", "completed", "stopped":
		return ColorDone
	default:
		return ColorFgMuted
	}
}

// Common styles
var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorFg).
			Bold(true)

	StyleNormal = lipgloss.NewStyle().
			Foreground(ColorFg)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	StyleAccent = lipgloss.NewStyle().
			Foreground(ColorAccent)
)

// StatusStyle returns styled text for a status.
func StatusStyle(status string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StatusColor(status))
}
