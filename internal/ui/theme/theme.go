// Package theme holds the lipgloss styles used for command output.
package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Vivid Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Label = lipgloss.NewStyle().
		Foreground(TextDim).
		Width(22)

	Value = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Secondary)
)

// Layout
var Card = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Border).
	Padding(0, 2)

// Run status
var (
	StatusOK = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	StatusPartial = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)

	StatusFatal = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)
)

// ForStatus returns the style for a run status string.
func ForStatus(status string) lipgloss.Style {
	switch status {
	case "success":
		return StatusOK
	case "partial_success":
		return StatusPartial
	default:
		return StatusFatal
	}
}
