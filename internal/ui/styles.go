// Package ui provides consistent styling for the waydmabuf CLI
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary = lipgloss.Color("39")  // Bright blue
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("196") // Red

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray

	ColorActive = ColorPrimary
)

// Base styles - building blocks for other styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Width(12)

	ListItemStyle = lipgloss.NewStyle().
			Foreground(ColorText)
)

// Icons
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconActive  = "●"
	IconIdle    = "○"
)

// FormatListItem renders one list entry, highlighted when active
func FormatListItem(item string, active bool) string {
	style := ListItemStyle
	icon := SubtleStyle.Render(IconIdle)
	if active {
		style = style.Foreground(ColorActive)
		icon = lipgloss.NewStyle().Foreground(ColorActive).Render(IconActive)
	}
	return "  " + icon + " " + style.Render(item)
}

// FormatField renders a "label value" line
func FormatField(label, value string) string {
	return LabelStyle.Render(label) + TextStyle.Render(value)
}
