// Package cli renders cascade results for the terminal using lipgloss.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	accent = lipgloss.Color("#5B8DEF")
	green  = lipgloss.Color("#4ECDC4")
	amber  = lipgloss.Color("#FFE66D")
	red    = lipgloss.Color("#FF6B6B")
	mint   = lipgloss.Color("#95E1D3")
	gray   = lipgloss.Color("#666666")
)

var (
	// TitleStyle is used for section headings.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	WarningStyle = lipgloss.NewStyle().Foreground(amber)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	InfoStyle    = lipgloss.NewStyle().Foreground(mint)
	SubtleStyle  = lipgloss.NewStyle().Foreground(gray)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// TableHeaderStyle is applied to every tabwriter header cell.
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	ChartIcon   = "📊"
	ReviewIcon  = "👀"
)

func prefixed(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string { return prefixed(SuccessStyle, SuccessIcon, message) }

// FormatError prefixes message with a cross.
func FormatError(message string) string { return prefixed(ErrorStyle, ErrorIcon, message) }

// FormatWarning prefixes message with a warning sign.
func FormatWarning(message string) string { return prefixed(WarningStyle, WarningIcon, message) }

// FormatInfo prefixes message with an info sign.
func FormatInfo(message string) string { return prefixed(InfoStyle, InfoIcon, message) }

// FormatTitle renders a section heading.
func FormatTitle(title string) string {
	return TitleStyle.Render(title)
}

// RenderBox draws content inside a rounded border under a bold heading.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return summaryBox.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}

// ConfidenceStyle colors a confidence score: green at or above the
// auto-accept threshold, amber for borderline scores, red below that.
func ConfidenceStyle(confidence int) lipgloss.Style {
	switch {
	case confidence >= 85:
		return SuccessStyle
	case confidence >= 70:
		return WarningStyle
	default:
		return ErrorStyle
	}
}
