package transcript

import (
	"charm.land/lipgloss/v2"
)

// ANSI 256 palette
var (
	ColorAccent    = lipgloss.Color("141")
	ColorText      = lipgloss.Color("252")
	ColorTextMuted = lipgloss.Color("245")
	ColorUser      = lipgloss.Color("117")
	ColorBot       = lipgloss.Color("219")
	ColorError     = lipgloss.Color("196")
	ColorWarning   = lipgloss.Color("214")
	ColorSuccess   = lipgloss.Color("42")
	ColorBorder    = lipgloss.Color("99")
)

var (
	userLabelStyle = lipgloss.NewStyle().
			Foreground(ColorUser).
			Bold(true)

	botLabelStyle = lipgloss.NewStyle().
			Foreground(ColorBot).
			Bold(true)

	textStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	successStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	titleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 2)
)
