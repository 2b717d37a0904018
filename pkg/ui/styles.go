package ui

import (
	"charm.land/lipgloss/v2"

	"cs_chatbot/pkg/transcript"
)

var (
	separatorStyle = lipgloss.NewStyle().
			Foreground(transcript.ColorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(transcript.ColorTextMuted)
)
