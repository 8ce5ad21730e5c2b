package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the TUI.
var (
	// Status bar.
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	statusOpenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))            // green
	statusWaitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))            // yellow
	statusDownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))            // red
	flagOnStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")) // magenta

	// Skill cards.
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	currentCardStyle = cardStyle.BorderForeground(lipgloss.Color("6"))
	cardTitleStyle   = lipgloss.NewStyle().Bold(true)
	urlStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Underline(true)
	keyStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Transcript.
	skillPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	userPrefixStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	// Input.
	inputBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("2"))
)
