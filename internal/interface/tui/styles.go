package tui

import "github.com/charmbracelet/lipgloss"

// Global styles used across views
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "162", Dark: "205"})

	// Status badges
	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("yellow")).
			Bold(true)

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red")).
			Bold(true)

	// Scores follow the gauge colours: green from 70, amber from 50
	scoreGoodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	scoreFairStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	scorePoorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	// Chat styles
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("cyan")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green")).
			Bold(true)

	undeliveredStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Italic(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "242", Dark: "246"})

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "240"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red"))
)
