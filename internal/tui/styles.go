package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Border styles.
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles, one per taskfile.Status that can appear on the board.
var (
	StyleStatusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)
	StyleStatusComplete  = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	StyleStatusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	StyleStatusBlocked   = lipgloss.NewStyle().Foreground(lipgloss.Color("magenta")).Bold(true)
	StyleStatusAbandoned = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	StyleStatusPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// UI element styles.
var (
	StyleTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)
