package playback

import "github.com/charmbracelet/lipgloss"

// Color palette for the playback view. Single source of truth; use these
// constants everywhere in this package.
var (
	salmonPink  = lipgloss.Color("#FFB3BA") // headers and accents
	mintGreen   = lipgloss.Color("#A8E6CF") // user turns
	mutedGray   = lipgloss.Color("#6B7280") // secondary text
	brightWhite = lipgloss.Color("#F9FAFB") // assistant turns
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(salmonPink).
				Bold(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(brightWhite)

	statusStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	attachmentStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)
)
