// Package replay renders session audit logs for review.
package replay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Event color scheme - each event class has a distinct, consistent color.
var (
	// Structural / metadata
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - labels

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")) // White - values

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - headers

	// Directives - Blue
	directiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue

	// Policy denials and violations - Red
	denyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	violationStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9")) // Red bold

	// Consent and network gates - Yellow
	gateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	// Heartbeats - Cyan
	heartbeatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")) // Cyan

	// Mood - Magenta
	moodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta

	// Outcomes
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	// Timeline
	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)
