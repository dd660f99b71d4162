package style

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles for console output.
type Styles struct {
	// Link state
	StatusConnected    lipgloss.Style
	StatusDisconnected lipgloss.Style
	StatusConnecting   lipgloss.Style

	// Traffic
	Sent     lipgloss.Style
	Received lipgloss.Style

	// Telemetry table
	Label   lipgloss.Style
	On      lipgloss.Style
	Off     lipgloss.Style
	Value   lipgloss.Style
	Heading lipgloss.Style

	// Misc
	Prompt  lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		StatusConnected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("71")), // Muted green
		StatusDisconnected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")), // Gray (subtle)
		StatusConnecting: lipgloss.NewStyle().
			Foreground(lipgloss.Color("179")), // Muted yellow

		Sent: lipgloss.NewStyle().
			Foreground(lipgloss.Color("32")),
		Received: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		On: lipgloss.NewStyle().
			Foreground(lipgloss.Color("71")).
			Bold(true),
		Off: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
		Value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")),
		Heading: lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1),

		Prompt: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")),
	}
}

// Plain returns styles that render text unchanged, for pipes and tests.
func Plain() Styles {
	p := lipgloss.NewStyle()
	return Styles{
		StatusConnected: p, StatusDisconnected: p, StatusConnecting: p,
		Sent: p, Received: p,
		Label: p, On: p, Off: p, Value: p, Heading: p,
		Prompt: p, Muted: p, Error: p, Warning: p,
	}
}
