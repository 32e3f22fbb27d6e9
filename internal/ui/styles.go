package ui

import "github.com/charmbracelet/lipgloss"

// Color palette, single cyan accent.
const (
	ColorCyan     = "51"  // Primary accent for names and matches
	ColorCyanDim  = "37"  // Dimmed accent for labels
	ColorWhite    = "255" // Headers
	ColorGray     = "245" // Secondary text
	ColorDarkGray = "238" // Separators, positions
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
)

// Styles holds the render styles for search output.
type Styles struct {
	Header   lipgloss.Style
	Name     lipgloss.Style
	Category lipgloss.Style
	Type     lipgloss.Style
	Snippet  lipgloss.Style
	Position lipgloss.Style
	Score    lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Dim      lipgloss.Style
	Prompt   lipgloss.Style
}

// DefaultStyles returns the styled palette for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Name:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorCyan)),
		Category: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyanDim)),
		Type:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Snippet:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Position: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Score:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Prompt:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorCyan)),
	}
}

// NoColorStyles returns unstyled components for plain or piped output.
func NoColorStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle(),
		Name:     lipgloss.NewStyle(),
		Category: lipgloss.NewStyle(),
		Type:     lipgloss.NewStyle(),
		Snippet:  lipgloss.NewStyle(),
		Position: lipgloss.NewStyle(),
		Score:    lipgloss.NewStyle(),
		Error:    lipgloss.NewStyle(),
		Warning:  lipgloss.NewStyle(),
		Dim:      lipgloss.NewStyle(),
		Prompt:   lipgloss.NewStyle(),
	}
}
