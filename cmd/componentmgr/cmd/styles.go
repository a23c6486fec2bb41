package cmd

import "github.com/charmbracelet/lipgloss"

const (
	colorMuted   = lipgloss.Color("#6B7280")
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorCode    = lipgloss.Color("#3B82F6")
)

var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	codeStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCode)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

// styled renders text unless --no-color is set.
func styled(s lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return s.Render(text)
}
