package theme

import "github.com/charmbracelet/lipgloss"

var (
	Base     = lipgloss.Color("#1e1e2e")
	Mantle   = lipgloss.Color("#181825")
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Yellow   = lipgloss.Color("#f9e2af")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	Pane = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Surface1).
		Background(Mantle).
		Foreground(Text).
		Padding(1)

	Title = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Muted = lipgloss.NewStyle().Foreground(Subtext0)
	Hot   = lipgloss.NewStyle().Foreground(Peach).Bold(true)

	Banner = lipgloss.NewStyle().
		Background(Red).
		Foreground(Base).
		Bold(true).
		Padding(0, 2)
)

// LevelColor maps an urgency label to its color; unknown labels are muted.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "Calm":
		return Green
	case "Approaching":
		return Yellow
	case "Urgent":
		return Red
	default:
		return Subtext0
	}
}

// Level renders an urgency label as a colored badge.
func Level(level string) string {
	return lipgloss.NewStyle().
		Foreground(Base).
		Background(LevelColor(level)).
		Bold(true).
		Padding(0, 1).
		Render(level)
}
