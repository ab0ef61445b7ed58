package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorGreen = lipgloss.Color("2")
	colorRed   = lipgloss.Color("1")
	colorGray  = lipgloss.Color("8")
	colorWhite = lipgloss.Color("15")
	colorCyan  = lipgloss.Color("6")
)

// Layout styles.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			Foreground(colorWhite)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			PaddingTop(1)

	trendStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	// Row styles.
	normalRowStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	suspiciousRowStyle = lipgloss.NewStyle().Bold(true).Foreground(colorRed)

	// Kill confirmation styles.
	dangerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")).
			Background(lipgloss.Color("52")).
			Padding(0, 1)

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	// Info view styles.
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

// rowStyle returns the style for a connection row.
func rowStyle(suspicious, color bool) lipgloss.Style {
	switch {
	case !color:
		return lipgloss.NewStyle()
	case suspicious:
		return suspiciousRowStyle
	default:
		return normalRowStyle
	}
}
