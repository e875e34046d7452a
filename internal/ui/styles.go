package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary   = lipgloss.Color("#22d3ee") // Cyan accent
	Secondary = lipgloss.Color("#7C3AED") // Violet
	Success   = lipgloss.Color("#10B981") // Emerald
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	// StateStyle renders the session state badge.
	StateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#111827")).
			Background(Primary).
			Padding(0, 1).
			Bold(true)

	KeyStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)
)

var (
	RoomBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Success).
			Padding(1, 2)

	CallBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 2)
)

var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

const (
	IconSuccess  = "✅"
	IconError    = "❌"
	IconWarning  = "⚠️"
	IconInfo     = "ℹ️"
	IconCall     = "📞"
	IconMic      = "🎙️"
	IconMicOff   = "🔇"
	IconCamera   = "📷"
	IconCamOff   = "🚫"
	IconPeer     = "👤"
	IconWaiting  = "⏳"
	IconCopy     = "📋"
	IconWeb      = "🌐"
	IconHangUp   = "📴"
	IconTime     = "⏱️"
	IconConnect  = "🔌"
	IconRelay    = "📡"
	IconComplete = "🎉"
)

// badgeStyle picks the state badge colour.
func badgeStyle(state string, failed bool) lipgloss.Style {
	switch {
	case failed:
		return StateStyle.Background(Error)
	case state == "connected":
		return StateStyle.Background(Success)
	case state == "disconnected" || state == "closed":
		return StateStyle.Background(Warning)
	default:
		return StateStyle
	}
}

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintErrorf(format string, args ...any) {
	PrintError(fmt.Sprintf(format, args...))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintSuccessf(format string, args ...any) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
