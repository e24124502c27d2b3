package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Ayu palette, adaptive for light and dark terminals.
var (
	ColorOpen = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorClosed = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorOverdue = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorUrgent = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	OpenStyle    = lipgloss.NewStyle().Foreground(ColorOpen)
	ClosedStyle  = lipgloss.NewStyle().Foreground(ColorClosed)
	OverdueStyle = lipgloss.NewStyle().Foreground(ColorOverdue)
	UrgentStyle  = lipgloss.NewStyle().Foreground(ColorUrgent)
	AccentStyle  = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorClosed)
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Tree drawing characters for subtask display.
const (
	TreeBranch = "├─ "
	TreeLast   = "└─ "
	TreePipe   = "│  "
	TreeIndent = "   "
)

func styled(style lipgloss.Style, s string) string {
	if !ShouldUseColor() {
		return s
	}
	return style.Render(s)
}

// Muted renders de-emphasized text.
func Muted(s string) string { return styled(MutedStyle, s) }

// Accent renders highlighted text.
func Accent(s string) string { return styled(AccentStyle, s) }

// Header renders a bold section header.
func Header(s string) string { return styled(HeaderStyle, s) }
