package terminal

import "github.com/charmbracelet/lipgloss"

var (
	colorBright = lipgloss.AdaptiveColor{Light: "#0f172a", Dark: "#f1f5f9"}
	colorDim    = lipgloss.AdaptiveColor{Light: "#94a3b8", Dark: "#64748b"}
	colorPivot  = lipgloss.AdaptiveColor{Light: "#7c3aed", Dark: "#a78bfa"}

	styleID      = lipgloss.NewStyle().Foreground(colorBright).Bold(true)
	styleMeta    = lipgloss.NewStyle().Foreground(colorDim)
	styleSnippet = lipgloss.NewStyle().Foreground(colorBright)
	stylePivot   = lipgloss.NewStyle().Foreground(colorPivot).Bold(true)
)
