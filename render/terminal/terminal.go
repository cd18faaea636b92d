// Package terminal renders compact, ANSI-styled single-line summaries used
// by the retrieval surface's index and timeline operations (index aiming
// for about 100 tokens, timeline about 150), narrowed to a one-line-per-entry
// shape rather than a full transcript pager.
package terminal

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

const defaultWidth = 100

// Width returns the detected terminal width, or defaultWidth if detection
// fails (e.g. output is redirected to a file).
func Width() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// IndexLine formats one compact-index entry: `id (date) — "snippet"`,
// matching spec §4.7's index contract.
func IndexLine(id, date, snippet string, width int) string {
	prefix := fmt.Sprintf("%s (%s) — ", id, date)
	budget := width - lipgloss.Width(prefix) - 2
	return styleID.Render(id) + styleMeta.Render(" ("+date+") — ") +
		styleSnippet.Render(`"`+truncate(snippet, budget)+`"`)
}

// TimelineLine formats one timeline entry, marking the pivot id.
func TimelineLine(id, date, snippet string, isPivot bool, width int) string {
	line := IndexLine(id, date, snippet, width)
	if isPivot {
		return stylePivot.Render("▶ ") + line
	}
	return "  " + line
}

// Truncate shortens text to maxWidth, respecting multi-byte rune boundaries
// so truncation never splits a character, and reduces multi-line text to
// its first line. This is the technique spec §4.1 requires for all
// character-slicing operations.
func Truncate(s string, maxWidth int) string { return truncate(s, maxWidth) }

func truncate(s string, maxWidth int) string {
	if maxWidth < 4 {
		maxWidth = 4
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if lipgloss.Width(s) <= maxWidth {
		return s
	}

	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > maxWidth {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// FormatNumber adds thousands separators, e.g. for analytics counts.
func FormatNumber(n int) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return FormatNumber(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}
