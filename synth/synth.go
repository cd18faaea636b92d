// Package synth builds context.md: a bounded, human-readable synthesis of a
// project's current knowledge snapshot.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/store"
)

// MaxLines bounds context.md's length (typically 180 lines).
const MaxLines = 180

// Synthesizer turns a project's knowledge snapshot into context.md.
type Synthesizer struct {
	Provider provider.LLMProvider
}

// New returns a Synthesizer backed by p.
func New(p provider.LLMProvider) *Synthesizer {
	return &Synthesizer{Provider: p}
}

const synthesisPromptTemplate = `You are writing a concise project memory summary for a coding assistant to read before starting work. Summarize the knowledge below into a single markdown document covering: project purpose (if evident), key decisions, recent solutions, and recurring patterns. Expired or trivial entries should be omitted.

Write at most %d lines. Do not restate the raw entries verbatim — synthesize. Do not invent facts not present below.

Knowledge snapshot:
%s`

// Synthesize renders snapshot (all seven categories, already
// expiry-filtered by the caller) into context.md text, bounded to MaxLines.
// Regeneration is idempotent given the same snapshot and the same
// underlying model: the prompt is a pure function of snapshot, and the
// bound below is enforced deterministically regardless of what the model
// returns.
func (s *Synthesizer) Synthesize(ctx context.Context, snapshot map[store.Category][]store.Entry) (string, error) {
	prompt := fmt.Sprintf(synthesisPromptTemplate, MaxLines, renderSnapshot(snapshot))

	out, err := s.Provider.Complete(ctx, prompt, provider.CompleteOptions{MaxTokens: 4096})
	if err != nil {
		return "", &engramerr.ProviderError{Provider: s.Provider.Model(), Op: "synthesize", Retryable: true, Err: err}
	}

	return boundLines(out, MaxLines), nil
}

// renderSnapshot flattens a category snapshot into plain text for the
// synthesis prompt, in the fixed category order.
func renderSnapshot(snapshot map[store.Category][]store.Entry) string {
	var b strings.Builder
	for _, cat := range store.Categories {
		entries := snapshot[cat]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", cat)
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s\n", strings.ReplaceAll(e.Body, "\n", " "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// boundLines truncates s to at most n lines, leaving a trailing marker if
// truncation happened so the result is honest about being incomplete.
func boundLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n") + "\n"
	}
	truncated := append(lines[:n-1], "...(truncated)")
	return strings.Join(truncated, "\n") + "\n"
}
