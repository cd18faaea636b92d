// Package extract turns a privacy-stripped session into candidate knowledge
// entries by asking an LLMProvider to classify what happened across the
// seven fixed categories.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/session"
	"github.com/engram-hq/engram/store"
)

// Hints carries observation-derived context the prompt prepends when
// non-empty.
type Hints struct {
	FilesEditedToday     []string
	FilesEditedYesterday []string
}

// Candidate is a parsed, not-yet-stored knowledge entry: a category and a
// body, with no session id of its own. Extractor.Extract returns these; the
// caller supplies the entry id and is responsible for calling
// store.WriteBlock.
type Candidate struct {
	Category store.Category
	Body     string
}

// Contradiction is an advisory warning from the second-pass check. It never
// blocks a write.
type Contradiction struct {
	Category store.Category
	NewBody  string
	Against  string // id of the existing entry it appears to contradict
	Reason   string
}

// Extractor drives candidate extraction and the optional contradiction
// check for one session against one LLMProvider.
type Extractor struct {
	Provider provider.LLMProvider

	// MaxAttempts bounds retries for a provider/parse failure. Zero means 3.
	MaxAttempts int
}

// New returns an Extractor backed by p.
func New(p provider.LLMProvider) *Extractor {
	return &Extractor{Provider: p}
}

func (e *Extractor) maxAttempts() int {
	if e.MaxAttempts <= 0 {
		return 3
	}
	return e.MaxAttempts
}

// categoryDelimiter is the documented, stable delimiter the engine asks the
// model to frame each non-empty category's block with, and parses back
// deterministically.
const categoryDelimiterPrefix = "===CATEGORY:"
const categoryDelimiterSuffix = "==="

func categoryOpenTag(c store.Category) string {
	return fmt.Sprintf("%s%s%s", categoryDelimiterPrefix, c, categoryDelimiterSuffix)
}

const extractionPromptTemplate = `You are a memory extraction engine for a coding assistant. Given the transcript of a coding session below, extract durable knowledge worth remembering across the following categories: decisions, solutions, patterns, bugs, insights, questions, preferences.

%sFor each category that has something worth keeping, emit a block in exactly this form (repeat per category, omit categories with nothing to report):

===CATEGORY:<category>===
<body text for that category, one or more sentences or a short list>

Rules:
- Never restate text that appeared inside a <private>...</private> span; that text has already been removed from the transcript you are given, and none of it should appear in your output.
- Never invent a session id; the caller already knows which session this is.
- Be concise. Do not pad categories with nothing meaningful to say.
- Only use the seven category names listed above, lowercase, exactly as spelled.

Transcript:
%s`

// buildPrompt renders the extraction prompt for sess, prefixed with any
// non-empty file-edit hints.
func buildPrompt(sess *session.Session, hints Hints) string {
	var prefix strings.Builder
	if len(hints.FilesEditedToday) > 0 {
		prefix.WriteString(fmt.Sprintf("Files edited in this session: %s\n\n", strings.Join(hints.FilesEditedToday, ", ")))
	}
	if len(hints.FilesEditedYesterday) > 0 {
		prefix.WriteString(fmt.Sprintf("Files edited yesterday: %s\n\n", strings.Join(hints.FilesEditedYesterday, ", ")))
	}
	return fmt.Sprintf(extractionPromptTemplate, prefix.String(), renderTranscript(sess))
}

// renderTranscript flattens a session's messages into plain text for the
// extraction prompt: role-labeled text and thinking content only, tool
// input/output omitted to keep the prompt focused on what a human would read as "what
// happened" rather than raw tool plumbing.
func renderTranscript(sess *session.Session) string {
	var b strings.Builder
	for _, msg := range sess.Messages {
		for _, block := range msg.Content {
			switch block.Type {
			case "text", "thinking":
				if strings.TrimSpace(block.Text) == "" {
					continue
				}
				fmt.Fprintf(&b, "[%s] %s\n\n", msg.Role, block.Text)
			}
		}
	}
	return b.String()
}

// Extract asks the provider to classify sess into candidate entries. It
// retries on provider/parse failure up to MaxAttempts times with
// exponential backoff: 200ms before the second attempt, doubling before
// each later one. If ctx is canceled during a wait, it returns a
// CancelError without further attempts.
func (e *Extractor) Extract(ctx context.Context, sess *session.Session, hints Hints) ([]Candidate, error) {
	prompt := buildPrompt(sess, hints)

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts(); attempt++ {
		if attempt > 0 {
			wait := time.NewTimer((200 * time.Millisecond) << (attempt - 1))
			select {
			case <-ctx.Done():
				wait.Stop()
				return nil, &engramerr.CancelError{Stage: "extract"}
			case <-wait.C:
			}
		}
		out, err := e.Provider.Complete(ctx, prompt, provider.CompleteOptions{MaxTokens: 2048})
		if err != nil {
			lastErr = err
			continue
		}
		candidates, err := parseCandidates(out)
		if err != nil {
			lastErr = err
			continue
		}
		return candidates, nil
	}
	return nil, &engramerr.ProviderError{Provider: e.Provider.Model(), Op: "extract", Retryable: true, Err: fmt.Errorf("extraction failed after %d attempts: %w", e.maxAttempts(), lastErr)}
}

// parseCandidates splits model output on the documented category delimiter
// and validates each category name. Unknown category names and empty
// bodies are skipped rather than erroring, since a model that drops one
// category's block should not invalidate the rest of the response.
func parseCandidates(output string) ([]Candidate, error) {
	stripped := stripCodeFence(output)

	var candidates []Candidate
	lines := strings.Split(stripped, "\n")

	var currentCategory store.Category
	var inBlock bool
	var body []string

	flush := func() {
		if inBlock {
			text := strings.TrimSpace(strings.Join(body, "\n"))
			if text != "" {
				candidates = append(candidates, Candidate{Category: currentCategory, Body: text})
			}
		}
		inBlock = false
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, categoryDelimiterPrefix) && strings.HasSuffix(trimmed, categoryDelimiterSuffix) {
			flush()
			name := strings.TrimSuffix(strings.TrimPrefix(trimmed, categoryDelimiterPrefix), categoryDelimiterSuffix)
			cat := store.Category(strings.ToLower(strings.TrimSpace(name)))
			if !cat.Valid() {
				inBlock = false
				continue
			}
			currentCategory = cat
			inBlock = true
			continue
		}
		if inBlock {
			body = append(body, line)
		}
	}
	flush()

	if len(candidates) == 0 && strings.TrimSpace(stripped) != "" && !strings.Contains(stripped, categoryDelimiterPrefix) {
		return nil, &engramerr.ParseError{Reason: "no category delimiters found in extraction output"}
	}
	return candidates, nil
}

const contradictionPromptTemplate = `You are checking a new piece of knowledge against what is already recorded for the same category, to catch outright contradictions (not mere additions or refinements).

New entry:
%s

Existing entries in this category:
%s

If the new entry contradicts one of the existing entries, respond with exactly:
CONTRADICTS: <id of the contradicted entry> | <one sentence reason>

If there is no contradiction, respond with exactly:
NO CONTRADICTION`

// CheckContradiction asks the provider whether candidate contradicts any of
// existing (same-category entries currently on disk). It is advisory only:
// a provider error or an unparseable response yields no contradiction
// rather than failing the caller's write.
func (e *Extractor) CheckContradiction(ctx context.Context, candidate Candidate, existing []store.Entry) (*Contradiction, error) {
	if len(existing) == 0 {
		return nil, nil
	}

	var existingText strings.Builder
	for _, ent := range existing {
		fmt.Fprintf(&existingText, "[%s] %s\n", ent.ID, ent.Body)
	}

	prompt := fmt.Sprintf(contradictionPromptTemplate, candidate.Body, existingText.String())
	out, err := e.Provider.Complete(ctx, prompt, provider.CompleteOptions{MaxTokens: 256})
	if err != nil {
		return nil, nil
	}

	out = strings.TrimSpace(out)
	if !strings.HasPrefix(out, "CONTRADICTS:") {
		return nil, nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(out, "CONTRADICTS:"))
	parts := strings.SplitN(rest, "|", 2)
	against := strings.TrimSpace(parts[0])
	reason := ""
	if len(parts) > 1 {
		reason = strings.TrimSpace(parts[1])
	}
	if against == "" {
		return nil, nil
	}
	return &Contradiction{Category: candidate.Category, NewBody: candidate.Body, Against: against, Reason: reason}, nil
}

// stripCodeFence removes a wrapping markdown code fence if the model
// wrapped its whole answer in one, mirroring the
// fence-stripping technique extraction engines in this style commonly use
// before attempting to parse structured output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
