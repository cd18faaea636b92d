// Package privacy implements the single streaming `<private>…</private>`
// stripper described in spec §4.10. It is applied at parser output, at
// every MCP response boundary as defense in depth, and at any renderer that
// writes to disk outside the per-session archive.
package privacy

import (
	"regexp"
	"strings"

	"github.com/engram-hq/engram/session"
)

// openTagRE matches a <private> opening tag, case-insensitively. Go's
// regexp package has no backreferences, so closing tags are located with a
// second, independent search rather than a single matched pattern.
var openTagRE = regexp.MustCompile(`(?i)<private>`)

const closeTag = "</private>"

// Strip removes every `<private>…</private>` span from s, case-insensitively
// and across newlines. A `<private>` with no matching close tag has
// everything from the open tag to the end of the string removed, since an
// unterminated private span must never leak its remainder.
func Strip(s string) string {
	for {
		loc := openTagRE.FindStringIndex(s)
		if loc == nil {
			break
		}
		rest := s[loc[1]:]
		lowerRest := strings.ToLower(rest)
		closeIdx := strings.Index(lowerRest, closeTag)
		if closeIdx < 0 {
			s = s[:loc[0]]
			break
		}
		end := loc[1] + closeIdx + len(closeTag)
		s = s[:loc[0]] + s[end:]
	}
	return s
}

// Contains reports whether s still has an unstripped private span. Used by
// tests asserting property 3 in spec §8.
func Contains(s string) bool {
	return openTagRE.MatchString(s)
}

// Stripper is a session.Transformer that strips private spans from the Text
// and Content fields of every content block in a session's top-level
// messages; tool inputs and sub-agent sessions are left as they are. The
// Claude reader and the MCP layer call Strip directly rather than through
// this transformer.
type Stripper struct{}

// Transform implements session.Transformer.
func (Stripper) Transform(s *session.Session) error {
	for i := range s.Messages {
		msg := &s.Messages[i]
		for j := range msg.Content {
			b := &msg.Content[j]
			b.Text = Strip(b.Text)
			b.Content = Strip(b.Content)
		}
	}
	return nil
}
