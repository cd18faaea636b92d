// Package render defines the interface for rendering standardized sessions
// into various output formats (spec §4.2 Archival Renderer, and the
// Retrieval Surface's compact terminal output).
package render

import (
	"io"

	"github.com/engram-hq/engram/session"
)

// Renderer writes a session to the given writer in a specific format.
type Renderer interface {
	Render(w io.Writer, s *session.Session) error
}
