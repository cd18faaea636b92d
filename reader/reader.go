// Package reader defines the Transcript Parser interface (spec §4.1):
// decoding agent-specific, append-only session logs into the standardized
// session.Session representation.
package reader

import "github.com/engram-hq/engram/session"

// Reader parses agent session data into standardized sessions.
type Reader interface {
	// ReadFile parses a single session file at the given path.
	ReadFile(path string) (*session.Session, error)

	// ReadSession locates and parses a session by its ID.
	ReadSession(sessionID string) (*session.Session, error)

	// ReadProject returns every session for a named project, used by the
	// Ingestion Orchestrator's discovery phase (spec §4.6).
	ReadProject(project string) ([]*session.Session, error)

	// ReadAll returns every session across every project.
	ReadAll() ([]*session.Session, error)
}
