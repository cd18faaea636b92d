// Package observe implements an append-only daily JSONL log per project
// recording tool-use events forwarded by an external hook, plus the
// file-edit queries the extraction engine and smart-inject use as
// work-context hints.
package observe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/extract"
)

// Observation is one recorded tool invocation.
type Observation struct {
	SessionID    string    `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	Tool         string    `json:"tool"`
	FilesTouched []string  `json:"files_touched"`
}

// Log appends Observations to <root>/observations/<project>/YYYY-MM-DD.jsonl,
// rolling by calendar day.
type Log struct {
	Root string

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
}

// New returns a Log rooted at root.
func New(root string) *Log {
	return &Log{Root: root, Now: time.Now}
}

func (l *Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Log) path(project string, day time.Time) string {
	return filepath.Join(l.Root, "observations", project, day.Format("2006-01-02")+".jsonl")
}

// Record appends one observation for project, stamping Timestamp with now
// if unset.
func (l *Log) Record(project string, o Observation) error {
	if o.Timestamp.IsZero() {
		o.Timestamp = l.now()
	}
	data, err := json.Marshal(o)
	if err != nil {
		return &engramerr.StoreError{Op: "record_observation", Project: project, Err: err}
	}

	path := l.path(project, o.Timestamp)
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &engramerr.StoreError{Op: "record_observation", Project: project, Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &engramerr.StoreError{Op: "record_observation", Project: project, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return &engramerr.StoreError{Op: "record_observation", Project: project, Err: err}
	}
	return nil
}

// readRange returns every observation for project on each calendar day
// between since and until, inclusive, decoding tolerantly: a malformed
// line is skipped rather than failing the whole read.
func (l *Log) readRange(project string, since, until time.Time) ([]Observation, error) {
	var all []Observation
	for d := since.Truncate(24 * time.Hour); !d.After(until); d = d.AddDate(0, 0, 1) {
		data, err := os.ReadFile(l.path(project, d))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, &engramerr.StoreError{Op: "read_observations", Project: project, Err: err}
		}
		all = append(all, decodeLines(data)...)
	}
	return all, nil
}

func decodeLines(data []byte) []Observation {
	var out []Observation
	start := 0
	for i := 0; i <= len(data); i++ {
		if i < len(data) && data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		var o Observation
		if err := json.Unmarshal(line, &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ReadRange returns every observation recorded for project between since
// and until, inclusive, for callers (the MCP `observations` read tool) that
// want the raw records rather than a deduplicated file list.
func (l *Log) ReadRange(project string, since, until time.Time) ([]Observation, error) {
	return l.readRange(project, since, until)
}

// FilesEditedBetween returns the deduplicated set of files touched by any
// observation for project within [since, until].
func (l *Log) FilesEditedBetween(project string, since, until time.Time) ([]string, error) {
	obs, err := l.readRange(project, since, until)
	if err != nil {
		return nil, err
	}
	return dedupeFiles(obs, func(Observation) bool { return true }), nil
}

// FilesEditedForSession returns the deduplicated set of files touched by
// sessionID's observations, searching the day of call and the prior day to
// tolerate a session that started just before local midnight.
func (l *Log) FilesEditedForSession(project, sessionID string) ([]string, error) {
	now := l.now()
	obs, err := l.readRange(project, now.AddDate(0, 0, -1), now)
	if err != nil {
		return nil, err
	}
	return dedupeFiles(obs, func(o Observation) bool { return o.SessionID == sessionID }), nil
}

// HintsFor assembles the extraction engine's per-session Hints from today's
// and yesterday's observations for project.
func (l *Log) HintsFor(project string) (extract.Hints, error) {
	now := l.now()
	today, err := l.FilesEditedBetween(project, now.Truncate(24*time.Hour), now)
	if err != nil {
		return extract.Hints{}, err
	}
	yesterday, err := l.FilesEditedBetween(project, now.AddDate(0, 0, -1).Truncate(24*time.Hour), now.AddDate(0, 0, -1))
	if err != nil {
		return extract.Hints{}, err
	}
	return extract.Hints{FilesEditedToday: today, FilesEditedYesterday: yesterday}, nil
}

func dedupeFiles(obs []Observation, include func(Observation) bool) []string {
	seen := map[string]bool{}
	var files []string
	for _, o := range obs {
		if !include(o) {
			continue
		}
		for _, f := range o.FilesTouched {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}
