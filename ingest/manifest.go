package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/store"
)

// Stage is a step in the per-session ingestion state machine.
type Stage string

const (
	StageUnseen      Stage = "unseen"
	StageParsed      Stage = "parsed"
	StageArchived    Stage = "archived"
	StageExtracted   Stage = "extracted"
	StageStored      Stage = "stored"
	StageSynthesized Stage = "synthesized"
	StagePartial     Stage = "partial"
	StageFailed      Stage = "failed"
)

// order maps a stage to its position for "below target" comparisons.
var order = map[Stage]int{
	StageUnseen: 0, StageParsed: 1, StageArchived: 2, StageExtracted: 3,
	StageStored: 4, StageSynthesized: 5,
}

// Before reports whether s is strictly earlier in the pipeline than other.
// Terminal failure states (partial/failed) are always considered "below"
// any forward target, so they are always eligible for re-ingest.
func (s Stage) Before(other Stage) bool {
	if s == StagePartial || s == StageFailed {
		return true
	}
	return order[s] < order[other]
}

// ManifestEntry tracks one session's ingestion progress, keyed by session
// id in Manifest.Entries.
type ManifestEntry struct {
	SessionID     string    `json:"session_id"`
	ContentHash   string    `json:"content_hash"`
	LastStage     Stage     `json:"last_stage"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	Attempts      int       `json:"attempts"`
}

// Manifest is the per-store record of ingestion progress, keyed by session
// id rather than a flat session list.
type Manifest struct {
	Entries map[string]*ManifestEntry `json:"entries"`
}

// LoadManifest reads path's manifest, returning an empty Manifest if the
// file does not exist yet.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Manifest{Entries: map[string]*ManifestEntry{}}, nil
	}
	if err != nil {
		return nil, &engramerr.StoreError{Op: "load_manifest", Err: err}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &engramerr.StateError{Reason: "manifest is not valid JSON: " + err.Error()}
	}
	if m.Entries == nil {
		m.Entries = map[string]*ManifestEntry{}
	}
	return &m, nil
}

// Save atomically persists m to path.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &engramerr.StoreError{Op: "save_manifest", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &engramerr.StoreError{Op: "save_manifest", Err: err}
	}
	if err := store.AtomicWriteFile(path, data); err != nil {
		return &engramerr.StoreError{Op: "save_manifest", Err: err}
	}
	return nil
}

// Upsert records progress for sessionID, bumping Attempts when the hash is
// unchanged from the prior entry (a retry of the same content) and
// resetting it when the content changed.
func (m *Manifest) Upsert(sessionID, contentHash string, stage Stage, now time.Time) {
	e, ok := m.Entries[sessionID]
	if !ok {
		m.Entries[sessionID] = &ManifestEntry{SessionID: sessionID, ContentHash: contentHash, LastStage: stage, LastAttemptAt: now, Attempts: 1}
		return
	}
	if e.ContentHash != contentHash {
		e.Attempts = 0
	}
	e.ContentHash = contentHash
	e.LastStage = stage
	e.LastAttemptAt = now
	e.Attempts++
}

// ShouldVisit reports whether sessionID should be (re-)ingested up to
// target, given its current manifest entry: visit when the hash changed,
// the last stage is below target, or force is set.
func (m *Manifest) ShouldVisit(sessionID, contentHash string, target Stage, force bool) bool {
	if force {
		return true
	}
	e, ok := m.Entries[sessionID]
	if !ok {
		return true
	}
	if e.ContentHash != contentHash {
		return true
	}
	return e.LastStage.Before(target)
}
