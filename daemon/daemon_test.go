package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-hq/engram/extract"
	"github.com/engram-hq/engram/ingest"
	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/session"
	"github.com/engram-hq/engram/store"
	"github.com/engram-hq/engram/synth"
)

type stubReader struct {
	sessions []*session.Session
}

func (r *stubReader) ReadFile(path string) (*session.Session, error)  { return nil, nil }
func (r *stubReader) ReadSession(id string) (*session.Session, error) { return nil, nil }
func (r *stubReader) ReadProject(project string) ([]*session.Session, error) {
	var out []*session.Session
	for _, s := range r.sessions {
		if s.Project == project {
			out = append(out, s)
		}
	}
	return out, nil
}
func (r *stubReader) ReadAll() ([]*session.Session, error) { return r.sessions, nil }

type stubProvider struct{}

func (p *stubProvider) Complete(ctx context.Context, prompt string, opts provider.CompleteOptions) (string, error) {
	return "===CATEGORY:patterns===\nUse exponential backoff.\n", nil
}
func (p *stubProvider) Embed(ctx context.Context, text string) ([]float64, error) { return nil, nil }
func (p *stubProvider) Model() string                                            { return "stub" }
func (p *stubProvider) Dim() int                                                  { return 0 }

func sampleSession(id, project string) *session.Session {
	ts := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	return &session.Session{
		SessionID: id,
		Project:   project,
		CreatedAt: ts,
		Messages: []session.Message{
			{Role: session.RoleUser, Timestamp: &ts, Content: []session.ContentBlock{{Type: session.BlockText, Text: "do the thing"}}},
		},
	}
}

func newTestSupervisor(t *testing.T, sessions []*session.Session) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "store"))
	p := &stubProvider{}
	orch := &ingest.Orchestrator{
		Reader:       &stubReader{sessions: sessions},
		Store:        st,
		Extractor:    extract.New(p),
		Synth:        synth.New(p),
		Archive:      func(dir string, s *session.Session) error { return nil },
		ArchiveDir:   filepath.Join(dir, "archive"),
		ManifestPath: filepath.Join(dir, "manifest.json"),
	}
	sv := &Supervisor{
		Orchestrator: orch,
		Project:      "proj",
		Interval:     20 * time.Millisecond,
		PIDPath:      filepath.Join(dir, "engram.pid"),
		LogPath:      filepath.Join(dir, "daemon.log"),
	}
	return sv, dir
}

func TestStartWritesAndRemovesPIDFile(t *testing.T) {
	sv, _ := newTestSupervisor(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sv.Start(ctx) }()

	time.Sleep(10 * time.Millisecond)
	data, err := os.ReadFile(sv.PIDPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	require.NoError(t, <-done)
	_, err = os.Stat(sv.PIDPath)
	assert.True(t, os.IsNotExist(err))
}

func TestStartRefusesWhenPIDFileIsLive(t *testing.T) {
	sv, dir := newTestSupervisor(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engram.pid"), []byte(strconv.Itoa(os.Getpid())), 0o644))

	err := sv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestTickRunsOrchestratorAndSkipsWhileActive(t *testing.T) {
	sessions := []*session.Session{sampleSession("sess-1", "proj")}
	sv, _ := newTestSupervisor(t, sessions)

	logger, closeLog, err := sv.openLogger()
	require.NoError(t, err)
	defer closeLog()

	sv.tick(context.Background(), logger)
	// A second tick issued immediately should skip, not run concurrently,
	// since the first tick's goroutine may still be in flight.
	sv.tick(context.Background(), logger)

	require.Eventually(t, func() bool {
		entries, err := sv.Orchestrator.Store.ReadBlocks("proj", store.CategoryPatterns)
		return err == nil && len(entries) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopFailsWhenPIDFileIsGone(t *testing.T) {
	sv, dir := newTestSupervisor(t, nil)
	pidPath := filepath.Join(dir, "engram.pid")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sv.Start(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// After the supervisor has stopped on its own, Stop against the same
	// (now-removed) pid file should fail cleanly rather than panic.
	err := Stop(pidPath, 100*time.Millisecond)
	assert.Error(t, err)
}
