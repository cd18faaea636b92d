package retrieve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engram-hq/engram/analytics"
	"github.com/engram-hq/engram/embed"
	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/store"
	"github.com/engram-hq/engram/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	completeResponse string
	vector           func(text string) []float64
}

func (p *stubProvider) Complete(ctx context.Context, prompt string, opts provider.CompleteOptions) (string, error) {
	return p.completeResponse, nil
}
func (p *stubProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if p.vector != nil {
		return p.vector(text), nil
	}
	return []float64{1, 0, 0}, nil
}
func (p *stubProvider) Model() string { return "stub" }
func (p *stubProvider) Dim() int      { return 3 }

func newSurface(t *testing.T, p *stubProvider) *Surface {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "store"))
	return &Surface{
		Store:      st,
		ArchiveDir: filepath.Join(dir, "archive"),
		Synth:      synth.New(p),
		Provider:   p,
	}
}

func writeEntry(t *testing.T, st *store.Store, project string, cat store.Category, id, body string, ts time.Time) {
	t.Helper()
	st.Now = func() time.Time { return ts }
	require.NoError(t, st.WriteBlock(store.Entry{Project: project, Category: cat, ID: id, Body: body}))
}

func TestRecallRegeneratesWhenAbsent(t *testing.T) {
	p := &stubProvider{completeResponse: "# Context\n\nUses postgres.\n"}
	s := newSurface(t, p)
	writeEntry(t, s.Store, "proj", store.CategoryDecisions, "s1", "Use postgres.", time.Now())

	text, err := s.Recall(context.Background(), "proj")
	require.NoError(t, err)
	assert.Contains(t, text, "Uses postgres.")

	data, err := os.ReadFile(s.Store.ContextPath("proj"))
	require.NoError(t, err)
	assert.Equal(t, text, string(data))
}

func TestRecallReturnsExistingContextFile(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	require.NoError(t, s.Store.WriteContext("proj", "# Already synthesized\n"))

	text, err := s.Recall(context.Background(), "proj")
	require.NoError(t, err)
	assert.Equal(t, "# Already synthesized\n", text)
}

func TestRecallRejectsEmptyProject(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	_, err := s.Recall(context.Background(), "")
	assert.Error(t, err)
}

func TestRecallSessions(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	writeEntry(t, s.Store, "proj", store.CategoryDecisions, "s1", "decision body", time.Now())
	writeEntry(t, s.Store, "proj", store.CategoryBugs, "s2", "bug body", time.Now())
	writeEntry(t, s.Store, "proj", store.CategoryBugs, "s1", "bug for s1 too", time.Now())

	entries, err := s.RecallSessions("proj", []string{"s1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "s1", e.ID)
	}
}

func TestLookupRanksByCountAndRecency(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	old := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now()
	writeEntry(t, s.Store, "proj", store.CategoryBugs, "old", "timeout timeout timeout error", old)
	writeEntry(t, s.Store, "proj", store.CategoryBugs, "recent", "timeout error", recent)
	writeEntry(t, s.Store, "proj", store.CategoryBugs, "unrelated", "nothing matching here", recent)

	hits, err := s.Lookup("proj", "timeout")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "old", hits[0].ID, "higher occurrence count outranks recency")
}

func TestLookupRejectsEmptyQuery(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	_, err := s.Lookup("proj", "")
	assert.Error(t, err)
}

func TestSearchKnowledgeOnlySkipsArchive(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	writeEntry(t, s.Store, "proj", store.CategoryBugs, "s1", "connection refused on startup", time.Now())

	archiveDir := filepath.Join(s.ArchiveDir, "proj", "s2")
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archiveDir, "conversation.md"), []byte("connection refused in the transcript"), 0o644))

	hits, err := s.Search("connection refused", "proj", true)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].ID)
}

func TestSearchIncludesArchiveWhenNotKnowledgeOnly(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	archiveDir := filepath.Join(s.ArchiveDir, "proj", "s2")
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archiveDir, "conversation.md"), []byte("connection refused in the transcript"), 0o644))

	hits, err := s.Search("connection refused", "proj", false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s2", hits[0].ID)
}

func TestSearchExcludesExpiredEntries(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	s.Store.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Store.WriteBlock(store.Entry{
		Project: "proj", Category: store.CategoryBugs, ID: "s1", Body: "rare bug text", TTL: store.TTLFor(1, 'd'),
	}))
	s.Store.Now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }

	hits, err := s.Search("rare bug", "proj", true)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSemantic(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	idx := &embed.Index{
		Model: "stub", Dim: 3,
		Chunks: []embed.Chunk{
			{ID: "decisions/s1:0", SourceFile: "decisions/s1", Text: "use postgres", Vector: []float64{1, 0, 0}},
			{ID: "bugs/s2:0", SourceFile: "bugs/s2", Text: "unrelated", Vector: []float64{0, 1, 0}},
		},
	}
	require.NoError(t, embed.Save(s.Store.Root, "proj", idx))

	hits, err := s.SearchSemantic(context.Background(), "proj", "postgres", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "decisions/s1", hits[0].Chunk.SourceFile)
}

func TestAsk(t *testing.T) {
	p := &stubProvider{completeResponse: "Use postgres, per the cited decision."}
	s := newSurface(t, p)
	idx := &embed.Index{
		Model: "stub", Dim: 3,
		Chunks: []embed.Chunk{{ID: "decisions/s1:0", SourceFile: "decisions/s1", Text: "use postgres", Vector: []float64{1, 0, 0}}},
	}
	require.NoError(t, embed.Save(s.Store.Root, "proj", idx))

	answer, err := s.Ask(context.Background(), "proj", "what database do we use?")
	require.NoError(t, err)
	assert.Equal(t, "Use postgres, per the cited decision.", answer.Text)
	require.Len(t, answer.Citations, 1)
	assert.Contains(t, answer.Citations[0], "proj:decisions:s1")
}

func TestIndex(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	writeEntry(t, s.Store, "proj", store.CategoryDecisions, "s1", "Use postgres for storage.", time.Now())

	lines, err := s.Index("proj")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, store.CategoryDecisions, lines[0].Category)
	assert.Contains(t, lines[0].Line, "s1")
}

func TestTimeline(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeEntry(t, s.Store, "proj", store.CategoryDecisions, "s1", "first", base)
	writeEntry(t, s.Store, "proj", store.CategoryBugs, "s2", "second", base.Add(time.Hour))
	writeEntry(t, s.Store, "proj", store.CategoryPatterns, "s3", "third", base.Add(2*time.Hour))

	lines, err := s.Timeline("proj", "s2", 1)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestTimelineUnknownID(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	writeEntry(t, s.Store, "proj", store.CategoryDecisions, "s1", "first", time.Now())

	_, err := s.Timeline("proj", "does-not-exist", 1)
	assert.Error(t, err)
}

func TestLookupRecordsAnalyticsEvent(t *testing.T) {
	s := newSurface(t, &stubProvider{})
	s.Analytics = analytics.New(s.Store.Root)
	writeEntry(t, s.Store, "proj", store.CategoryDecisions, "s1", "use postgres for storage", time.Now())

	_, err := s.Lookup("proj", "postgres")
	require.NoError(t, err)

	events, err := s.Analytics.ReadDay(time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "lookup", events[0].EventType)
	assert.Equal(t, "proj", events[0].Project)
	assert.Equal(t, 1, events[0].ResultsCount)
}
