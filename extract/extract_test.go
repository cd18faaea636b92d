package extract

import (
	"context"
	"testing"
	"time"

	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/session"
	"github.com/engram-hq/engram/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubProvider) Complete(ctx context.Context, prompt string, opts provider.CompleteOptions) (string, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var resp string
	if i < len(s.responses) {
		resp = s.responses[i]
	}
	return resp, err
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float64, error) { return nil, nil }
func (s *stubProvider) Model() string                                            { return "stub" }
func (s *stubProvider) Dim() int                                                  { return 0 }

func sampleSession() *session.Session {
	ts := time.Date(2026, 7, 20, 9, 0, 0, 0, time.UTC)
	return &session.Session{
		SessionID: "sess-1",
		Project:   "proj",
		Messages: []session.Message{
			{Role: session.RoleUser, Timestamp: &ts, Content: []session.ContentBlock{
				{Type: session.BlockText, Text: "Fix the flaky retry test."},
			}},
			{Role: session.RoleAssistant, Content: []session.ContentBlock{
				{Type: session.BlockText, Text: "Added exponential backoff with jitter."},
			}},
		},
	}
}

func TestBuildPromptIncludesHints(t *testing.T) {
	p := buildPrompt(sampleSession(), Hints{FilesEditedToday: []string{"retry.go"}})
	assert.Contains(t, p, "Files edited in this session: retry.go")
	assert.Contains(t, p, "Fix the flaky retry test.")
	assert.Contains(t, p, "===CATEGORY:")
}

func TestBuildPromptOmitsHintsWhenEmpty(t *testing.T) {
	p := buildPrompt(sampleSession(), Hints{})
	assert.NotContains(t, p, "Files edited")
}

func TestParseCandidatesBasic(t *testing.T) {
	out := "===CATEGORY:decisions===\nUse exponential backoff for retries.\n\n===CATEGORY:bugs===\nFlaky test was caused by a fixed sleep.\n"
	candidates, err := parseCandidates(out)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, store.CategoryDecisions, candidates[0].Category)
	assert.Equal(t, "Use exponential backoff for retries.", candidates[0].Body)
	assert.Equal(t, store.CategoryBugs, candidates[1].Category)
}

func TestParseCandidatesStripsCodeFence(t *testing.T) {
	out := "```\n===CATEGORY:insights===\nRetries need jitter to avoid thundering herd.\n```"
	candidates, err := parseCandidates(out)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, store.CategoryInsights, candidates[0].Category)
}

func TestParseCandidatesSkipsUnknownCategory(t *testing.T) {
	out := "===CATEGORY:nonsense===\nshould be skipped\n===CATEGORY:patterns===\nRetry with backoff is now the standard pattern.\n"
	candidates, err := parseCandidates(out)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, store.CategoryPatterns, candidates[0].Category)
}

func TestParseCandidatesEmptyOutputIsEmpty(t *testing.T) {
	candidates, err := parseCandidates("")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseCandidatesNoDelimitersErrors(t *testing.T) {
	_, err := parseCandidates("I don't know what to extract here.")
	assert.Error(t, err)
}

func TestExtractRetriesOnProviderError(t *testing.T) {
	p := &stubProvider{
		errs:      []error{assertErr("boom"), nil},
		responses: []string{"", "===CATEGORY:solutions===\nUse a context timeout.\n"},
	}
	e := New(p)
	candidates, err := e.Extract(context.Background(), sampleSession(), Hints{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 2, p.calls)
}

func TestExtractFailsAfterMaxAttempts(t *testing.T) {
	p := &stubProvider{errs: []error{assertErr("a"), assertErr("b"), assertErr("c")}}
	e := &Extractor{Provider: p, MaxAttempts: 3}
	_, err := e.Extract(context.Background(), sampleSession(), Hints{})
	require.Error(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestCheckContradictionDetectsContradiction(t *testing.T) {
	p := &stubProvider{responses: []string{"CONTRADICTS: sess-old | The new entry says the opposite of what was recorded."}}
	e := New(p)
	c, err := e.CheckContradiction(context.Background(), Candidate{Category: store.CategoryDecisions, Body: "Use REST, not GraphQL."}, []store.Entry{
		{ID: "sess-old", Body: "Use GraphQL for the public API."},
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "sess-old", c.Against)
}

func TestCheckContradictionNoneFound(t *testing.T) {
	p := &stubProvider{responses: []string{"NO CONTRADICTION"}}
	e := New(p)
	c, err := e.CheckContradiction(context.Background(), Candidate{Body: "Use REST."}, []store.Entry{{ID: "sess-old", Body: "Also use REST."}})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCheckContradictionSkipsWhenNoExistingEntries(t *testing.T) {
	p := &stubProvider{}
	e := New(p)
	c, err := e.CheckContradiction(context.Background(), Candidate{Body: "anything"}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, 0, p.calls)
}

func TestCheckContradictionProviderErrorIsAdvisoryOnly(t *testing.T) {
	p := &stubProvider{errs: []error{assertErr("down")}}
	e := New(p)
	c, err := e.CheckContradiction(context.Background(), Candidate{Body: "anything"}, []store.Entry{{ID: "x", Body: "y"}})
	require.NoError(t, err)
	assert.Nil(t, c)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
