package claude

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-hq/engram/session"
)

func TestReadFile(t *testing.T) {
	r := &Reader{}
	sess, err := r.ReadFile(filepath.Join("testdata", "basic.jsonl"))
	require.NoError(t, err)

	assert.Equal(t, "sess-001", sess.SessionID)
	assert.Equal(t, "claude", sess.Agent)
	assert.Equal(t, "/repo", sess.Dir)
	assert.Equal(t, "main", sess.GitBranch)
	assert.True(t, sess.Partial, "malformed line should mark the session partial")

	// 4 logical messages: user, merged-assistant (2 blocks), tool_result user, final assistant.
	// The sidechain entry must be dropped entirely.
	require.Len(t, sess.Messages, 4)

	first := sess.Messages[0]
	assert.Equal(t, session.RoleUser, first.Role)
	require.Len(t, first.Content, 1)
	assert.NotContains(t, first.Content[0].Text, "ENG-118", "private span must be stripped at parser output")
	assert.NotContains(t, first.Content[0].Text, "<private>")

	merged := sess.Messages[1]
	assert.Equal(t, session.RoleAssistant, merged.Role)
	require.Len(t, merged.Content, 2, "contiguous assistant entries merge into one message")
	assert.Equal(t, session.BlockText, merged.Content[0].Type)
	assert.Equal(t, session.BlockToolUse, merged.Content[1].Type)
	assert.Equal(t, "Read", merged.Content[1].Name)
	require.NotNil(t, merged.Usage)
	assert.Equal(t, 130, merged.Usage.InputTokens) // 120 + 10, accumulated across the merge
	assert.Equal(t, 12, merged.Usage.OutputTokens)

	toolResult := sess.Messages[2]
	assert.Equal(t, session.RoleUser, toolResult.Role)
	require.Len(t, toolResult.Content, 1)
	assert.Equal(t, session.BlockToolResult, toolResult.Content[0].Type)
	assert.Equal(t, "toolu_1", toolResult.Content[0].ToolUseID)
	assert.Contains(t, toolResult.Content[0].Content, "func Get")

	final := sess.Messages[3]
	assert.Equal(t, session.RoleAssistant, final.Role)
	assert.Equal(t, "Added exponential backoff to Get.", final.Content[0].Text)

	assert.Equal(t, "Please add a retry to the HTTP client.", sess.Title)
}

func TestDeriveTitleSkipsIDEMetadata(t *testing.T) {
	messages := []session.Message{
		{Role: session.RoleUser, Content: []session.ContentBlock{
			{Type: session.BlockText, Text: "<ide_context>open file: main.go</ide_context>"},
		}},
		{Role: session.RoleUser, Content: []session.ContentBlock{
			{Type: session.BlockText, Text: "Fix the flaky test\nand add coverage"},
		}},
	}
	assert.Equal(t, "Fix the flaky test", deriveTitle(messages))
}

func TestExtractToolResultContent(t *testing.T) {
	assert.Equal(t, "", extractToolResultContent(nil))
	assert.Equal(t, "hello", extractToolResultContent("hello"))
	assert.Equal(t, "line one\nline two", extractToolResultContent([]any{
		map[string]any{"type": "text", "text": "line one"},
		map[string]any{"type": "text", "text": "line two"},
	}))
}

func TestScanEntriesSkipsMalformedLines(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "basic.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	entries, skipped, err := scanEntries(f)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	// The sidechain entry is filtered out at scan time too.
	for _, e := range entries {
		assert.False(t, e.IsSidechain)
	}
	assert.Len(t, entries, 5)
}

// setupProjectDir builds a <root>/<project>/<sessionID>.jsonl layout used by
// ReadSession, ReadProject, and ReadAll.
func setupProjectDir(t *testing.T, root, project, sessionID string, body []byte) string {
	t.Helper()
	dir := filepath.Join(root, project)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, sessionID+".jsonl")
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestReadSession(t *testing.T) {
	root := t.TempDir()
	body, err := os.ReadFile(filepath.Join("testdata", "basic.jsonl"))
	require.NoError(t, err)
	setupProjectDir(t, root, "-repo-myproject", "sess-001", body)

	r := &Reader{Dir: root}
	sess, err := r.ReadSession("sess-001")
	require.NoError(t, err)
	assert.Equal(t, "sess-001", sess.SessionID)
	assert.Equal(t, "-repo-myproject", sess.Project)
}

func TestReadSessionNotFound(t *testing.T) {
	r := &Reader{Dir: t.TempDir()}
	_, err := r.ReadSession("does-not-exist")
	require.Error(t, err)
}

func TestReadProjectAndReadAll(t *testing.T) {
	root := t.TempDir()
	body, err := os.ReadFile(filepath.Join("testdata", "basic.jsonl"))
	require.NoError(t, err)
	setupProjectDir(t, root, "-repo-alpha", "sess-001", body)
	setupProjectDir(t, root, "-repo-alpha", "sess-002", body)
	setupProjectDir(t, root, "-repo-beta", "sess-003", body)

	r := &Reader{Dir: root}

	alpha, err := r.ReadProject("-repo-alpha")
	require.NoError(t, err)
	assert.Len(t, alpha, 2)
	for _, s := range alpha {
		assert.Equal(t, "-repo-alpha", s.Project)
	}

	all, err := r.ReadAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
