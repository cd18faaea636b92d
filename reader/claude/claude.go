// Package claude implements the Transcript Parser (spec §4.1) for sessions
// recorded by the Claude Code CLI agent: append-only JSON-lines files under
// a per-project directory, one file per session.
package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/privacy"
	"github.com/engram-hq/engram/session"
)

// Reader reads Claude Code session logs from a directory structured as
// <Dir>/<project>/<session-id>.jsonl, matching Claude Code's own
// ~/.claude/projects/<project>/<session-id>.jsonl convention.
type Reader struct {
	// Dir is the root directory containing one subdirectory per project. If
	// empty, defaults to ~/.claude/projects.
	Dir string
}

func (r *Reader) root() string {
	if r.Dir != "" {
		return r.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude/projects"
	}
	return filepath.Join(home, ".claude", "projects")
}

// ReadFile parses a single session file at path (spec §4.1's primary
// contract: path to an append-only JSON-lines transcript).
func (r *Reader) ReadFile(path string) (*session.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &engramerr.StoreError{Op: "read_file", Err: err}
	}
	defer f.Close()

	entries, skipped, err := scanEntries(f)
	if err != nil {
		return nil, &engramerr.ParseError{Path: path, Reason: err.Error()}
	}

	// Blocks are stripped of <private> spans as they're built (below), so the
	// session never holds a private span past parser output (spec §4.1, §4.10).
	sess := buildSession(entries, filepath.Base(path))
	sess.Partial = skipped > 0 && len(sess.Messages) > 0
	if len(sess.Messages) == 0 && skipped > 0 {
		return nil, &engramerr.ParseError{Path: path, Reason: "no valid turns decoded"}
	}
	return sess, nil
}

// ReadSession locates the file named <sessionID>.jsonl under any project
// directory and parses it.
func (r *Reader) ReadSession(sessionID string) (*session.Session, error) {
	root := r.root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &engramerr.StoreError{Op: "read_session", Err: err}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name(), sessionID+".jsonl")
		if _, err := os.Stat(path); err == nil {
			sess, err := r.ReadFile(path)
			if err != nil {
				return nil, err
			}
			sess.Project = e.Name()
			return sess, nil
		}
	}
	return nil, &engramerr.InputError{Op: "read_session", Reason: "session not found: " + sessionID}
}

// ReadProject returns every session under <root>/<project>/*.jsonl.
func (r *Reader) ReadProject(project string) ([]*session.Session, error) {
	projectDir := filepath.Join(r.root(), project)
	files, err := filepath.Glob(filepath.Join(projectDir, "*.jsonl"))
	if err != nil {
		return nil, &engramerr.StoreError{Op: "read_project", Project: project, Err: err}
	}
	var sessions []*session.Session
	for _, path := range files {
		sess, err := r.ReadFile(path)
		if err != nil {
			continue // per-session parse failures don't abort the project scan
		}
		sess.Project = project
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// ReadAll returns every session across every project directory.
func (r *Reader) ReadAll() ([]*session.Session, error) {
	root := r.root()
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, &engramerr.StoreError{Op: "read_all", Err: err}
	}
	var sessions []*session.Session
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		sub, err := r.ReadProject(d.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, sub...)
	}
	return sessions, nil
}

// rawEntry is one decoded JSONL line from a Claude Code session file.
type rawEntry struct {
	Type        string      `json:"type"`
	Message     *rawMessage `json:"message"`
	UUID        string      `json:"uuid"`
	ParentUUID  string      `json:"parentUuid"`
	SessionID   string      `json:"sessionId"`
	Timestamp   string      `json:"timestamp"`
	Cwd         string      `json:"cwd"`
	GitBranch   string      `json:"gitBranch"`
	IsSidechain bool        `json:"isSidechain"`
}

type rawMessage struct {
	Role    string    `json:"role"`
	Model   string    `json:"model,omitempty"`
	Content any       `json:"content"` // string, or []map[string]any of typed blocks
	Usage   *rawUsage `json:"usage,omitempty"`
}

type rawUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// scanEntries decodes each line as a rawEntry, keeping only "user" and
// "assistant" message types and dropping sidechain (sub-agent tool-loop
// echo) entries. A line that fails to decode is counted and skipped rather
// than aborting the scan (spec §4.1: "tolerates trailing/partial lines").
func scanEntries(f *os.File) (entries []rawEntry, skipped int, err error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e rawEntry
		if decodeErr := json.Unmarshal([]byte(line), &e); decodeErr != nil {
			skipped++
			continue
		}
		if e.IsSidechain {
			continue
		}
		if e.Type != "user" && e.Type != "assistant" {
			continue
		}
		if e.Message == nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return entries, skipped, scanErr
	}
	return entries, skipped, nil
}

// groupAndMapMessages converts raw entries into session.Message values.
// Contiguous assistant entries (streaming deltas of one logical turn) are
// merged into a single message; every user entry — whether human-authored
// text or a tool_result completion — becomes its own message, flushing any
// pending assistant accumulation first.
func groupAndMapMessages(entries []rawEntry) []session.Message {
	var messages []session.Message
	var pending *session.Message

	flush := func() {
		if pending != nil {
			messages = append(messages, *pending)
			pending = nil
		}
	}

	for _, e := range entries {
		ts := parseTimestamp(e.Timestamp)
		blocks := mapContentBlocks(e.Message.Content)
		role := session.Role(e.Message.Role)
		if role == "" {
			role = session.Role(e.Type)
		}

		if role == session.RoleAssistant {
			if pending != nil && pending.Role == session.RoleAssistant {
				pending.Content = append(pending.Content, blocks...)
				if e.Message.Usage != nil {
					if pending.Usage == nil {
						pending.Usage = &session.Usage{}
					}
					pending.Usage.Add(usageFrom(e.Message.Usage))
				}
				continue
			}
			flush()
			pending = &session.Message{
				UUID: e.UUID, ParentUUID: e.ParentUUID,
				Role: role, Model: e.Message.Model, Timestamp: ts,
				Content: blocks,
			}
			if e.Message.Usage != nil {
				u := usageFrom(e.Message.Usage)
				pending.Usage = &u
			}
			continue
		}

		flush()
		messages = append(messages, session.Message{
			UUID: e.UUID, ParentUUID: e.ParentUUID,
			Role: role, Timestamp: ts, Content: blocks,
		})
	}
	flush()
	return messages
}

func usageFrom(u *rawUsage) session.Usage {
	return session.Usage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadInputTokens,
		CacheCreationTokens: u.CacheCreationInputTokens,
	}
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// mapContentBlocks maps a raw message's content (a plain string, or an array
// of typed blocks) into standardized content blocks.
func mapContentBlocks(content any) []session.ContentBlock {
	switch v := content.(type) {
	case string:
		return []session.ContentBlock{{
			Type: session.BlockText, Text: privacy.Strip(v), Format: session.FormatPlain,
		}}
	case []any:
		var blocks []session.ContentBlock
		for _, raw := range v {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			blocks = append(blocks, mapOneBlock(m))
		}
		return blocks
	default:
		return nil
	}
}

func mapOneBlock(m map[string]any) session.ContentBlock {
	t, _ := m["type"].(string)
	switch t {
	case "text":
		text, _ := m["text"].(string)
		return session.ContentBlock{Type: session.BlockText, Text: privacy.Strip(text), Format: session.FormatMarkdown}
	case "thinking":
		text, _ := m["thinking"].(string)
		return session.ContentBlock{Type: session.BlockThinking, Text: privacy.Strip(text)}
	case "tool_use":
		name, _ := m["name"].(string)
		id, _ := m["id"].(string)
		return session.ContentBlock{Type: session.BlockToolUse, Name: name, ToolUseID: id, Input: m["input"]}
	case "tool_result":
		id, _ := m["tool_use_id"].(string)
		isErr, _ := m["is_error"].(bool)
		return session.ContentBlock{
			Type: session.BlockToolResult, ToolUseID: id, IsError: isErr,
			Content: privacy.Strip(extractToolResultContent(m["content"])),
		}
	default:
		return session.ContentBlock{Type: session.BlockText, Text: fmt.Sprintf("%v", m)}
	}
}

// extractToolResultContent normalizes a tool_result's content field, which
// may be a plain string, nil, or an array of {type: "text", text: "..."}
// blocks (joined with newlines).
func extractToolResultContent(in any) string {
	switch v := in.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var lines []string
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				lines = append(lines, text)
			}
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ideMetaPrefixes are textual wrappers Claude Code injects around IDE
// context (open file, selection, diagnostics) that never count as a
// meaningful session title.
var ideMetaPrefixes = []string{"<ide_", "<system-reminder>", "<command-name>"}

// deriveTitle picks the first human-authored text from the first user
// message, skipping injected IDE/system metadata wrappers.
func deriveTitle(messages []session.Message) string {
	for _, m := range messages {
		if m.Role != session.RoleUser {
			continue
		}
		for _, b := range m.Content {
			if b.Type != session.BlockText {
				continue
			}
			text := strings.TrimSpace(b.Text)
			if text == "" {
				continue
			}
			skip := false
			for _, p := range ideMetaPrefixes {
				if strings.HasPrefix(text, p) {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			if idx := strings.IndexByte(text, '\n'); idx >= 0 {
				text = text[:idx]
			}
			return text
		}
	}
	return ""
}

// buildSession assembles a session.Session from the file's raw entries.
func buildSession(entries []rawEntry, fileBase string) *session.Session {
	messages := groupAndMapMessages(entries)

	sessionID := strings.TrimSuffix(fileBase, ".jsonl")
	var model, dir, branch string
	var createdAt time.Time
	var updatedAt *time.Time
	usage := &session.Usage{}
	hasUsage := false

	for _, e := range entries {
		if e.SessionID != "" {
			sessionID = e.SessionID
		}
		if e.Cwd != "" {
			dir = e.Cwd
		}
		if e.GitBranch != "" {
			branch = e.GitBranch
		}
		if e.Message != nil && e.Message.Model != "" {
			model = e.Message.Model
		}
	}

	for _, m := range messages {
		if m.Timestamp != nil {
			if createdAt.IsZero() || m.Timestamp.Before(createdAt) {
				createdAt = *m.Timestamp
			}
			if updatedAt == nil || m.Timestamp.After(*updatedAt) {
				ts := *m.Timestamp
				updatedAt = &ts
			}
		}
		if m.Usage != nil {
			usage.Add(*m.Usage)
			hasUsage = true
		}
	}

	sess := &session.Session{
		SessionID: sessionID,
		Agent:     "claude",
		Model:     model,
		Dir:       dir,
		GitBranch: branch,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Messages:  messages,
		Title:     deriveTitle(messages),
	}
	if hasUsage {
		sess.Usage = usage
	}
	sess.DiffStats = session.ComputeDiffStats(sess)
	return sess
}
