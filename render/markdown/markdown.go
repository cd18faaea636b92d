// Package markdown implements the Archival Renderer (spec §4.2): a
// deterministic, LLM-free projection of a standardized session into
// conversation.md + meta.json. Same input always produces byte-identical
// output, so re-ingesting an unchanged transcript is a no-op.
package markdown

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/session"
	"github.com/engram-hq/engram/store"
)

// Renderer emits conversation.md for a session, satisfying render.Renderer.
type Renderer struct{}

// Render writes the session's turns, in order, as plain markdown.
func (Renderer) Render(w io.Writer, s *session.Session) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Session %s\n\n", s.SessionID)
	if s.Project != "" {
		fmt.Fprintf(&buf, "- **Project:** %s\n", s.Project)
	}
	if s.Agent != "" {
		fmt.Fprintf(&buf, "- **Agent:** %s\n", s.Agent)
	}
	if s.Model != "" {
		fmt.Fprintf(&buf, "- **Model:** %s\n", s.Model)
	}
	if s.GitBranch != "" {
		fmt.Fprintf(&buf, "- **Branch:** %s\n", s.GitBranch)
	}
	buf.WriteString("\n---\n\n")

	turns := session.GroupTurns(s.Messages)
	for i, turn := range turns {
		renderTurn(&buf, turn, i+1)
	}

	for i, sub := range s.SubAgents {
		fmt.Fprintf(&buf, "## Sub-agent %d: %s\n\n", i+1, sub.SessionID)
		subTurns := session.GroupTurns(sub.Messages)
		for j, turn := range subTurns {
			renderTurn(&buf, turn, j+1)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func renderTurn(buf *bytes.Buffer, turn session.Turn, n int) {
	fmt.Fprintf(buf, "## Turn %d\n\n", n)

	if turn.UserMessage != nil {
		buf.WriteString("### User\n\n")
		for _, b := range turn.UserMessage.Content {
			renderBlock(buf, b)
		}
	}

	steps, response := turn.SplitContent()
	if len(steps) > 0 {
		buf.WriteString("### Assistant (steps)\n\n")
		consumed := make(map[string]bool)
		for _, b := range steps {
			if b.Type == session.BlockToolResult && consumed[b.ToolUseID] {
				continue
			}
			renderBlock(buf, b)
			if b.Type == session.BlockToolUse {
				consumed[b.ToolUseID] = true
			}
		}
	}
	if len(response) > 0 {
		buf.WriteString("### Assistant\n\n")
		for _, b := range response {
			renderBlock(buf, b)
		}
	}
	buf.WriteString("\n")
}

func renderBlock(buf *bytes.Buffer, b session.ContentBlock) {
	switch b.Type {
	case session.BlockText:
		buf.WriteString(strings.TrimRight(b.Text, "\n"))
		buf.WriteString("\n\n")
	case session.BlockThinking:
		buf.WriteString("> _thinking:_ ")
		buf.WriteString(strings.TrimRight(b.Text, "\n"))
		buf.WriteString("\n\n")
	case session.BlockToolUse:
		fmt.Fprintf(buf, "**Tool call:** `%s`\n\n", b.Name)
		if b.Input != nil {
			if raw, err := json.MarshalIndent(b.Input, "", "  "); err == nil {
				buf.WriteString("```json\n")
				buf.Write(raw)
				buf.WriteString("\n```\n\n")
			}
		}
	case session.BlockToolResult:
		label := "Result"
		if b.IsError {
			label = "Error"
		}
		fmt.Fprintf(buf, "**%s:**\n\n```\n%s\n```\n\n", label, strings.TrimRight(b.Content, "\n"))
	}
}

// Meta is the byte-stable identity/count summary written to meta.json.
type Meta struct {
	SessionID     string              `json:"session_id"`
	Project       string              `json:"project"`
	Agent         string              `json:"agent"`
	Model         string              `json:"model,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     *time.Time          `json:"updated_at,omitempty"`
	MessageCount  int                 `json:"message_count"`
	ToolCallCount int                 `json:"tool_call_count"`
	Usage         *session.Usage      `json:"usage,omitempty"`
	DiffStats     *session.DiffStats  `json:"diff_stats,omitempty"`
	Partial       bool                `json:"partial,omitempty"`
}

// BuildMeta derives the meta.json contents from a session.
func BuildMeta(s *session.Session) Meta {
	toolCalls := 0
	for _, m := range s.Messages {
		for _, b := range m.Content {
			if b.Type == session.BlockToolUse {
				toolCalls++
			}
		}
	}
	return Meta{
		SessionID:     s.SessionID,
		Project:       s.Project,
		Agent:         s.Agent,
		Model:         s.Model,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		MessageCount:  len(s.Messages),
		ToolCallCount: toolCalls,
		Usage:         s.Usage,
		DiffStats:     s.DiffStats,
		Partial:       s.Partial,
	}
}

// RenderMeta writes meta.json: stable field order via an explicit struct
// (not map[string]any), so output is byte-identical across runs.
func RenderMeta(w io.Writer, s *session.Session) error {
	meta := BuildMeta(s)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// WriteSession renders both conversation.md and meta.json into dir,
// atomically: each file is written to a temp file in the same directory and
// renamed into place, so a reader never observes a partially written file.
func WriteSession(dir string, s *session.Session) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &engramerr.StoreError{Op: "write_session", Project: s.Project, Err: err}
	}

	var convo bytes.Buffer
	if err := (Renderer{}).Render(&convo, s); err != nil {
		return &engramerr.StoreError{Op: "write_session", Project: s.Project, Err: err}
	}
	if err := store.AtomicWriteFile(filepath.Join(dir, "conversation.md"), convo.Bytes()); err != nil {
		return &engramerr.StoreError{Op: "write_session", Project: s.Project, Err: err}
	}

	var meta bytes.Buffer
	if err := RenderMeta(&meta, s); err != nil {
		return &engramerr.StoreError{Op: "write_session", Project: s.Project, Err: err}
	}
	if err := store.AtomicWriteFile(filepath.Join(dir, "meta.json"), meta.Bytes()); err != nil {
		return &engramerr.StoreError{Op: "write_session", Project: s.Project, Err: err}
	}
	return nil
}
