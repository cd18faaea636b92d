// Package session defines the Standardized Session Format: a normalized
// representation of an agent conversation transcript that every reader
// produces and every downstream stage (archival renderer, extraction
// engine, synthesizer) consumes.
package session

import "time"

// Session is the top-level container for a single conversation. It is the
// Transcript Parser's output (spec §4.1) and the unit the Ingestion
// Orchestrator tracks through its state machine (spec §4.6).
type Session struct {
	SessionID       string     `json:"session_id"`
	ParentSessionID string     `json:"parent_session_id,omitempty"`
	Project         string     `json:"project"`
	Agent           string     `json:"agent"`
	Author          string     `json:"author,omitempty"`
	Model           string     `json:"model,omitempty"`
	Dir             string     `json:"dir,omitempty"`
	GitBranch       string     `json:"git_branch,omitempty"`
	Title           string     `json:"title,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	Usage           *Usage     `json:"usage,omitempty"`
	DiffStats       *DiffStats `json:"diff_stats,omitempty"`
	Messages        []Message  `json:"messages"`

	// SubAgents holds nested sessions spawned by this one (e.g. Task-tool
	// sub-agent runs). A content block that spawned a sub-agent carries a
	// SubAgentRef pointing back at its SessionID.
	SubAgents []*Session `json:"sub_agents,omitempty"`

	// Partial is set by the parser when at least one line failed to decode
	// but the session as a whole still produced valid turns (spec §4.1).
	Partial bool `json:"partial,omitempty"`
}

// Usage holds token counters, at session level (aggregate) or per message.
type Usage struct {
	InputTokens         int `json:"input_tokens,omitempty"`
	OutputTokens        int `json:"output_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
}

// Add accumulates the counts from other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
}

// DiffStats summarizes file-level edit statistics across the session.
type DiffStats struct {
	Added   int `json:"added,omitempty"`
	Removed int `json:"removed,omitempty"`
	Changed int `json:"changed,omitempty"`
}

// Message is a single turn in the conversation.
type Message struct {
	UUID       string         `json:"uuid,omitempty"`
	ParentUUID string         `json:"parent_uuid,omitempty"`
	Role       Role           `json:"role"`
	Model      string         `json:"model,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Content    []ContentBlock `json:"content"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// Role enumerates who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SubAgentRef identifies a sub-agent spawned by a tool_use block.
type SubAgentRef struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name,omitempty"`
	AgentType string `json:"agent_type,omitempty"`
}

// ContentBlock is one piece of a message; Type determines which other
// fields are populated.
type ContentBlock struct {
	Type        BlockType    `json:"type"`
	Format      TextFormat   `json:"format,omitempty"`
	Text        string       `json:"text,omitempty"`
	ToolUseID   string       `json:"tool_use_id,omitempty"`
	Name        string       `json:"name,omitempty"`
	Input       any          `json:"input,omitempty"`
	Content     string       `json:"content,omitempty"`
	IsError     bool         `json:"is_error,omitempty"`
	SubAgentRef *SubAgentRef `json:"sub_agent_ref,omitempty"`
}

// TextFormat indicates how a text block should be rendered.
type TextFormat string

const (
	FormatMarkdown TextFormat = "markdown"
	FormatPlain    TextFormat = "plain"
)

// BlockType enumerates content block kinds.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// FirstTimestamp returns the earliest message timestamp, or the zero time if
// no message carries one.
func (s *Session) FirstTimestamp() time.Time {
	for _, m := range s.Messages {
		if m.Timestamp != nil {
			return *m.Timestamp
		}
	}
	return time.Time{}
}

// LastTimestamp returns the latest message timestamp, or the zero time if no
// message carries one.
func (s *Session) LastTimestamp() time.Time {
	var last time.Time
	for _, m := range s.Messages {
		if m.Timestamp != nil && m.Timestamp.After(last) {
			last = *m.Timestamp
		}
	}
	return last
}

// FilesTouched returns, in first-seen order, the distinct file paths named
// by the file_path input of any tool_use block in this session (Read as
// well as Write/Edit).
func (s *Session) FilesTouched() []string {
	seen := make(map[string]bool)
	var files []string
	for _, m := range s.Messages {
		for _, b := range m.Content {
			if b.Type != BlockToolUse {
				continue
			}
			in, ok := b.Input.(map[string]any)
			if !ok {
				continue
			}
			if fp, ok := in["file_path"].(string); ok && fp != "" && !seen[fp] {
				seen[fp] = true
				files = append(files, fp)
			}
		}
	}
	return files
}
