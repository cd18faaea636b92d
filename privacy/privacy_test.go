package privacy

import (
	"testing"

	"github.com/engram-hq/engram/session"
	"github.com/stretchr/testify/assert"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no private span", "hello world", "hello world"},
		{
			"single span",
			"before <private>password: hunter2</private> after",
			"before  after",
		},
		{
			"case insensitive",
			"x <PRIVATE>secret</PrIvAtE> y",
			"x  y",
		},
		{
			"multi-line span",
			"keep\n<private>\nsecret line 1\nsecret line 2\n</private>\nkeep2",
			"keep\n\nkeep2",
		},
		{
			"multiple spans",
			"<private>a</private>mid<private>b</private>",
			"mid",
		},
		{
			"unterminated span strips to end",
			"before <private>dangling secret with no close",
			"before ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Strip(tt.in)
			assert.Equal(t, tt.want, got)
			assert.False(t, Contains(got))
		})
	}
}

func TestStripperTransform(t *testing.T) {
	s := &session.Session{
		Messages: []session.Message{
			{
				Role: session.RoleUser,
				Content: []session.ContentBlock{
					{Type: session.BlockText, Text: "my key is <private>sk-secret</private> ok"},
				},
			},
			{
				Role: session.RoleUser,
				Content: []session.ContentBlock{
					{Type: session.BlockToolResult, Content: "output <private>hidden</private> done"},
				},
			},
		},
	}

	require := assert.New(t)
	err := (Stripper{}).Transform(s)
	require.NoError(err)
	require.Equal("my key is  ok", s.Messages[0].Content[0].Text)
	require.Equal("output  done", s.Messages[1].Content[0].Content)
}
