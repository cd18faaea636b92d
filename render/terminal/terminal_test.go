package terminal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "first line", truncate("first line\nsecond line", 20))

	long := strings.Repeat("a", 50)
	got := truncate(long, 10)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), 10)

	// Multi-byte runes must not be split mid-character.
	multibyte := strings.Repeat("日本語", 10)
	got = truncate(multibyte, 10)
	for _, r := range got {
		assert.NotEqual(t, rune(0xFFFD), r, "truncation must not produce invalid runes")
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "1,000", FormatNumber(1000))
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "-42", FormatNumber(-42))
}

func TestIndexLine(t *testing.T) {
	line := IndexLine("A", "2026-07-29", "use postgres for storage", 80)
	assert.Contains(t, line, "A")
	assert.Contains(t, line, "2026-07-29")
}
