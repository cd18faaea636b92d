package observe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndFilesEditedBetween(t *testing.T) {
	l := New(t.TempDir())
	day := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return day }

	require.NoError(t, l.Record("proj", Observation{SessionID: "s1", Tool: "Edit", FilesTouched: []string{"a.go", "b.go"}}))
	require.NoError(t, l.Record("proj", Observation{SessionID: "s2", Tool: "Write", FilesTouched: []string{"b.go", "c.go"}}))

	files, err := l.FilesEditedBetween("proj", day, day)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go", "c.go"}, files)
}

func TestFilesEditedForSession(t *testing.T) {
	l := New(t.TempDir())
	day := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return day }

	require.NoError(t, l.Record("proj", Observation{SessionID: "s1", Tool: "Edit", FilesTouched: []string{"a.go"}}))
	require.NoError(t, l.Record("proj", Observation{SessionID: "s2", Tool: "Write", FilesTouched: []string{"b.go"}}))

	files, err := l.FilesEditedForSession("proj", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, files)
}

func TestFilesEditedBetweenMissingDayIsEmpty(t *testing.T) {
	l := New(t.TempDir())
	files, err := l.FilesEditedBetween("proj", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestHintsForSplitsTodayAndYesterday(t *testing.T) {
	l := New(t.TempDir())
	today := time.Date(2026, 7, 2, 10, 0, 0, 0, time.UTC)

	l.Now = func() time.Time { return today.AddDate(0, 0, -1) }
	require.NoError(t, l.Record("proj", Observation{SessionID: "s0", Tool: "Edit", FilesTouched: []string{"yesterday.go"}}))

	l.Now = func() time.Time { return today }
	require.NoError(t, l.Record("proj", Observation{SessionID: "s1", Tool: "Edit", FilesTouched: []string{"today.go"}}))

	hints, err := l.HintsFor("proj")
	require.NoError(t, err)
	assert.Equal(t, []string{"today.go"}, hints.FilesEditedToday)
	assert.Equal(t, []string{"yesterday.go"}, hints.FilesEditedYesterday)
}
