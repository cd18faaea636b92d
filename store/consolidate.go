package store

import (
	"fmt"
	"strings"
	"time"
)

// consolidate collapses a set of stale, no-TTL entries into one replacement
// block, used by sweep_stale --summarize rather than discarding them
// outright. The replacement is mechanical, not LLM-driven: one bullet per
// removed entry, carrying its original id and timestamp forward for
// traceability.
func consolidate(project string, category Category, stale []Entry, now time.Time) Entry {
	var b strings.Builder
	for _, e := range stale {
		fmt.Fprintf(&b, "- [%s, %s] %s\n", e.ID, e.Timestamp.Format(time.RFC3339), firstLine(e.Body))
	}
	return Entry{
		Project:   project,
		Category:  category,
		ID:        "consolidated-" + now.Format("20060102T150405Z0700"),
		Timestamp: now,
		Source:    SourceConsolidated,
		Body:      b.String(),
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
