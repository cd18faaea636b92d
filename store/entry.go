package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/engram-hq/engram/engramerr"
)

// Category is one of the seven fixed knowledge categories.
type Category string

const (
	CategoryDecisions   Category = "decisions"
	CategorySolutions   Category = "solutions"
	CategoryPatterns    Category = "patterns"
	CategoryBugs        Category = "bugs"
	CategoryInsights    Category = "insights"
	CategoryQuestions   Category = "questions"
	CategoryPreferences Category = "preferences"
)

// Categories lists every valid category, in the fixed order category files
// are enumerated in (index, sweep, snapshot).
var Categories = []Category{
	CategoryDecisions, CategorySolutions, CategoryPatterns, CategoryBugs,
	CategoryInsights, CategoryQuestions, CategoryPreferences,
}

// Valid reports whether c is one of the seven fixed categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Source records where an entry's body came from.
type Source string

const (
	SourceExtracted    Source = "extracted-from-session"
	SourceManual       Source = "manual"
	SourceReflect      Source = "reflect"
	SourceConsolidated Source = "consolidated"
	SourcePack         Source = "pack"
)

// TTL is either the literal "never" or a bounded duration. Raw preserves the
// exact literal so that parse→emit round-trips byte-identical.
type TTL struct {
	Raw      string
	Never    bool
	Duration time.Duration
}

var ttlPattern = regexp.MustCompile(`^([0-9]+)([mhdw])$`)

// ParseTTL parses the duration grammar: an integer followed by m|h|d|w, or
// the literal "never".
func ParseTTL(s string) (*TTL, error) {
	if s == "" {
		return nil, nil
	}
	if s == "never" {
		return &TTL{Raw: s, Never: true}, nil
	}
	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, &engramerr.InputError{Op: "parse_ttl", Reason: "invalid ttl: " + s}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &engramerr.InputError{Op: "parse_ttl", Reason: "invalid ttl: " + s}
	}
	var unit time.Duration
	switch m[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return &TTL{Raw: s, Duration: time.Duration(n) * unit}, nil
}

// TTLFor constructs a TTL of n units (one of 'm', 'h', 'd', 'w').
func TTLFor(n int, unit byte) *TTL {
	ttl, err := ParseTTL(fmt.Sprintf("%d%c", n, unit))
	if err != nil {
		panic(err) // unit is caller-controlled and always one of m/h/d/w
	}
	return ttl
}

// TTLNever returns the "never expire" TTL pin.
func TTLNever() *TTL { return &TTL{Raw: "never", Never: true} }

// Entry is the atomic unit of stored knowledge.
type Entry struct {
	Project   string
	Category  Category
	ID        string
	Timestamp time.Time
	TTL       *TTL // nil: no TTL
	Body      string
	Source    Source
}

// Expired reports whether e has a bounded TTL that has elapsed by now.
// Entries with no TTL, or an explicit "never" TTL, are never expired.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL == nil || e.TTL.Never {
		return false
	}
	return now.After(e.Timestamp.Add(e.TTL.Duration))
}

// headerPattern matches the bit-exact session-block header grammar:
// "## Session: <id> (<RFC3339 timestamp>)[ [ttl:<duration>]]". The id
// excludes whitespace/parens and the timestamp requires a full RFC3339
// shape, so an ordinary body line that merely contains "## Session:" text
// does not collide with a real header.
var headerPattern = regexp.MustCompile(
	`^## Session: ([^\s()]+) \(([0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}(?:\.[0-9]+)?(?:Z|[+-][0-9]{2}:[0-9]{2}))\)(?: \[ttl:([0-9]+[mhdw]|never)\])?$`,
)

// FormatHeader renders e's header line.
func FormatHeader(e Entry) string {
	h := fmt.Sprintf("## Session: %s (%s)", e.ID, e.Timestamp.Format(time.RFC3339))
	if e.TTL != nil {
		h += fmt.Sprintf(" [ttl:%s]", e.TTL.Raw)
	}
	return h
}

// FormatEntry renders e as a header line followed by its body.
func FormatEntry(e Entry) string {
	var b strings.Builder
	b.WriteString(FormatHeader(e))
	b.WriteString("\n")
	body := strings.TrimRight(e.Body, "\n")
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String()
}

// ParseCategoryBody parses a category file's full text into an ordered list
// of entries. A missing file is represented by an empty byte slice, which
// parses to an empty, non-error result.
func ParseCategoryBody(project string, category Category, text string) ([]Entry, error) {
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")

	var entries []Entry
	var current *Entry
	var body []string

	flush := func() {
		if current != nil {
			current.Body = strings.Join(body, "\n")
			entries = append(entries, *current)
		}
		current = nil
		body = nil
	}

	for _, line := range lines {
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			if current != nil {
				body = append(body, line)
			}
			continue
		}
		flush()
		ts, err := time.Parse(time.RFC3339, m[2])
		if err != nil {
			return entries, &engramerr.ParseError{Path: project + "/" + string(category), Reason: "bad header timestamp: " + line}
		}
		var ttl *TTL
		if m[3] != "" {
			ttl, err = ParseTTL(m[3])
			if err != nil {
				return entries, err
			}
		}
		current = &Entry{
			Project: project, Category: category, ID: m[1],
			Timestamp: ts, TTL: ttl,
		}
	}
	flush()
	return entries, nil
}

// FormatCategoryBody renders entries back into a category file's full text,
// preserving order.
func FormatCategoryBody(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(FormatEntry(e))
	}
	return b.String()
}
