// Package retrieve implements the read-only query operations layered over
// the Knowledge Store, Archival Renderer output, and Embedding Index. No
// operation here changes a knowledge entry; the one write is Recall
// regenerating a missing context.md.
package retrieve

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/engram-hq/engram/analytics"
	"github.com/engram-hq/engram/embed"
	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/render/terminal"
	"github.com/engram-hq/engram/store"
	"github.com/engram-hq/engram/synth"
)

// Surface wires the Knowledge Store, Archival Renderer output, Synthesizer,
// Embedding Index, and LLM provider together into read-only query
// operations.
type Surface struct {
	Store      *store.Store
	ArchiveDir string
	Synth      *synth.Synthesizer
	Provider   provider.LLMProvider

	// Analytics is optional; when set, every operation below records one
	// event on completion.
	Analytics *analytics.Logger
}

func (s *Surface) recordAnalytics(eventType, project, query string, resultsCount int) {
	if s.Analytics == nil {
		return
	}
	_ = s.Analytics.Record(analytics.Event{
		EventType:    eventType,
		Project:      project,
		Query:        query,
		ResultsCount: resultsCount,
	})
}

func requireProject(project string) error {
	if project == "" {
		return &engramerr.InputError{Op: "retrieve", Reason: "project name is required"}
	}
	return nil
}

// Recall returns project's context.md, regenerating it from the current
// snapshot if it is absent: context.md is always safe to delete and
// regenerate.
func (s *Surface) Recall(ctx context.Context, project string) (string, error) {
	if err := requireProject(project); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Store.ContextPath(project))
	if err == nil {
		s.recordAnalytics("recall", project, "", 1)
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", &engramerr.StoreError{Op: "recall", Project: project, Err: err}
	}
	if s.Synth == nil {
		return "", &engramerr.StateError{Reason: "context.md is missing and no synthesizer is configured to regenerate it"}
	}

	snap, err := liveSnapshot(s.Store, project)
	if err != nil {
		return "", err
	}
	text, err := s.Synth.Synthesize(ctx, snap)
	if err != nil {
		return "", err
	}
	if err := s.Store.WriteContext(project, text); err != nil {
		return "", err
	}
	s.recordAnalytics("recall", project, "", 1)
	return text, nil
}

// RecallSessions returns only the blocks (across all categories) whose id
// is in sessionIDs, for progressive fetch after a caller has narrowed in
// via index/timeline.
func (s *Surface) RecallSessions(project string, sessionIDs []string) ([]store.Entry, error) {
	if err := requireProject(project); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}

	snap, err := liveSnapshot(s.Store, project)
	if err != nil {
		return nil, err
	}
	var out []store.Entry
	for _, cat := range store.Categories {
		for _, e := range snap[cat] {
			if want[e.ID] {
				out = append(out, e)
			}
		}
	}
	s.recordAnalytics("recall_sessions", project, "", len(out))
	return out, nil
}

// Lookup performs substring search over one project's blocks, ranked by a
// simple relevance score of occurrence count plus recency.
func (s *Surface) Lookup(project, query string) ([]store.Entry, error) {
	if err := requireProject(project); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, &engramerr.InputError{Op: "lookup", Reason: "query is required"}
	}
	lowerQuery := strings.ToLower(query)

	snap, err := liveSnapshot(s.Store, project)
	if err != nil {
		return nil, err
	}

	type scored struct {
		entry store.Entry
		score float64
	}
	var matches []scored
	for _, cat := range store.Categories {
		for _, e := range snap[cat] {
			count := strings.Count(strings.ToLower(e.Body), lowerQuery)
			if count == 0 {
				continue
			}
			matches = append(matches, scored{entry: e, score: relevance(count, e.Timestamp)})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]store.Entry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	s.recordAnalytics("lookup", project, query, len(out))
	return out, nil
}

// relevance combines hit count with recency: each hit is worth 1000 and
// each hour of age costs 1, so more recent entries rank higher among
// equal-count matches, and one extra hit outweighs up to 1000 hours (about
// six weeks) of age difference.
func relevance(count int, ts time.Time) float64 {
	age := time.Since(ts).Hours()
	return float64(count)*1000 - age
}

// Hit is one search result: the block it was found in, plus a short
// surrounding snippet.
type Hit struct {
	Project  string
	Category store.Category
	ID       string
	Snippet  string
}

// Search runs a regex search across all non-expired block bodies in
// project (or every project the store knows about, if project is empty),
// optionally also searching archived conversation.md text when
// knowledgeOnly is false.
func (s *Surface) Search(query, project string, knowledgeOnly bool) ([]Hit, error) {
	re, err := regexp.Compile(query)
	if err != nil {
		return nil, &engramerr.InputError{Op: "search", Reason: "invalid regex: " + err.Error()}
	}

	projects, err := s.projectList(project)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, proj := range projects {
		snap, err := liveSnapshot(s.Store, proj)
		if err != nil {
			return nil, err
		}
		for _, cat := range store.Categories {
			for _, e := range snap[cat] {
				if loc := re.FindStringIndex(e.Body); loc != nil {
					hits = append(hits, Hit{Project: proj, Category: cat, ID: e.ID, Snippet: snippet(e.Body, loc)})
				}
			}
		}
		if !knowledgeOnly {
			archiveHits, err := s.searchArchive(re, proj)
			if err != nil {
				return nil, err
			}
			hits = append(hits, archiveHits...)
		}
	}
	s.recordAnalytics("search", project, query, len(hits))
	return hits, nil
}

func (s *Surface) searchArchive(re *regexp.Regexp, project string) ([]Hit, error) {
	dir := filepath.Join(s.ArchiveDir, project)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &engramerr.StoreError{Op: "search_archive", Project: project, Err: err}
	}

	var hits []Hit
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), "conversation.md")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, &engramerr.StoreError{Op: "search_archive", Project: project, Err: err}
		}
		if loc := re.FindIndex(data); loc != nil {
			hits = append(hits, Hit{Project: project, Category: "archive", ID: entry.Name(), Snippet: snippet(string(data), loc)})
		}
	}
	return hits, nil
}

func (s *Surface) projectList(project string) ([]string, error) {
	if project != "" {
		return []string{project}, nil
	}
	root := filepath.Join(s.Store.Root, "knowledge")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &engramerr.StoreError{Op: "search", Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

const snippetRadius = 60

func snippet(body string, loc []int) string {
	start := loc[0] - snippetRadius
	if start < 0 {
		start = 0
	}
	end := loc[1] + snippetRadius
	if end > len(body) {
		end = len(body)
	}
	return terminal.Truncate(body[start:end], 160)
}

// SearchSemantic embeds query and returns entries whose chunks score at
// or above threshold against project's embedding index, most similar
// first, at most topK.
func (s *Surface) SearchSemantic(ctx context.Context, project, query string, topK int, threshold float64) ([]embed.Hit, error) {
	if err := requireProject(project); err != nil {
		return nil, err
	}
	idx, err := embed.Load(s.Store.Root, project)
	if err != nil {
		return nil, err
	}
	hits, err := embed.Search(ctx, s.Provider, idx, query, topK, threshold)
	if err != nil {
		return nil, err
	}
	s.recordAnalytics("search_semantic", project, query, len(hits))
	return hits, nil
}

// Answer is ask's result: a generated answer plus the citations it was
// grounded on, in `[project:category:id]` form.
type Answer struct {
	Text      string
	Citations []string
	Hits      []embed.Hit
}

// Ask performs retrieval-augmented generation: semantic search for
// top-k chunks, a prompt assembled with bracketed citations, and an LLM
// completion grounded on those citations.
func (s *Surface) Ask(ctx context.Context, project, question string) (*Answer, error) {
	if err := requireProject(project); err != nil {
		return nil, err
	}
	hits, err := s.SearchSemantic(ctx, project, question, 5, 0.2)
	if err != nil {
		return nil, err
	}

	var prompt strings.Builder
	var citations []string
	prompt.WriteString("Answer the question using only the excerpts below, citing each fact with its bracketed tag.\n\n")
	for _, h := range hits {
		tag := "[" + project + ":" + strings.Replace(h.Chunk.SourceFile, "/", ":", 1) + "]"
		citations = append(citations, tag)
		prompt.WriteString(tag + " " + h.Chunk.Text + "\n\n")
	}
	prompt.WriteString("Question: " + question + "\n")

	text, err := s.Provider.Complete(ctx, prompt.String(), provider.CompleteOptions{MaxTokens: 1024, Temperature: 0.2})
	if err != nil {
		return nil, err
	}
	s.recordAnalytics("ask", project, question, len(hits))
	return &Answer{Text: text, Citations: citations, Hits: hits}, nil
}

// IndexLine is one compact-manifest entry returned by Index.
type IndexLine struct {
	Category store.Category
	Line     string
}

// Index returns project's compact manifest: one line per entry, per
// category, in the `id (date) — "first ~80 chars"` shape, aiming for about
// 100 tokens for the whole response.
func (s *Surface) Index(project string) ([]IndexLine, error) {
	if err := requireProject(project); err != nil {
		return nil, err
	}
	snap, err := liveSnapshot(s.Store, project)
	if err != nil {
		return nil, err
	}

	width := terminal.Width()
	var lines []IndexLine
	for _, cat := range store.Categories {
		for _, e := range snap[cat] {
			line := terminal.IndexLine(e.ID, e.Timestamp.Format("2006-01-02"), e.Body, width)
			lines = append(lines, IndexLine{Category: cat, Line: line})
		}
	}
	s.recordAnalytics("index", project, "", len(lines))
	return lines, nil
}

// Timeline returns up to ±window entries, flattened across every category
// and sorted by timestamp, centered on the first entry whose id matches
// sessionID.
func (s *Surface) Timeline(project, sessionID string, window int) ([]string, error) {
	if err := requireProject(project); err != nil {
		return nil, err
	}
	snap, err := liveSnapshot(s.Store, project)
	if err != nil {
		return nil, err
	}

	type tagged struct {
		entry    store.Entry
		category store.Category
	}
	var all []tagged
	for _, cat := range store.Categories {
		for _, e := range snap[cat] {
			all = append(all, tagged{entry: e, category: cat})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].entry.Timestamp.Before(all[j].entry.Timestamp) })

	pivot := -1
	for i, t := range all {
		if t.entry.ID == sessionID {
			pivot = i
			break
		}
	}
	if pivot < 0 {
		return nil, &engramerr.InputError{Op: "timeline", Reason: "no such session id: " + sessionID}
	}

	start := pivot - window
	if start < 0 {
		start = 0
	}
	end := pivot + window + 1
	if end > len(all) {
		end = len(all)
	}

	width := terminal.Width()
	var lines []string
	for i := start; i < end; i++ {
		t := all[i]
		id := string(t.category) + ":" + t.entry.ID
		lines = append(lines, terminal.TimelineLine(id, t.entry.Timestamp.Format("2006-01-02"), t.entry.Body, i == pivot, width))
	}
	s.recordAnalytics("timeline", project, sessionID, len(lines))
	return lines, nil
}

// liveSnapshot returns project's snapshot with expired entries excluded:
// expired entries are excluded from all retrieval unless an operation
// explicitly requests them.
func liveSnapshot(st *store.Store, project string) (map[store.Category][]store.Entry, error) {
	all, err := st.Snapshot(project)
	if err != nil {
		return nil, err
	}
	live := make(map[store.Category][]store.Entry, len(all))
	for cat, entries := range all {
		var kept []store.Entry
		for _, e := range entries {
			if !st.IsExpired(e) {
				kept = append(kept, e)
			}
		}
		live[cat] = kept
	}
	return live, nil
}
