// Package mcp implements a single long-lived process reading
// JSON-RPC-shaped requests from standard input, one per line, and writing
// one response per line. The wire contract is a deliberately bare subset of
// full MCP — id/method/params/result/error only, no capability negotiation
// handshake — so the transport loop is hand-rolled against bufio.Scanner
// rather than mcp-go's server.ServeStdio: a malformed line must never
// terminate the server, a guarantee easiest to hold with direct control
// over the read loop. mcp-go's own request/result shapes
// (mcp.CallToolRequest's argument map, mcp.CallToolResult, NewToolResultText/
// NewToolResultError) are reused for every tool's argument and result
// envelope.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/engram-hq/engram/analytics"
	"github.com/engram-hq/engram/embed"
	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/extract"
	"github.com/engram-hq/engram/observe"
	"github.com/engram-hq/engram/privacy"
	"github.com/engram-hq/engram/retrieve"
	"github.com/engram-hq/engram/session"
	"github.com/engram-hq/engram/store"
	"github.com/engram-hq/engram/synth"
)

// Request is one line of standard input: a bare id/method/params envelope,
// not the full MCP initialize/capabilities handshake.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one line of standard output, always carrying the request's id
// and exactly one of Result or Error.
type Response struct {
	ID     json.RawMessage       `json:"id"`
	Result *mcpgo.CallToolResult `json:"result,omitempty"`
	Error  *RPCError             `json:"error,omitempty"`
}

// RPCError is a structured failure: empty or malformed fields produce one
// of these, never a panic.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// callParams is the params shape for method "tools/call".
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// resourceParams is the params shape for method "resources/read".
type resourceParams struct {
	URI string `json:"uri"`
}

// Server wires every package the tool/resource set dispatches into
// together. Write tools call through to Store methods (WriteBlock,
// DeleteBlock, SweepStale), each of which already serializes itself on the
// project's advisory lock — handlers never take a second, outer lock, which
// would deadlock against the file-sentinel lock's non-reentrant O_EXCL
// acquisition (store/lock.go).
type Server struct {
	Surface   *retrieve.Surface
	Store     *store.Store
	Extractor *extract.Extractor
	Synth     *synth.Synthesizer
	Analytics *analytics.Logger
	Observe   *observe.Log

	// Concurrency bounds how many in-flight tool calls the read loop
	// dispatches to the pool at once. Zero means 8.
	Concurrency int

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) concurrency() int {
	if s.Concurrency <= 0 {
		return 8
	}
	return s.Concurrency
}

// Serve reads requests from in, one JSON object per line, dispatches each
// to the worker pool, and writes responses to out as they complete —
// sequenced in arrival order, not request order, each tagged by id. Serve
// returns when in reaches EOF and every dispatched call has completed. ctx
// is passed to every handler and its error is returned at the end; a
// canceled ctx does not stop the read loop before EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var outMu sync.Mutex
	writeResponse := func(resp Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			data, _ = json.Marshal(Response{ID: resp.ID, Error: &RPCError{Code: 500, Message: "failed to encode response"}})
		}
		line := privacy.Strip(string(data))
		outMu.Lock()
		fmt.Fprintln(out, line)
		outMu.Unlock()
	}

	sem := make(chan struct{}, s.concurrency())
	var wg sync.WaitGroup

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		lineCopy := append([]byte(nil), line...)

		var req Request
		if err := json.Unmarshal(lineCopy, &req); err != nil {
			writeResponse(Response{ID: extractID(lineCopy), Error: &RPCError{Code: 400, Message: "malformed request: " + err.Error()}})
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(req Request) {
			defer wg.Done()
			defer func() { <-sem }()
			writeResponse(s.dispatch(ctx, req))
		}(req)
	}

	wg.Wait()
	if err := scanner.Err(); err != nil {
		return &engramerr.StateError{Reason: "mcp read loop: " + err.Error()}
	}
	return ctx.Err()
}

// extractID best-effort recovers the id field from a line that failed to
// decode as a whole Request, so even a malformed-but-id-bearing line gets a
// correctly tagged error response.
func extractID(line []byte) json.RawMessage {
	var partial struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &partial); err != nil {
		return json.RawMessage("null")
	}
	if len(partial.ID) == 0 {
		return json.RawMessage("null")
	}
	return partial.ID
}

func errorResult(format string, args ...any) *mcpgo.CallToolResult {
	return mcpgo.NewToolResultError(fmt.Sprintf(format, args...))
}

// dispatch runs one request to completion. Every tool call and resource
// read that reaches its handler records one analytics event, tagged with
// the tool name, whether the handler succeeds or fails; an unknown method,
// an unknown tool or invalid params record none.
func (s *Server) dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{ID: req.ID, Error: &RPCError{Code: 500, Message: fmt.Sprintf("internal error: %v", r)}}
		}
	}()

	switch req.Method {
	case "tools/call":
		return s.dispatchTool(ctx, req)
	case "resources/read":
		return s.dispatchResource(ctx, req)
	default:
		return Response{ID: req.ID, Error: &RPCError{Code: 404, Message: "unknown method: " + req.Method}}
	}
}

type toolHandler func(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error)

var readTools = map[string]toolHandler{
	"recall":          toolRecall,
	"search":          toolSearch,
	"lookup":          toolLookup,
	"projects":        toolProjects,
	"analytics":       toolAnalytics,
	"search_semantic": toolSearchSemantic,
	"observations":    toolObservations,
	"status":          toolStatus,
	"index":           toolIndex,
	"timeline":        toolTimeline,
}

var writeTools = map[string]toolHandler{
	"reflect":      toolReflect,
	"add":          toolAdd,
	"update":       toolUpdate,
	"forget":       toolForget,
	"forget_stale": toolForgetStale,
	"synthesize":   toolSynthesize,
}

func (s *Server) dispatchTool(ctx context.Context, req Request) Response {
	var p callParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return Response{ID: req.ID, Error: &RPCError{Code: 400, Message: "invalid params: " + err.Error()}}
	}
	if p.Name == "" {
		return Response{ID: req.ID, Error: &RPCError{Code: 400, Message: "tool name is required"}}
	}
	if p.Arguments == nil {
		p.Arguments = map[string]any{}
	}

	handler, ok := readTools[p.Name]
	if !ok {
		handler, ok = writeTools[p.Name]
	}
	if !ok {
		return Response{ID: req.ID, Error: &RPCError{Code: 404, Message: "unknown tool: " + p.Name}}
	}

	result, count, err := handler(ctx, s, p.Arguments)
	s.recordAnalytics(p.Name, stringArg(p.Arguments, "project"), stringArg(p.Arguments, "query"), count)
	if err != nil {
		return Response{ID: req.ID, Result: errorResult("%s", err.Error())}
	}
	return Response{ID: req.ID, Result: result}
}

func (s *Server) dispatchResource(ctx context.Context, req Request) Response {
	var p resourceParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return Response{ID: req.ID, Error: &RPCError{Code: 400, Message: "invalid params: " + err.Error()}}
	}
	project, err := parseContextURI(p.URI)
	if err != nil {
		return Response{ID: req.ID, Error: &RPCError{Code: 400, Message: err.Error()}}
	}

	text, err := s.Surface.Recall(ctx, project)
	s.recordAnalytics("resources/read", project, "", 0)
	if err != nil {
		return Response{ID: req.ID, Result: errorResult("%s", err.Error())}
	}
	return Response{ID: req.ID, Result: mcpgo.NewToolResultText(privacy.Strip(text))}
}

const contextURIPrefix = "memory://"
const contextURISuffix = "/context"

func parseContextURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, contextURIPrefix) || !strings.HasSuffix(uri, contextURISuffix) {
		return "", fmt.Errorf("unsupported resource uri: %s", uri)
	}
	project := strings.TrimSuffix(strings.TrimPrefix(uri, contextURIPrefix), contextURISuffix)
	if project == "" {
		return "", fmt.Errorf("resource uri is missing a project: %s", uri)
	}
	return project, nil
}

func (s *Server) recordAnalytics(tool, project, query string, resultsCount int) {
	if s.Analytics == nil {
		return
	}
	_ = s.Analytics.Record(analytics.Event{
		Timestamp:    s.now(),
		EventType:    tool,
		Project:      project,
		Query:        query,
		ResultsCount: resultsCount,
	})
}

// --- argument helpers, grounded on other_examples' intArg/boolArg idiom ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func floatArg(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func requireProjectArg(args map[string]any) (string, error) {
	project := stringArg(args, "project")
	if project == "" {
		return "", &engramerr.InputError{Op: "mcp", Reason: "project is required"}
	}
	return project, nil
}

// --- read tools ---

func toolRecall(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	if ids := stringSliceArg(args, "session_ids"); len(ids) > 0 {
		entries, err := s.Surface.RecallSessions(project, ids)
		if err != nil {
			return nil, 0, err
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "## %s/%s (%s)\n%s\n\n", e.Category, e.ID, e.Timestamp.Format(time.RFC3339), e.Body)
		}
		return mcpgo.NewToolResultText(privacy.Strip(b.String())), len(entries), nil
	}

	text, err := s.Surface.Recall(ctx, project)
	if err != nil {
		return nil, 0, err
	}
	return mcpgo.NewToolResultText(privacy.Strip(text)), 1, nil
}

func toolSearch(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, 0, &engramerr.InputError{Op: "search", Reason: "query is required"}
	}
	project := stringArg(args, "project")
	knowledgeOnly := boolArg(args, "knowledge_only", false)

	hits, err := s.Surface.Search(query, project, knowledgeOnly)
	if err != nil {
		return nil, 0, err
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "[%s:%s:%s] %s\n", h.Project, h.Category, h.ID, h.Snippet)
	}
	return mcpgo.NewToolResultText(privacy.Strip(b.String())), len(hits), nil
}

func toolLookup(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	query := stringArg(args, "query")
	entries, err := s.Surface.Lookup(project, query)
	if err != nil {
		return nil, 0, err
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s:%s] %s\n", e.Category, e.ID, truncate(e.Body, 160))
	}
	return mcpgo.NewToolResultText(privacy.Strip(b.String())), len(entries), nil
}

func toolProjects(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	names, err := listProjects(s.Store.Root)
	if err != nil {
		return nil, 0, err
	}
	return mcpgo.NewToolResultText(strings.Join(names, "\n")), len(names), nil
}

func toolAnalytics(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	if s.Analytics == nil {
		return nil, 0, &engramerr.StateError{Reason: "analytics logger is not configured"}
	}
	since := timeArg(args, "since", s.now().AddDate(0, 0, -7))
	until := timeArg(args, "until", s.now())
	events, err := s.Analytics.Summary(since, until)
	if err != nil {
		return nil, 0, err
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, 0, &engramerr.StateError{Reason: "failed to encode analytics summary: " + err.Error()}
	}
	return mcpgo.NewToolResultText(string(data)), len(events), nil
}

func toolSearchSemantic(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	query := stringArg(args, "query")
	if query == "" {
		return nil, 0, &engramerr.InputError{Op: "search_semantic", Reason: "query is required"}
	}
	topK := intArg(args, "top_k", 5)
	threshold := floatArg(args, "threshold", 0.2)

	hits, err := s.Surface.SearchSemantic(ctx, project, query, topK, threshold)
	if err != nil {
		return nil, 0, err
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "[%.3f] %s: %s\n", h.Score, h.Chunk.SourceFile, truncate(h.Chunk.Text, 160))
	}
	return mcpgo.NewToolResultText(privacy.Strip(b.String())), len(hits), nil
}

func toolObservations(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	if s.Observe == nil {
		return nil, 0, &engramerr.StateError{Reason: "observation log is not configured"}
	}
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	since := timeArg(args, "since", s.now().AddDate(0, 0, -1))
	until := timeArg(args, "until", s.now())
	obs, err := s.Observe.ReadRange(project, since, until)
	if err != nil {
		return nil, 0, err
	}
	data, err := json.Marshal(obs)
	if err != nil {
		return nil, 0, &engramerr.StateError{Reason: "failed to encode observations: " + err.Error()}
	}
	return mcpgo.NewToolResultText(string(data)), len(obs), nil
}

func toolStatus(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project := stringArg(args, "project")
	projects := []string{project}
	if project == "" {
		names, err := listProjects(s.Store.Root)
		if err != nil {
			return nil, 0, err
		}
		projects = names
	}

	var b strings.Builder
	for _, proj := range projects {
		snap, err := s.Store.Snapshot(proj)
		if err != nil {
			return nil, 0, err
		}
		total := 0
		for _, entries := range snap {
			total += len(entries)
		}
		_, contextErr := os.Stat(s.Store.ContextPath(proj))
		idx, err := embed.Load(s.Store.Root, proj)
		if err != nil {
			return nil, 0, err
		}
		fmt.Fprintf(&b, "%s: %d entries, context.md present=%t, embedding index version=%d (%d chunks)\n",
			proj, total, contextErr == nil, idx.Version, len(idx.Chunks))
	}
	return mcpgo.NewToolResultText(b.String()), len(projects), nil
}

func toolIndex(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	lines, err := s.Surface.Index(project)
	if err != nil {
		return nil, 0, err
	}
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s: %s\n", l.Category, l.Line)
	}
	return mcpgo.NewToolResultText(privacy.Strip(b.String())), len(lines), nil
}

func toolTimeline(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	sessionID := stringArg(args, "session_id")
	if sessionID == "" {
		return nil, 0, &engramerr.InputError{Op: "timeline", Reason: "session_id is required"}
	}
	window := intArg(args, "window", 3)
	lines, err := s.Surface.Timeline(project, sessionID, window)
	if err != nil {
		return nil, 0, err
	}
	return mcpgo.NewToolResultText(privacy.Strip(strings.Join(lines, "\n"))), len(lines), nil
}

// --- write tools ---

func toolReflect(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	text := stringArg(args, "text")
	if text == "" {
		return nil, 0, &engramerr.InputError{Op: "reflect", Reason: "text is required"}
	}
	if s.Extractor == nil {
		return nil, 0, &engramerr.StateError{Reason: "extraction engine is not configured"}
	}

	now := s.now()
	fake := &session.Session{
		SessionID: "reflect-" + uuid.NewString(),
		Project:   project,
		CreatedAt: now,
		Messages: []session.Message{
			{Role: session.RoleUser, Timestamp: &now, Content: []session.ContentBlock{{Type: session.BlockText, Text: text}}},
		},
	}

	candidates, err := s.Extractor.Extract(ctx, fake, extract.Hints{})
	if err != nil {
		return nil, 0, err
	}
	for _, c := range candidates {
		entry := store.Entry{
			Project:  project,
			Category: c.Category,
			ID:       uuid.NewString(),
			Body:     c.Body,
			Source:   store.SourceReflect,
		}
		if err := s.Store.WriteBlock(entry); err != nil {
			return nil, 0, err
		}
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("stored %d entries", len(candidates))), len(candidates), nil
}

func toolAdd(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	category := store.Category(stringArg(args, "category"))
	if !category.Valid() {
		return nil, 0, &engramerr.InputError{Op: "add", Reason: "category is invalid: " + string(category)}
	}
	body := stringArg(args, "body")
	if body == "" {
		return nil, 0, &engramerr.InputError{Op: "add", Reason: "body is required"}
	}
	id := stringArg(args, "id")
	if id == "" {
		id = uuid.NewString()
	}
	ttl, err := parseTTLArg(args)
	if err != nil {
		return nil, 0, err
	}

	entry := store.Entry{Project: project, Category: category, ID: id, Body: body, TTL: ttl, Source: store.SourceManual}
	if err := s.Store.WriteBlock(entry); err != nil {
		return nil, 0, err
	}
	return mcpgo.NewToolResultText("added " + id), 1, nil
}

func toolUpdate(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	category := store.Category(stringArg(args, "category"))
	if !category.Valid() {
		return nil, 0, &engramerr.InputError{Op: "update", Reason: "category is invalid: " + string(category)}
	}
	id := stringArg(args, "id")
	if id == "" {
		return nil, 0, &engramerr.InputError{Op: "update", Reason: "id is required"}
	}
	body := stringArg(args, "body")
	if body == "" {
		return nil, 0, &engramerr.InputError{Op: "update", Reason: "body is required"}
	}

	existing, err := s.Store.ReadBlocks(project, category)
	if err != nil {
		return nil, 0, err
	}
	entry := store.Entry{Project: project, Category: category, ID: id, Body: body, Source: store.SourceManual}
	for _, e := range existing {
		if e.ID == id {
			entry.TTL = e.TTL
			entry.Source = e.Source
			break
		}
	}
	if ttl, err := parseTTLArg(args); err != nil {
		return nil, 0, err
	} else if ttl != nil {
		entry.TTL = ttl
	}

	if err := s.Store.WriteBlock(entry); err != nil {
		return nil, 0, err
	}
	return mcpgo.NewToolResultText("updated " + id), 1, nil
}

func toolForget(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	category := store.Category(stringArg(args, "category"))
	if !category.Valid() {
		return nil, 0, &engramerr.InputError{Op: "forget", Reason: "category is invalid: " + string(category)}
	}
	id := stringArg(args, "id")
	if id == "" {
		return nil, 0, &engramerr.InputError{Op: "forget", Reason: "id is required"}
	}
	if err := s.Store.DeleteBlock(project, category, id); err != nil {
		return nil, 0, err
	}
	return mcpgo.NewToolResultText("forgot " + id), 1, nil
}

func toolForgetStale(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	olderThanArg := stringArg(args, "older_than")
	if olderThanArg == "" {
		olderThanArg = "30d"
	}
	ttl, err := store.ParseTTL(olderThanArg)
	if err != nil {
		return nil, 0, err
	}
	summarize := boolArg(args, "summarize", false)

	counts, err := s.Store.SweepStale(project, ttl.Duration, summarize)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("dropped %d stale entries", total)), total, nil
}

func toolSynthesize(ctx context.Context, s *Server, args map[string]any) (*mcpgo.CallToolResult, int, error) {
	project, err := requireProjectArg(args)
	if err != nil {
		return nil, 0, err
	}
	if s.Synth == nil {
		return nil, 0, &engramerr.StateError{Reason: "synthesizer is not configured"}
	}

	all, err := s.Store.Snapshot(project)
	if err != nil {
		return nil, 0, err
	}
	live := map[store.Category][]store.Entry{}
	for cat, entries := range all {
		for _, e := range entries {
			if !s.Store.IsExpired(e) {
				live[cat] = append(live[cat], e)
			}
		}
	}

	text, err := s.Synth.Synthesize(ctx, live)
	if err != nil {
		return nil, 0, err
	}
	if err := s.Store.WriteContext(project, text); err != nil {
		return nil, 0, err
	}
	return mcpgo.NewToolResultText(privacy.Strip(text)), 1, nil
}

func parseTTLArg(args map[string]any) (*store.TTL, error) {
	raw := stringArg(args, "ttl")
	if raw == "" {
		return nil, nil
	}
	return store.ParseTTL(raw)
}

func timeArg(args map[string]any, key string, def time.Time) time.Time {
	raw := stringArg(args, key)
	if raw == "" {
		return def
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return def
	}
	return t
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func listProjects(root string) ([]string, error) {
	dir := filepath.Join(root, "knowledge")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &engramerr.StoreError{Op: "list_projects", Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
