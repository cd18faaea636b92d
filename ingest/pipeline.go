// Package ingest implements the ingestion orchestrator: the per-session
// state machine that carries a transcript from UNSEEN through
// PARSED, ARCHIVED, EXTRACTED, STORED, and SYNTHESIZED, with a manifest for
// idempotent re-ingest and a bounded worker pool for the network-bound
// extraction stage.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/engram-hq/engram/analytics"
	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/extract"
	"github.com/engram-hq/engram/observe"
	"github.com/engram-hq/engram/reader"
	"github.com/engram-hq/engram/session"
	"github.com/engram-hq/engram/store"
	"github.com/engram-hq/engram/synth"
)

const (
	extractSubject = "engram.ingest.extract"
	extractQueue   = "extractors"
)

// Options configures a single ingestion run.
type Options struct {
	// Force re-ingests every session regardless of manifest state.
	Force bool

	// SkipKnowledge skips the extraction/store/synthesize stages, leaving
	// sessions at ARCHIVED.
	SkipKnowledge bool

	// Concurrency bounds the extraction worker pool. Zero means 4.
	Concurrency int

	// MaxAttempts bounds extraction retries per session per run. Zero means 3.
	MaxAttempts int

	// Budget bounds the run's wall-clock time. Zero means unbounded.
	// Sessions not reached before the budget elapses are left at their
	// prior stage and reported as Deferred.
	Budget time.Duration

	// Hints supplies per-session file-edit context to the extractor,
	// keyed by session id. Missing entries extract with empty hints.
	Hints map[string]extract.Hints
}

func (o Options) concurrency() int {
	if o.Concurrency <= 0 {
		return 4
	}
	return o.Concurrency
}

func (o Options) maxAttempts() int {
	if o.MaxAttempts <= 0 {
		return 3
	}
	return o.MaxAttempts
}

// Result reports one session's outcome for a single run.
type Result struct {
	SessionID      string
	Project        string
	FinalStage     Stage
	Err            error
	Deferred       bool
	Contradictions []extract.Contradiction
}

// Orchestrator wires together the transcript parser, archival renderer,
// extraction engine, knowledge store, and synthesizer into one per-session
// ingestion state machine.
type Orchestrator struct {
	Reader    reader.Reader
	Store     *store.Store
	Extractor *extract.Extractor
	Synth     *synth.Synthesizer

	// Archive writes a session's rendered output (conversation.md + meta.json)
	// to dir. Callers pass render/markdown.WriteSession; it is a field
	// rather than a direct import so tests can stub archival output.
	Archive func(dir string, s *session.Session) error

	// ArchiveDir is the root directory Archival Renderer output is written
	// under, one subdirectory per project/session.
	ArchiveDir string

	// ManifestPath is the manifest file's location.
	ManifestPath string

	// Observe is optional; when set, Run sources each visited project's
	// extraction hints from its recorded observations instead of leaving
	// them empty.
	Observe *observe.Log

	// Analytics is optional; when set, Run records one event summarizing
	// the run on completion.
	Analytics *analytics.Logger
}

func contentHash(s *session.Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Run ingests every session in project (or every project if project is
// empty) according to opts, returning one Result per session visited.
func (o *Orchestrator) Run(ctx context.Context, project string, opts Options) ([]Result, error) {
	manifest, err := LoadManifest(o.ManifestPath)
	if err != nil {
		return nil, err
	}

	var sessions []*session.Session
	if project == "" {
		sessions, err = o.Reader.ReadAll()
	} else {
		sessions, err = o.Reader.ReadProject(project)
	}
	if err != nil {
		return nil, err
	}

	deadline := time.Time{}
	if opts.Budget > 0 {
		deadline = time.Now().Add(opts.Budget)
	}

	var (
		results       []Result
		affectedMu    sync.Mutex
		affected      = map[string]bool{}
		toExtract     []*session.Session
		toExtractHash = map[string]string{}
	)

	// Stages 1-2 run synchronously: parsing is already done by ReadAll/
	// ReadProject, archival rendering is cheap and local.
	for _, sess := range sessions {
		if !deadline.IsZero() && time.Now().After(deadline) {
			results = append(results, Result{SessionID: sess.SessionID, Project: sess.Project, Deferred: true})
			continue
		}
		if ctx.Err() != nil {
			results = append(results, Result{SessionID: sess.SessionID, Project: sess.Project, Deferred: true, Err: &engramerr.CancelError{Stage: string(StageUnseen)}})
			continue
		}

		hash, err := contentHash(sess)
		if err != nil {
			results = append(results, Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageFailed, Err: err})
			continue
		}

		target := StageArchived
		if !opts.SkipKnowledge {
			target = StageSynthesized
		}
		if !manifest.ShouldVisit(sess.SessionID, hash, target, opts.Force) {
			continue
		}

		stage := StageParsed
		if len(sess.Messages) == 0 {
			results = append(results, Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageFailed, Err: fmt.Errorf("session %s has no turns", sess.SessionID)})
			manifest.Upsert(sess.SessionID, hash, StageFailed, time.Now())
			continue
		}

		if err := o.archive(sess); err != nil {
			results = append(results, Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageFailed, Err: err})
			manifest.Upsert(sess.SessionID, hash, StageFailed, time.Now())
			continue
		}
		stage = StageArchived

		if opts.SkipKnowledge {
			results = append(results, Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: stage})
			manifest.Upsert(sess.SessionID, hash, stage, time.Now())
			continue
		}

		toExtract = append(toExtract, sess)
		toExtractHash[sess.SessionID] = hash
	}

	// Stage 3 (ARCHIVED -> EXTRACTED -> STORED) is network-bound: run it
	// through a bounded worker pool.
	if o.Extractor.MaxAttempts == 0 {
		o.Extractor.MaxAttempts = opts.maxAttempts()
	}
	opts.Hints = o.fillHints(toExtract, opts.Hints)
	extractResults, err := o.runExtractionPool(ctx, toExtract, opts)
	if err != nil {
		return results, err
	}

	for _, r := range extractResults {
		results = append(results, r)
		hash := toExtractHash[r.SessionID]
		manifest.Upsert(r.SessionID, hash, r.FinalStage, time.Now())
		if r.FinalStage == StageStored || r.FinalStage == StageSynthesized {
			affectedMu.Lock()
			affected[r.Project] = true
			affectedMu.Unlock()
		}
	}

	// Stage 5: regenerate context.md once per affected project per run.
	if o.Synth != nil {
		for proj := range affected {
			if ctx.Err() != nil {
				break
			}
			if err := o.synthesizeProject(ctx, proj); err != nil {
				results = append(results, Result{SessionID: "", Project: proj, FinalStage: StageFailed, Err: err})
				continue
			}
			for i := range results {
				if results[i].Project == proj && results[i].FinalStage == StageStored {
					results[i].FinalStage = StageSynthesized
					manifest.Upsert(results[i].SessionID, toExtractHash[results[i].SessionID], StageSynthesized, time.Now())
				}
			}
		}
	}

	if err := manifest.Save(o.ManifestPath); err != nil {
		return results, err
	}

	if o.Analytics != nil {
		_ = o.Analytics.Record(analytics.Event{
			EventType:    "ingest",
			Project:      project,
			ResultsCount: len(results),
		})
	}
	return results, nil
}

// fillHints fills in extraction hints sourced from o.Observe for any session
// in toExtract whose project has no entry in explicit, without overriding
// hints the caller already supplied.
func (o *Orchestrator) fillHints(toExtract []*session.Session, explicit map[string]extract.Hints) map[string]extract.Hints {
	if o.Observe == nil || len(toExtract) == 0 {
		return explicit
	}
	out := make(map[string]extract.Hints, len(explicit)+len(toExtract))
	for k, v := range explicit {
		out[k] = v
	}
	byProject := map[string]extract.Hints{}
	for _, sess := range toExtract {
		if _, ok := out[sess.SessionID]; ok {
			continue
		}
		hints, ok := byProject[sess.Project]
		if !ok {
			var err error
			hints, err = o.Observe.HintsFor(sess.Project)
			if err != nil {
				continue
			}
			byProject[sess.Project] = hints
		}
		out[sess.SessionID] = hints
	}
	return out
}

func (o *Orchestrator) archive(sess *session.Session) error {
	dir := filepath.Join(o.ArchiveDir, sess.Project, sess.SessionID)
	return o.Archive(dir, sess)
}

// runExtractionPool dispatches sessions as extraction tasks onto an
// embedded, in-process NATS server: Options.concurrency() queue-group
// subscribers load-balance the incoming tasks, giving the network-bound
// extraction stage bounded concurrency and backpressure for free instead of
// a hand-rolled channel pool.
func (o *Orchestrator) runExtractionPool(ctx context.Context, sessions []*session.Session, opts Options) ([]Result, error) {
	if len(sessions) == 0 {
		return nil, nil
	}

	bySessionID := make(map[string]*session.Session, len(sessions))
	for _, sess := range sessions {
		bySessionID[sess.SessionID] = sess
	}

	natsServer, err := server.NewServer(&server.Options{Port: server.RANDOM_PORT, HTTPPort: -1, NoLog: true, NoSigs: true})
	if err != nil {
		return nil, &engramerr.StateError{Reason: "failed to start embedded extraction queue: " + err.Error()}
	}
	go natsServer.Start()
	if !natsServer.ReadyForConnections(5 * time.Second) {
		return nil, &engramerr.StateError{Reason: "embedded extraction queue did not become ready"}
	}
	defer natsServer.Shutdown()

	nc, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		return nil, &engramerr.StateError{Reason: "failed to connect to embedded extraction queue: " + err.Error()}
	}
	defer nc.Close()

	out := make(chan Result, len(sessions))
	var wg sync.WaitGroup

	for i := 0; i < opts.concurrency(); i++ {
		sub, err := nc.QueueSubscribe(extractSubject, extractQueue, func(msg *nats.Msg) {
			defer wg.Done()
			sess, ok := bySessionID[string(msg.Data)]
			if !ok {
				return
			}
			out <- o.extractAndStore(ctx, sess, opts)
		})
		if err != nil {
			return nil, &engramerr.StateError{Reason: "failed to register extraction worker: " + err.Error()}
		}
		defer sub.Unsubscribe()
	}

	for _, sess := range sessions {
		if ctx.Err() != nil {
			out <- Result{SessionID: sess.SessionID, Project: sess.Project, Deferred: true}
			continue
		}
		wg.Add(1)
		if err := nc.Publish(extractSubject, []byte(sess.SessionID)); err != nil {
			wg.Done()
			out <- Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageFailed, Err: err}
		}
	}

	wg.Wait()
	close(out)

	var results []Result
	for r := range out {
		results = append(results, r)
	}
	return results, nil
}

func (o *Orchestrator) extractAndStore(ctx context.Context, sess *session.Session, opts Options) Result {
	hints := opts.Hints[sess.SessionID]
	extractor := o.Extractor

	candidates, err := extractor.Extract(ctx, sess, hints)
	if err != nil {
		return Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageFailed, Err: err}
	}
	if len(candidates) == 0 {
		return Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageArchived}
	}

	var contradictions []extract.Contradiction
	for _, c := range candidates {
		existing, err := o.Store.ReadBlocks(sess.Project, c.Category)
		if err != nil {
			return Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageFailed, Err: err}
		}

		if contra, err := extractor.CheckContradiction(ctx, c, existing); err == nil && contra != nil {
			contradictions = append(contradictions, *contra)
		}

		entry := store.Entry{
			Project: sess.Project, Category: c.Category, ID: sess.SessionID,
			Body: c.Body, Source: store.SourceExtracted,
		}
		if err := o.Store.WriteBlock(entry); err != nil {
			return Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageFailed, Err: err}
		}
	}

	return Result{SessionID: sess.SessionID, Project: sess.Project, FinalStage: StageStored, Contradictions: contradictions}
}

func (o *Orchestrator) synthesizeProject(ctx context.Context, project string) error {
	all, err := o.Store.Snapshot(project)
	if err != nil {
		return err
	}

	snapshot := map[store.Category][]store.Entry{}
	for cat, entries := range all {
		var live []store.Entry
		for _, e := range entries {
			if !o.Store.IsExpired(e) {
				live = append(live, e)
			}
		}
		snapshot[cat] = live
	}

	text, err := o.Synth.Synthesize(ctx, snapshot)
	if err != nil {
		return err
	}

	return o.Store.WriteContext(project, text)
}
