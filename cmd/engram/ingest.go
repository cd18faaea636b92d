package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/engram-hq/engram/ingest"
	"github.com/engram-hq/engram/render/markdown"
	"github.com/engram-hq/engram/synth"
)

func ingestCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Carry session transcripts through parse, archive, extract, store, and synthesize",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "agent", Value: "claude", Usage: "Session agent: claude"},
			projectFlag(),
			&cli.BoolFlag{Name: "force", Usage: "Re-ingest every session regardless of manifest state"},
			&cli.BoolFlag{Name: "skip-knowledge", Usage: "Stop at archived, skipping extraction/store/synthesize"},
			&cli.IntFlag{Name: "concurrency", Usage: "Extraction worker pool size (default: config extraction.concurrency)"},
			&cli.StringFlag{Name: "budget", Usage: "Wall-clock budget for this run, e.g. 10m (default: unbounded)"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, err := a.reader(cmd.String("agent"))
			if err != nil {
				return err
			}
			extractor, err := a.extractor(cmd)
			if err != nil {
				return err
			}
			p, err := a.provider(cmd)
			if err != nil {
				return err
			}
			dir := a.storeDir(cmd)
			orch := &ingest.Orchestrator{
				Reader:       r,
				Store:        a.store(cmd),
				Extractor:    extractor,
				Synth:        synth.New(p),
				Archive:      markdown.WriteSession,
				ArchiveDir:   a.archiveDir(cmd),
				ManifestPath: filepath.Join(dir, "manifest.json"),
				Observe:      a.observe(cmd),
				Analytics:    a.analytics(cmd),
			}

			concurrency := int(cmd.Int("concurrency"))
			if concurrency == 0 {
				concurrency = a.cfg.Extraction.Concurrency
			}

			var budget time.Duration
			if raw := cmd.String("budget"); raw != "" {
				budget, err = time.ParseDuration(raw)
				if err != nil {
					return fmt.Errorf("invalid --budget: %w", err)
				}
			}

			results, err := orch.Run(ctx, cmd.String("project"), ingest.Options{
				Force:         cmd.Bool("force"),
				SkipKnowledge: cmd.Bool("skip-knowledge"),
				Concurrency:   concurrency,
				MaxAttempts:   a.cfg.Extraction.MaxAttempts,
				Budget:        budget,
			})
			if err != nil {
				return err
			}

			deferred := 0
			for _, r := range results {
				status := string(r.FinalStage)
				if r.Err != nil {
					status = "error: " + r.Err.Error()
				}
				if r.Deferred {
					deferred++
					status += " (deferred)"
				}
				fmt.Printf("%s [%s]: %s\n", r.Project, r.SessionID, status)
			}
			fmt.Printf("%d sessions visited, %d deferred\n", len(results), deferred)
			return nil
		},
	}
}
