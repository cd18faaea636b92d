package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/engram-hq/engram/daemon"
	"github.com/engram-hq/engram/ingest"
	"github.com/engram-hq/engram/render/markdown"
	"github.com/engram-hq/engram/synth"
)

func daemonCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run or stop the background ingestion supervisor",
		Commands: []*cli.Command{
			daemonStartCmd(a),
			daemonStopCmd(a),
		},
	}
}

func daemonStartCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Run the interval supervisor in the foreground until interrupted",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "agent", Value: "claude", Usage: "Session agent: claude"},
			projectFlag(),
			&cli.IntFlag{Name: "interval-minutes", Usage: "Tick interval in minutes (default: config daemon.interval_minutes)"},
			&cli.StringFlag{Name: "watch", Usage: "Source directory to watch for changes (default: none; interval ticks only)"},
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

			interval := time.Duration(cmd.Int("interval-minutes")) * time.Minute
			if interval <= 0 {
				interval = time.Duration(a.cfg.Daemon.IntervalMinutes) * time.Minute
			}

			sv := &daemon.Supervisor{
				Orchestrator: orch,
				Project:      cmd.String("project"),
				Interval:     interval,
				PIDPath:      filepath.Join(dir, "engram.pid"),
				LogPath:      filepath.Join(dir, "daemon.log"),
				WatchDir:     cmd.String("watch"),
			}

			runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return sv.Start(runCtx)
		},
	}
}

func daemonStopCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Signal a running supervisor to shut down gracefully",
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			pidPath := filepath.Join(a.storeDir(cmd), "engram.pid")
			if err := daemon.Stop(pidPath, 10*time.Second); err != nil {
				return err
			}
			fmt.Println("daemon stopped")
			return nil
		},
	}
}
