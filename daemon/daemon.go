// Package daemon runs a supervisor that drives the ingestion orchestrator on
// a fixed interval, recording a PID file and writing a rolling log, with
// ticks debounced when a run is still active and short-circuited early when
// a watched source directory changes.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/ingest"
)

// DefaultInterval is the fixed supervisor tick.
const DefaultInterval = 15 * time.Minute

// DefaultStopTimeout bounds how long Stop waits for graceful termination
// before escalating to SIGKILL.
const DefaultStopTimeout = 10 * time.Second

// Supervisor runs Orchestrator.Run on Project every Interval, skipping a
// tick (never queuing it) if the previous run is still in flight.
type Supervisor struct {
	Orchestrator *ingest.Orchestrator
	Project      string
	Opts         ingest.Options

	Interval time.Duration
	PIDPath  string
	LogPath  string

	// WatchDir, if set, is watched with fsnotify; a change there wakes the
	// supervisor immediately instead of waiting for the next tick.
	WatchDir string

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time

	active int32 // atomic flag: 1 while a cycle is running
}

func (sv *Supervisor) now() time.Time {
	if sv.Now != nil {
		return sv.Now()
	}
	return time.Now()
}

func (sv *Supervisor) interval() time.Duration {
	if sv.Interval <= 0 {
		return DefaultInterval
	}
	return sv.Interval
}

// writePIDFile refuses to start if PIDPath names a file holding a still-live
// PID, and otherwise records this process's PID.
func (sv *Supervisor) writePIDFile() error {
	if data, err := os.ReadFile(sv.PIDPath); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && processAlive(pid) {
			return &engramerr.StateError{Reason: fmt.Sprintf("daemon already running with pid %d", pid)}
		}
	}
	return os.WriteFile(sv.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func (sv *Supervisor) openLogger() (*slog.Logger, func() error, error) {
	if sv.LogPath == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(sv.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, &engramerr.StateError{Reason: "failed to open daemon log: " + err.Error()}
	}
	return slog.New(slog.NewTextHandler(f, nil)), f.Close, nil
}

// Start records the PID file, opens the rolling log, and runs the
// supervisor loop until ctx is canceled. Once the PID file is written, it
// is removed before Start returns, including on error; if writing it fails,
// Start returns that error at once.
func (sv *Supervisor) Start(ctx context.Context) error {
	if err := sv.writePIDFile(); err != nil {
		return err
	}
	defer os.Remove(sv.PIDPath)

	logger, closeLog, err := sv.openLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	var watchEvents <-chan fsnotify.Event
	if sv.WatchDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("fsnotify watcher unavailable, falling back to interval-only ticks", "error", err)
		} else {
			defer watcher.Close()
			if err := watcher.Add(sv.WatchDir); err != nil {
				logger.Warn("failed to watch directory", "dir", sv.WatchDir, "error", err)
			} else {
				watchEvents = watcher.Events
			}
		}
	}

	ticker := time.NewTicker(sv.interval())
	defer ticker.Stop()

	logger.Info("daemon started", "project", sv.Project, "interval", sv.interval().String(), "pid", os.Getpid())

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			sv.tick(ctx, logger)
		case _, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			sv.tick(ctx, logger)
		}
	}
}

// tick runs one orchestrator cycle unless one is already active, in which
// case the tick is skipped rather than queued.
func (sv *Supervisor) tick(ctx context.Context, logger *slog.Logger) {
	if !atomic.CompareAndSwapInt32(&sv.active, 0, 1) {
		logger.Info("tick skipped: previous run still active")
		return
	}
	go func() {
		defer atomic.StoreInt32(&sv.active, 0)
		start := sv.now()
		results, err := sv.Orchestrator.Run(ctx, sv.Project, sv.Opts)
		if err != nil {
			logger.Error("ingest run failed", "error", err)
			return
		}
		logger.Info("ingest run complete", "sessions", len(results), "duration", sv.now().Sub(start).String())
	}()
}

// Stop reads pidPath, sends SIGTERM, waits up to timeout for the process to
// exit, then escalates to SIGKILL.
func Stop(pidPath string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return &engramerr.StateError{Reason: "no pid file at " + pidPath}
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return &engramerr.StateError{Reason: "malformed pid file: " + pidPath}
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return &engramerr.StateError{Reason: fmt.Sprintf("no such process: %d", pid)}
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return &engramerr.StateError{Reason: "failed to signal daemon: " + err.Error()}
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			os.Remove(pidPath)
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return &engramerr.StateError{Reason: "failed to escalate to SIGKILL: " + err.Error()}
	}
	os.Remove(pidPath)
	return nil
}
