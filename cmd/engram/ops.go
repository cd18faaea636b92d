package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/engram-hq/engram/embed"
)

func projectsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "List every project the store knows about",
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			names, err := listProjects(a.storeDir(cmd))
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func listProjects(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, "knowledge"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// parseDateRangeFlags resolves --since/--until (YYYY-MM-DD) to a concrete
// range, defaulting to the last 7 days through now.
func parseDateRangeFlags(cmd *cli.Command) (since, until time.Time, err error) {
	now := time.Now()
	until = now
	since = now.AddDate(0, 0, -7)
	if raw := cmd.String("until"); raw != "" {
		until, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return since, until, fmt.Errorf("invalid --until: %w", err)
		}
	}
	if raw := cmd.String("since"); raw != "" {
		since, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return since, until, fmt.Errorf("invalid --since: %w", err)
		}
	}
	return since, until, nil
}

func analyticsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "analytics",
		Usage: "Print recorded analytics events between --since and --until",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "since", Usage: "Start date, YYYY-MM-DD (default: 7 days ago)"},
			&cli.StringFlag{Name: "until", Usage: "End date, YYYY-MM-DD (default: today)"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			since, until, err := parseDateRangeFlags(cmd)
			if err != nil {
				return err
			}
			events, err := a.analytics(cmd).Summary(since, until)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Printf("%s %s project=%s query=%q results=%d\n", e.Timestamp.Format(time.RFC3339), e.EventType, e.Project, e.Query, e.ResultsCount)
			}
			return nil
		},
	}
}

func observationsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "observations",
		Usage: "Print recorded tool-use observations for a project between --since and --until",
		Flags: append(commonFlags(),
			projectFlag(),
			&cli.StringFlag{Name: "since", Usage: "Start date, YYYY-MM-DD (default: 7 days ago)"},
			&cli.StringFlag{Name: "until", Usage: "End date, YYYY-MM-DD (default: today)"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			since, until, err := parseDateRangeFlags(cmd)
			if err != nil {
				return err
			}
			obs, err := a.observe(cmd).ReadRange(cmd.String("project"), since, until)
			if err != nil {
				return err
			}
			for _, o := range obs {
				fmt.Printf("%s %s session=%s files=%v\n", o.Timestamp.Format(time.RFC3339), o.Tool, o.SessionID, o.FilesTouched)
			}
			return nil
		},
	}
}

func statusCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Per-project entry counts, context.md presence, and embedding index state",
		Flags: append(commonFlags(), projectFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := a.store(cmd)
			project := cmd.String("project")
			projects := []string{project}
			if project == "" {
				names, err := listProjects(a.storeDir(cmd))
				if err != nil {
					return err
				}
				projects = names
			}
			for _, proj := range projects {
				snap, err := st.Snapshot(proj)
				if err != nil {
					return err
				}
				total := 0
				for _, entries := range snap {
					total += len(entries)
				}
				_, contextErr := os.Stat(st.ContextPath(proj))
				idx, err := embed.Load(a.storeDir(cmd), proj)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d entries, context.md present=%t, embedding index version=%d (%d chunks)\n",
					proj, total, contextErr == nil, idx.Version, len(idx.Chunks))
			}
			return nil
		},
	}
}
