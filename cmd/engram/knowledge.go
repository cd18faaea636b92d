package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/engram-hq/engram/extract"
	"github.com/engram-hq/engram/session"
	"github.com/engram-hq/engram/store"
	"github.com/engram-hq/engram/synth"
)

func categoryFlag() cli.Flag {
	return &cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "decisions, solutions, patterns, bugs, insights, questions, preferences", Required: true}
}

func parseCategory(cmd *cli.Command) (store.Category, error) {
	c := store.Category(cmd.String("category"))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", c)
	}
	return c, nil
}

func addCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Manually write one knowledge block",
		Flags: append(commonFlags(),
			projectFlag(),
			categoryFlag(),
			&cli.StringFlag{Name: "id", Usage: "Block id (default: random)"},
			&cli.StringFlag{Name: "ttl", Usage: "never, or an integer followed by m|h|d|w (default: none; a block with no TTL never expires but can be removed by forget --older-than)"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cat, err := parseCategory(cmd)
			if err != nil {
				return err
			}
			ttl, err := store.ParseTTL(cmd.String("ttl"))
			if err != nil {
				return err
			}
			id := cmd.String("id")
			if id == "" {
				id = uuid.NewString()
			}
			st := a.store(cmd)
			if err := st.WriteBlock(store.Entry{
				Project:  cmd.String("project"),
				Category: cat,
				ID:       id,
				TTL:      ttl,
				Body:     cmd.Args().First(),
				Source:   store.SourceManual,
			}); err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

func updateCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Replace an existing knowledge block's body, preserving its TTL and source unless overridden",
		Flags: append(commonFlags(),
			projectFlag(),
			categoryFlag(),
			&cli.StringFlag{Name: "id", Required: true, Usage: "Block id to update"},
			&cli.StringFlag{Name: "ttl", Usage: "Override the block's TTL"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cat, err := parseCategory(cmd)
			if err != nil {
				return err
			}
			project := cmd.String("project")
			id := cmd.String("id")

			st := a.store(cmd)
			existing, err := st.ReadBlocks(project, cat)
			if err != nil {
				return err
			}
			entry := store.Entry{Project: project, Category: cat, ID: id, Source: store.SourceManual}
			for _, e := range existing {
				if e.ID == id {
					entry.TTL = e.TTL
					entry.Source = e.Source
					break
				}
			}
			if raw := cmd.String("ttl"); raw != "" {
				ttl, err := store.ParseTTL(raw)
				if err != nil {
					return err
				}
				entry.TTL = ttl
			}
			entry.Body = cmd.Args().First()
			return st.WriteBlock(entry)
		},
	}
}

func forgetCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "forget",
		Usage: "Delete one knowledge block, or sweep stale blocks with --older-than",
		Flags: append(commonFlags(),
			projectFlag(),
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category (required unless --older-than is set)"},
			&cli.StringFlag{Name: "id", Usage: "Block id (required unless --older-than is set)"},
			&cli.StringFlag{Name: "older-than", Usage: "Remove every block with no TTL that is older than this duration, instead of deleting one by id; blocks with a TTL, including never, are kept"},
			&cli.BoolFlag{Name: "summarize", Usage: "Consolidate swept blocks into a single summary entry before deleting them"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := a.store(cmd)
			project := cmd.String("project")

			if olderThan := cmd.String("older-than"); olderThan != "" {
				ttl, err := store.ParseTTL(olderThan)
				if err != nil {
					return err
				}
				counts, err := st.SweepStale(project, ttl.Duration, cmd.Bool("summarize"))
				if err != nil {
					return err
				}
				for cat, n := range counts {
					fmt.Printf("%s: removed %d\n", cat, n)
				}
				return nil
			}

			cat := store.Category(cmd.String("category"))
			id := cmd.String("id")
			if !cat.Valid() || id == "" {
				return fmt.Errorf("--category and --id are required unless --older-than is set")
			}
			return st.DeleteBlock(project, cat, id)
		},
	}
}

func reflectCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "reflect",
		Usage: "Extract knowledge candidates from free-form text and store them",
		Flags: append(commonFlags(), projectFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			extractor, err := a.extractor(cmd)
			if err != nil {
				return err
			}
			project := cmd.String("project")
			now := time.Now()
			fake := &session.Session{
				SessionID: "reflect-" + uuid.NewString(),
				Project:   project,
				CreatedAt: now,
				Messages: []session.Message{
					{Role: session.RoleUser, Timestamp: &now, Content: []session.ContentBlock{{Type: session.BlockText, Text: cmd.Args().First()}}},
				},
			}
			candidates, err := extractor.Extract(ctx, fake, extract.Hints{})
			if err != nil {
				return err
			}
			st := a.store(cmd)
			for _, c := range candidates {
				if err := st.WriteBlock(store.Entry{
					Project:  project,
					Category: c.Category,
					ID:       uuid.NewString(),
					Body:     c.Body,
					Source:   store.SourceReflect,
				}); err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", c.Category, c.Body)
			}
			return nil
		},
	}
}

func synthesizeCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "synthesize",
		Usage: "Regenerate context.md from a project's current knowledge snapshot",
		Flags: append(commonFlags(), projectFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p, err := a.provider(cmd)
			if err != nil {
				return err
			}
			st := a.store(cmd)
			project := cmd.String("project")

			snap, err := st.Snapshot(project)
			if err != nil {
				return err
			}
			live := map[store.Category][]store.Entry{}
			for cat, entries := range snap {
				for _, e := range entries {
					if !st.IsExpired(e) {
						live[cat] = append(live[cat], e)
					}
				}
			}

			text, err := synth.New(p).Synthesize(ctx, live)
			if err != nil {
				return err
			}
			if err := st.WriteContext(project, text); err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}
}
