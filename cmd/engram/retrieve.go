package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/engram-hq/engram/store"
)

func recallCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "recall",
		Usage: "Print a project's synthesized context.md, regenerating it if missing",
		Flags: append(commonFlags(), projectFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surfaceCLI(cmd)
			if err != nil {
				return err
			}
			text, err := s.Recall(ctx, cmd.String("project"))
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}
}

func searchCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Regex search over knowledge blocks, and archived transcripts unless --knowledge-only",
		Flags: append(commonFlags(),
			projectFlag(),
			&cli.BoolFlag{Name: "knowledge-only", Usage: "Search only knowledge blocks, not archived transcripts"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surfaceCLI(cmd)
			if err != nil {
				return err
			}
			hits, err := s.Search(cmd.Args().First(), cmd.String("project"), cmd.Bool("knowledge-only"))
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Printf("%s/%s:%s: %s\n", h.Project, h.Category, h.ID, h.Snippet)
			}
			return nil
		},
	}
}

func lookupCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "lookup",
		Usage: "Substring search over a project's knowledge, ranked by occurrence count and recency",
		Flags: append(commonFlags(), projectFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surfaceCLI(cmd)
			if err != nil {
				return err
			}
			entries, err := s.Lookup(cmd.String("project"), cmd.Args().First())
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		},
	}
}

func searchSemanticCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "search-semantic",
		Usage: "Embedding similarity search over a project's indexed chunks",
		Flags: append(commonFlags(),
			projectFlag(),
			&cli.IntFlag{Name: "top-k", Value: 5, Usage: "Maximum number of results"},
			&cli.StringFlag{Name: "threshold", Value: "0.2", Usage: "Minimum similarity score"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surfaceCLI(cmd)
			if err != nil {
				return err
			}
			threshold, err := strconv.ParseFloat(cmd.String("threshold"), 64)
			if err != nil {
				return fmt.Errorf("invalid --threshold: %w", err)
			}
			hits, err := s.SearchSemantic(ctx, cmd.String("project"), cmd.Args().First(), int(cmd.Int("top-k")), threshold)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Printf("%.3f %s: %s\n", h.Score, h.Chunk.SourceFile, h.Chunk.Text)
			}
			return nil
		},
	}
}

func askCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "ask",
		Usage: "Retrieval-augmented answer to a question, grounded on a project's indexed chunks",
		Flags: append(commonFlags(), projectFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surfaceCLI(cmd)
			if err != nil {
				return err
			}
			answer, err := s.Ask(ctx, cmd.String("project"), cmd.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(answer.Text)
			if len(answer.Citations) > 0 {
				fmt.Println("\nCitations:")
				for _, c := range answer.Citations {
					fmt.Println(" ", c)
				}
			}
			return nil
		},
	}
}

func indexCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Print a project's compact manifest, one line per entry",
		Flags: append(commonFlags(), projectFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surfaceCLI(cmd)
			if err != nil {
				return err
			}
			lines, err := s.Index(cmd.String("project"))
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Printf("[%s] %s\n", l.Category, l.Line)
			}
			return nil
		},
	}
}

func timelineCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "timeline",
		Usage: "Print entries around a session id, ordered by timestamp",
		Flags: append(commonFlags(),
			projectFlag(),
			&cli.IntFlag{Name: "window", Value: 5, Usage: "Entries to show on each side of the pivot"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surfaceCLI(cmd)
			if err != nil {
				return err
			}
			lines, err := s.Timeline(cmd.String("project"), cmd.Args().First(), int(cmd.Int("window")))
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		},
	}
}

func printEntries(entries []store.Entry) {
	for _, e := range entries {
		fmt.Printf("%s/%s (%s): %s\n", e.Category, e.ID, e.Timestamp.Format("2006-01-02"), e.Body)
	}
}
