// Command engram is the CLI surface over the core packages: every
// subcommand is a thin caller of the ingestion orchestrator, knowledge
// store, retrieval surface, MCP access layer, or daemon supervisor. Exit
// code 0 on success, non-zero on failure; diagnostics go to stderr, data to
// stdout.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/engram-hq/engram/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	a := newApp(cfg)

	root := &cli.Command{
		Name:  "engram",
		Usage: "Personal long-term memory for an AI coding assistant",
		Description: `Engram turns append-only agent session transcripts into durable,
queryable project knowledge: decisions, solutions, patterns, bugs,
insights, open questions, and preferences survive past the context
window and the session's end.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log",
				Usage: "Log level: debug, info, warn, error",
				Value: "error",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level, err := log.ParseLevel(cmd.String("log"))
			if err != nil {
				return ctx, err
			}
			log.SetLevel(level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			ingestCmd(a),
			recallCmd(a),
			searchCmd(a),
			lookupCmd(a),
			searchSemanticCmd(a),
			askCmd(a),
			indexCmd(a),
			timelineCmd(a),
			addCmd(a),
			updateCmd(a),
			forgetCmd(a),
			reflectCmd(a),
			synthesizeCmd(a),
			projectsCmd(a),
			analyticsCmd(a),
			observationsCmd(a),
			statusCmd(a),
			serveMCPCmd(a),
			daemonCmd(a),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// commonFlags are accepted by every subcommand that talks to the store or a
// provider, redeclared per-command rather than relying on root-flag
// inheritance, which urfave/cli/v3 does not guarantee for every flag type.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "store",
			Usage: "Knowledge store root directory (default: config store.dir)",
		},
		&cli.StringFlag{
			Name:  "provider",
			Usage: "LLM provider: anthropic, openai (default: config provider.name)",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Provider model name (default: config provider.model)",
		},
	}
}

func projectFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "project",
		Aliases: []string{"p"},
		Usage:   "Project name",
	}
}
