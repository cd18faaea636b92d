package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/engram-hq/engram/extract"
	"github.com/engram-hq/engram/mcp"
	"github.com/engram-hq/engram/synth"
)

func serveMCPCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve-mcp",
		Usage: "Run the MCP Access Layer over stdin/stdout",
		Flags: append(commonFlags(),
			&cli.IntFlag{Name: "concurrency", Value: 8, Usage: "Concurrent tool-call handlers"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.surface(cmd)
			if err != nil {
				return err
			}
			p, err := a.provider(cmd)
			if err != nil {
				return err
			}
			server := &mcp.Server{
				Surface:     s,
				Store:       a.store(cmd),
				Extractor:   extract.New(p),
				Synth:       synth.New(p),
				Analytics:   a.analytics(cmd),
				Observe:     a.observe(cmd),
				Concurrency: int(cmd.Int("concurrency")),
			}
			return server.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}
