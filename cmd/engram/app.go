package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/engram-hq/engram/analytics"
	"github.com/engram-hq/engram/config"
	"github.com/engram-hq/engram/embed"
	"github.com/engram-hq/engram/extract"
	"github.com/engram-hq/engram/observe"
	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/provider/anthropic"
	"github.com/engram-hq/engram/provider/openai"
	"github.com/engram-hq/engram/reader"
	"github.com/engram-hq/engram/reader/claude"
	"github.com/engram-hq/engram/retrieve"
	"github.com/engram-hq/engram/store"
	"github.com/engram-hq/engram/synth"
	"github.com/urfave/cli/v3"
)

// app holds the config-derived registries and lazily-built collaborators
// shared by every subcommand: "provider name -> LLMProvider" and "agent
// name -> Reader".
type app struct {
	cfg       *config.Config
	readers   map[string]func() reader.Reader
	providers map[string]func(apiKeyEnv, model string) provider.LLMProvider
}

func newApp(cfg *config.Config) *app {
	return &app{
		cfg: cfg,
		readers: map[string]func() reader.Reader{
			"claude": func() reader.Reader { return &claude.Reader{} },
		},
		providers: map[string]func(apiKeyEnv, model string) provider.LLMProvider{
			"anthropic": func(apiKeyEnv, model string) provider.LLMProvider {
				return anthropic.New(os.Getenv(apiKeyEnv), model)
			},
			"openai": func(apiKeyEnv, model string) provider.LLMProvider {
				return openai.New(os.Getenv(apiKeyEnv), model, "text-embedding-3-small", 1536)
			},
		},
	}
}

func (a *app) reader(name string) (reader.Reader, error) {
	fn, ok := a.readers[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	return fn(), nil
}

// provider builds the LLMProvider named by cmd's --provider/--model flags,
// falling back to a.cfg's defaults when the flags are unset.
func (a *app) provider(cmd *cli.Command) (provider.LLMProvider, error) {
	name := cmd.String("provider")
	if name == "" {
		name = a.cfg.Provider.Name
	}
	model := cmd.String("model")
	if model == "" {
		model = a.cfg.Provider.Model
	}
	fn, ok := a.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return fn(defaultAPIKeyEnv(name), model), nil
}

func defaultAPIKeyEnv(name string) string {
	switch name {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

func (a *app) storeDir(cmd *cli.Command) string {
	if dir := cmd.String("store"); dir != "" {
		return dir
	}
	return a.cfg.Store.Dir
}

func (a *app) store(cmd *cli.Command) *store.Store {
	return store.New(a.storeDir(cmd))
}

func (a *app) archiveDir(cmd *cli.Command) string {
	return filepath.Join(a.storeDir(cmd), "archive")
}

func (a *app) surface(cmd *cli.Command) (*retrieve.Surface, error) {
	p, err := a.provider(cmd)
	if err != nil {
		return nil, err
	}
	return &retrieve.Surface{
		Store:      a.store(cmd),
		ArchiveDir: a.archiveDir(cmd),
		Synth:      synth.New(p),
		Provider:   p,
	}, nil
}

// surfaceCLI builds a Surface the same way as surface, plus an Analytics
// logger. Only the standalone CLI read commands use this: mcp.Server already
// records one analytics event per dispatched tool call (including "recall"/
// "search"/…), so wiring Analytics into the Surface serve-mcp shares would
// double-record every MCP read.
func (a *app) surfaceCLI(cmd *cli.Command) (*retrieve.Surface, error) {
	s, err := a.surface(cmd)
	if err != nil {
		return nil, err
	}
	s.Analytics = a.analytics(cmd)
	return s, nil
}

func (a *app) extractor(cmd *cli.Command) (*extract.Extractor, error) {
	p, err := a.provider(cmd)
	if err != nil {
		return nil, err
	}
	e := extract.New(p)
	e.MaxAttempts = a.cfg.Extraction.MaxAttempts
	return e, nil
}

func (a *app) analytics(cmd *cli.Command) *analytics.Logger {
	return analytics.New(a.storeDir(cmd))
}

func (a *app) observe(cmd *cli.Command) *observe.Log {
	return observe.New(a.storeDir(cmd))
}

func (a *app) embedIndex(cmd *cli.Command, project string) (*embed.Index, error) {
	return embed.Load(a.storeDir(cmd), project)
}
