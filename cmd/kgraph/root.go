package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bbiangul/kgraph"
)

// openEngine is replaced in tests.
var openEngine = func(cfg kgraph.Config) (kgraph.Engine, error) {
	return kgraph.New(cfg)
}

type globalFlags struct {
	configPath string
	verbose    bool
	noStore    bool
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "kgraph",
		Short:         "Build knowledge graphs from documents with an LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), g.verbose)
		},
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to config file (YAML or JSON)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log pipeline progress")

	cmd.AddCommand(newExtractCommand(g))
	cmd.AddCommand(newRenderCommand(g))
	cmd.AddCommand(newListCommand(g))
	cmd.AddCommand(newDeleteCommand(g))
	cmd.AddCommand(newStatsCommand(g))
	return cmd
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads .env, the optional config file and KGRAPH_* overrides.
func (g *globalFlags) loadConfig() (kgraph.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("cli: loading .env", "error", err)
	}

	cfg := kgraph.DefaultConfig()
	if g.configPath != "" {
		var err error
		if cfg, err = kgraph.LoadConfig(g.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if g.noStore {
		cfg.NoStore = true
	}
	return cfg, nil
}

func (g *globalFlags) engine() (kgraph.Engine, kgraph.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	e, err := openEngine(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("creating engine: %w", err)
	}
	return e, cfg, nil
}
