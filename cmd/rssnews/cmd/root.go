// Package cmd provides the CLI commands for rssnews.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openai/openai-go/v3"
	"github.com/spf13/cobra"

	"github.com/langgraphsystem/rssnews/internal/ask"
	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/embed"
	"github.com/langgraphsystem/rssnews/internal/llm"
	"github.com/langgraphsystem/rssnews/internal/logging"
	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/store"
	"github.com/langgraphsystem/rssnews/pkg/version"
)

var (
	configPath string
	logLevel   string
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rssnews",
		Short: "RSS news ingestion, hybrid retrieval, and question answering",
		Long: `rssnews ingests RSS feeds continuously, deduplicates and chunks
articles, embeds them for hybrid semantic and lexical retrieval, and answers
questions over the indexed corpus with an agentic RAG loop.

One binary serves every role; SERVICE_MODE (or the subcommands below) picks
which stage a process runs.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newFeedsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// app holds the shared process wiring.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	st      *store.Store
	cleanup []func()
}

// newApp loads configuration, logging, and the storage pool.
func newApp(ctx context.Context, service string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCleanup, err := logging.SetupDefault(logging.Config{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		Service:  service,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: slog.Default(), cleanup: []func(){logCleanup}}

	st, err := store.New(ctx, cfg.DatabaseURL, store.Options{Dim: cfg.Embed.Dimensions})
	if err != nil {
		a.close()
		return nil, err
	}
	a.st = st
	a.cleanup = append(a.cleanup, st.Close)
	return a, nil
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// openaiClient builds the shared API client; the key comes from
// OPENAI_API_KEY.
func (a *app) openaiClient() openai.Client {
	return openai.NewClient()
}

// searcher wires the hybrid retrieval engine.
func (a *app) searcher() (*search.Searcher, error) {
	emb, err := embed.NewClient(a.openaiClient(), a.cfg.Embed)
	if err != nil {
		return nil, err
	}
	return search.New(a.st, emb, a.cfg.Rank, a.cfg.Ask.TrustedDomains, a.log), nil
}

// asker wires the question-answering orchestrator on top of a searcher.
func (a *app) asker(s *search.Searcher) *ask.Orchestrator {
	completer := llm.New(a.openaiClient(), a.cfg.Ask.PrimaryModel, a.cfg.Ask.FallbackModels, a.log)
	return ask.New(s, completer, a.cfg.Ask, a.log)
}
