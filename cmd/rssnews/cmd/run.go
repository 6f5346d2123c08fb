package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/langgraphsystem/rssnews/internal/article"
	"github.com/langgraphsystem/rssnews/internal/ask"
	"github.com/langgraphsystem/rssnews/internal/bot"
	"github.com/langgraphsystem/rssnews/internal/chunker"
	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/embed"
	"github.com/langgraphsystem/rssnews/internal/feed"
	"github.com/langgraphsystem/rssnews/internal/fts"
	"github.com/langgraphsystem/rssnews/internal/llm"
	"github.com/langgraphsystem/rssnews/internal/service"
)

// rawRetentionDays is how long raw article partitions are kept.
const rawRetentionDays = 14

func newRunCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline service selected by SERVICE_MODE",
		Long: `Runs one pipeline stage. The stage comes from the --mode flag or the
SERVICE_MODE environment variable; an empty value runs the bot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := config.ServiceMode(mode)
			if mode == "" {
				var err error
				m, err = config.Mode()
				if err != nil {
					return err
				}
			}
			return runMode(cmd.Context(), m)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Service mode (overrides SERVICE_MODE)")
	return cmd
}

func runMode(ctx context.Context, mode config.ServiceMode) error {
	a, err := newApp(ctx, string(mode))
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	splitter := chunkerSplitter(a)
	ch, err := chunker.New(cfg.Chunk, splitter, a.log)
	if err != nil {
		return err
	}

	embClient, err := embed.NewClient(a.openaiClient(), cfg.Embed)
	if err != nil {
		return err
	}

	poller := feed.New(a.st, cfg.Feed, a.log)
	worker := article.New(a.st, cfg.Work, cfg.Feed.UserAgent, a.log)
	chunkRunner := chunker.NewRunner(a.st, ch, cfg.Chunk.BatchSize, a.log)
	embedRunner := embed.NewRunner(a.st, embClient, cfg.Embed, a.log)
	ftsRunner := fts.NewRunner(a.st, cfg.FTS, a.log)

	pollCycle := func(ctx context.Context) error {
		if _, err := poller.RunOnce(ctx); err != nil {
			return err
		}
		cutoff := time.Now().AddDate(0, 0, -rawRetentionDays)
		return a.st.DropRawPartitionsBefore(ctx, cutoff)
	}
	workCycle := func(ctx context.Context) error {
		_, err := worker.RunOnce(ctx)
		return err
	}
	chunkCycle := func(ctx context.Context) error {
		_, err := chunkRunner.RunOnce(ctx)
		return err
	}
	embedCycle := func(ctx context.Context) error {
		_, err := embedRunner.RunOnce(ctx)
		return err
	}
	ftsCycle := func(ctx context.Context) error {
		_, err := ftsRunner.RunOnce(ctx)
		return err
	}

	loop := func(name string, interval time.Duration, run service.RunFunc) error {
		svc := service.New(a.log)
		svc.Add(name, interval, run)
		return svc.Run(ctx)
	}

	switch mode {
	case config.ModePoll:
		return loop("poll", cfg.Feed.Interval, pollCycle)
	case config.ModeWork:
		return service.Once(ctx, a.log, "work", workCycle)
	case config.ModeWorkContinuous:
		return loop("work", cfg.Work.Interval, workCycle)
	case config.ModeChunking:
		return service.Once(ctx, a.log, "chunking", chunkCycle)
	case config.ModeChunkContinuous:
		return loop("chunking", cfg.Chunk.Interval, chunkCycle)
	case config.ModeEmbedding:
		return loop("embedding", cfg.Embed.Interval, embedCycle)
	case config.ModeFTS:
		return service.Once(ctx, a.log, "fts", func(ctx context.Context) error {
			_, err := ftsRunner.RunBackfill(ctx)
			return err
		})
	case config.ModeFTSContinuous:
		return loop("fts", cfg.FTS.Interval, ftsCycle)
	case config.ModeOpenAIMigration:
		return service.Once(ctx, a.log, "openai-migration", func(ctx context.Context) error {
			cleared, err := embedRunner.RunMigration(ctx)
			if err != nil {
				return err
			}
			a.log.Info("migration cleared foreign-model embeddings",
				"cleared", cleared, "model", cfg.Embed.Model)
			return nil
		})
	case config.ModeBot:
		return runBot(ctx, a)
	default:
		return fmt.Errorf("unknown service mode %q", mode)
	}
}

// chunkerSplitter wires the LLM splitter when the config enables it.
func chunkerSplitter(a *app) chunker.CompleteFunc {
	if !a.cfg.Chunk.UseLLMSplitter {
		return nil
	}
	completer := llm.New(a.openaiClient(), a.cfg.Chunk.SplitterModel, nil, a.log)
	return llm.SplitterFunc(completer, a.cfg.Chunk.MaxChunkTokens)
}

// runBot starts the conversational surface on stdin/stdout. A chat
// transport adapter wraps Bot.Handle the same way.
func runBot(ctx context.Context, a *app) error {
	s, err := a.searcher()
	if err != nil {
		return err
	}
	completer := llm.New(a.openaiClient(), a.cfg.Ask.PrimaryModel, a.cfg.Ask.FallbackModels, a.log)
	orch := ask.New(s, completer, a.cfg.Ask, a.log)
	b := bot.New(s, orch, completer, a.log)

	rel := newRankReloader(a, s)
	if err := rel.watchFile(ctx); err != nil {
		return err
	}
	svc := service.New(a.log)
	rel.addTo(svc)

	// The reload loop ends when the REPL does.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return bot.RunREPL(gctx, b)
	})
	return g.Wait()
}
