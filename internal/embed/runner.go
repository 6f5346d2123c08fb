package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/langgraphsystem/rssnews/internal/config"
	apperr "github.com/langgraphsystem/rssnews/internal/errors"
	"github.com/langgraphsystem/rssnews/internal/store"
)

const maxEmbedAttempts = 3

// Embedder produces vectors for a batch of texts. *Client satisfies it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Store is the persistence surface the embedding stage needs.
type Store interface {
	ChunksNeedingEmbedding(ctx context.Context, limit, maxAttempts int) ([]*store.Chunk, error)
	SaveEmbedding(ctx context.Context, chunkID string, vec []float32, model string) (bool, error)
	RecordEmbedFailure(ctx context.Context, chunkID string, maxAttempts int) error
	ClearEmbeddingsForModel(ctx context.Context, keepModel string, limit int) (int64, error)
	RecordBatchRun(ctx context.Context, r *store.BatchRun) error
}

// Runner drives the embedding stage.
type Runner struct {
	store    Store
	embedder Embedder
	cfg      config.EmbedConfig
	retry    apperr.RetryConfig
	log      *slog.Logger
	workerID string
	now      func() time.Time
}

// NewRunner builds an embedding Runner.
func NewRunner(st Store, e Embedder, cfg config.EmbedConfig, log *slog.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		store:    st,
		embedder: e,
		cfg:      cfg,
		retry:    apperr.DefaultRetryConfig(),
		log:      log.With(slog.String("component", "embed_runner")),
		workerID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:      time.Now,
	}
}

// CycleStats summarizes one embedding cycle.
type CycleStats struct {
	Claimed  int
	Embedded int
	Skipped  int // lost the conditional write race
	Failed   int
}

// RunOnce embeds one batch of pending chunks. Provider calls retry on
// transient kinds; a fatal classification aborts the cycle so the service
// can stop instead of burning the key.
func (r *Runner) RunOnce(ctx context.Context) (CycleStats, error) {
	started := r.now()

	batch, err := r.store.ChunksNeedingEmbedding(ctx, r.cfg.BatchSize, maxEmbedAttempts)
	if err != nil {
		return CycleStats{}, fmt.Errorf("load pending chunks: %w", err)
	}
	if len(batch) == 0 {
		return CycleStats{}, nil
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := apperr.RetryWithResult(ctx, r.retry, func() ([][]float32, error) {
		return r.embedder.EmbedBatch(ctx, texts)
	})
	if err != nil {
		if apperr.IsFatal(err) {
			return CycleStats{}, err
		}
		// The whole batch failed; count an attempt against every chunk.
		for _, c := range batch {
			if ferr := r.store.RecordEmbedFailure(ctx, c.ID, maxEmbedAttempts); ferr != nil {
				r.log.Error("record embed failure", slog.String("error", ferr.Error()))
			}
		}
		r.recordRun(ctx, started, len(batch), 0, map[string]int{string(apperr.KindOf(err)): len(batch)})
		return CycleStats{Claimed: len(batch), Failed: len(batch)}, nil
	}

	var stats CycleStats
	stats.Claimed = len(batch)
	errCounts := map[string]int{}
	for i, c := range batch {
		written, err := r.store.SaveEmbedding(ctx, c.ID, vectors[i], r.embedder.Model())
		if err != nil {
			stats.Failed++
			errCounts["save"]++
			r.log.Warn("save embedding failed",
				slog.String("chunk", c.ID),
				slog.String("error", err.Error()))
			continue
		}
		if written {
			stats.Embedded++
		} else {
			stats.Skipped++
		}
	}

	r.recordRun(ctx, started, stats.Claimed, stats.Embedded, errCounts)
	r.log.Info("embed cycle complete",
		slog.Int("claimed", stats.Claimed),
		slog.Int("embedded", stats.Embedded),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

// RunMigration clears vectors produced by other models in batches until
// none remain. The regular embedding stage then regenerates them.
func (r *Runner) RunMigration(ctx context.Context) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		cleared, err := r.store.ClearEmbeddingsForModel(ctx, r.embedder.Model(), r.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		total += cleared
		if cleared == 0 {
			break
		}
		r.log.Info("migration batch cleared", slog.Int64("count", cleared))
	}
	return total, nil
}

func (r *Runner) recordRun(ctx context.Context, started time.Time, in, out int, errCounts map[string]int) {
	run := &store.BatchRun{
		Stage:       "embedding",
		WorkerID:    r.workerID,
		StartedAt:   started,
		FinishedAt:  r.now(),
		InputCount:  in,
		OutputCount: out,
		ErrorCounts: errCounts,
	}
	if err := r.store.RecordBatchRun(ctx, run); err != nil {
		r.log.Warn("record batch run failed", slog.String("error", err.Error()))
	}
}
