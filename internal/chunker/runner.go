package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/langgraphsystem/rssnews/internal/store"
)

// Store is the persistence surface the chunking stage needs.
type Store interface {
	ArticlesReadyForChunking(ctx context.Context, limit int) ([]*store.Article, error)
	CommitChunks(ctx context.Context, articleID int64, version int, chunks []*store.Chunk) error
	RecordBatchRun(ctx context.Context, r *store.BatchRun) error
}

// Runner drives the chunking stage over batches of ready articles.
type Runner struct {
	store     Store
	chunker   *Chunker
	batchSize int
	log       *slog.Logger
	workerID  string
	now       func() time.Time
}

// NewRunner builds a chunking Runner.
func NewRunner(st Store, c *Chunker, batchSize int, log *slog.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		store:     st,
		chunker:   c,
		batchSize: batchSize,
		log:       log.With(slog.String("component", "chunk_runner")),
		workerID:  fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:       time.Now,
	}
}

// CycleStats summarizes one chunking cycle.
type CycleStats struct {
	Articles int
	Chunks   int
	Errors   int
}

// RunOnce chunks one batch. Each article commits independently so one bad
// article never blocks the batch.
func (r *Runner) RunOnce(ctx context.Context) (CycleStats, error) {
	started := r.now()

	batch, err := r.store.ArticlesReadyForChunking(ctx, r.batchSize)
	if err != nil {
		return CycleStats{}, fmt.Errorf("load ready articles: %w", err)
	}
	if len(batch) == 0 {
		return CycleStats{}, nil
	}

	var stats CycleStats
	errCounts := map[string]int{}
	for _, a := range batch {
		chunks, err := r.chunker.Split(ctx, a)
		if err != nil {
			stats.Errors++
			errCounts["split"]++
			r.log.Warn("split failed",
				slog.Int64("article_id", a.ID),
				slog.String("error", err.Error()))
			continue
		}
		if err := r.store.CommitChunks(ctx, a.ID, a.ProcessingVersion, chunks); err != nil {
			stats.Errors++
			errCounts["commit"]++
			r.log.Warn("commit failed",
				slog.Int64("article_id", a.ID),
				slog.String("error", err.Error()))
			continue
		}
		stats.Articles++
		stats.Chunks += len(chunks)
	}

	run := &store.BatchRun{
		Stage:       "chunking",
		WorkerID:    r.workerID,
		StartedAt:   started,
		FinishedAt:  r.now(),
		InputCount:  len(batch),
		OutputCount: stats.Chunks,
		ErrorCounts: errCounts,
	}
	if err := r.store.RecordBatchRun(ctx, run); err != nil {
		r.log.Warn("record batch run failed", slog.String("error", err.Error()))
	}

	r.log.Info("chunk cycle complete",
		slog.Int("articles", stats.Articles),
		slog.Int("chunks", stats.Chunks),
		slog.Int("errors", stats.Errors))
	return stats, nil
}
