// Package fts maintains the lexical index: it backfills missing tsvector
// columns in large server-side batches. The analyzer configuration follows
// each chunk's language.
package fts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/store"
)

// Store is the persistence surface the FTS stage needs.
type Store interface {
	RefreshFTS(ctx context.Context, limit int) (int64, error)
	RecordBatchRun(ctx context.Context, r *store.BatchRun) error
}

// Runner drives full-text index maintenance.
type Runner struct {
	store    Store
	cfg      config.FTSConfig
	log      *slog.Logger
	workerID string
	now      func() time.Time
}

// NewRunner builds an FTS Runner.
func NewRunner(st Store, cfg config.FTSConfig, log *slog.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		store:    st,
		cfg:      cfg,
		log:      log.With(slog.String("component", "fts_runner")),
		workerID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:      time.Now,
	}
}

// RunOnce indexes one batch of chunks missing tsvectors.
func (r *Runner) RunOnce(ctx context.Context) (int64, error) {
	started := r.now()

	indexed, err := r.store.RefreshFTS(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("refresh fts: %w", err)
	}
	if indexed == 0 {
		return 0, nil
	}

	run := &store.BatchRun{
		Stage:       "fts",
		WorkerID:    r.workerID,
		StartedAt:   started,
		FinishedAt:  r.now(),
		InputCount:  int(indexed),
		OutputCount: int(indexed),
		ErrorCounts: map[string]int{},
	}
	if err := r.store.RecordBatchRun(ctx, run); err != nil {
		r.log.Warn("record batch run failed", slog.String("error", err.Error()))
	}

	r.log.Info("fts cycle complete", slog.Int64("indexed", indexed))
	return indexed, nil
}

// RunBackfill keeps indexing batches until the backlog drains.
func (r *Runner) RunBackfill(ctx context.Context) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.RunOnce(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}
