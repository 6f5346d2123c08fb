package fts

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/store"
)

type fakeStore struct {
	batches []int64
	runs    []*store.BatchRun
}

func (f *fakeStore) RefreshFTS(context.Context, int) (int64, error) {
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeStore) RecordBatchRun(_ context.Context, r *store.BatchRun) error {
	f.runs = append(f.runs, r)
	return nil
}

func TestRunOnce(t *testing.T) {
	fs := &fakeStore{batches: []int64{250}}
	r := NewRunner(fs, config.Default().FTS, slog.Default())

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)
	require.Len(t, fs.runs, 1)
	assert.Equal(t, "fts", fs.runs[0].Stage)
}

func TestRunOnceNothingPending(t *testing.T) {
	fs := &fakeStore{}
	n, err := NewRunner(fs, config.Default().FTS, slog.Default()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, fs.runs) // idle cycles are not recorded
}

func TestRunBackfillDrains(t *testing.T) {
	fs := &fakeStore{batches: []int64{100, 100, 30}}
	total, err := NewRunner(fs, config.Default().FTS, slog.Default()).RunBackfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(230), total)
}
