package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// RecordBatchRun appends one batch execution record.
func (s *Store) RecordBatchRun(ctx context.Context, r *BatchRun) error {
	counts := r.ErrorCounts
	if counts == nil {
		counts = map[string]int{}
	}
	payload, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal error counts: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_runs (stage, worker_id, started_at, finished_at,
			input_count, output_count, error_counts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.Stage, r.WorkerID, r.StartedAt, r.FinishedAt,
		r.InputCount, r.OutputCount, payload)
	if err != nil {
		return fmt.Errorf("record batch run: %w", err)
	}
	return nil
}

// RecentBatchRuns returns the latest runs for a stage, newest first.
func (s *Store) RecentBatchRuns(ctx context.Context, stage string, limit int) ([]*BatchRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stage, worker_id, started_at, finished_at,
			input_count, output_count, error_counts
		FROM batch_runs
		WHERE stage = $1
		ORDER BY started_at DESC
		LIMIT $2`, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("recent batch runs: %w", err)
	}
	defer rows.Close()

	var out []*BatchRun
	for rows.Next() {
		var r BatchRun
		var payload []byte
		if err := rows.Scan(&r.ID, &r.Stage, &r.WorkerID, &r.StartedAt,
			&r.FinishedAt, &r.InputCount, &r.OutputCount, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &r.ErrorCounts); err != nil {
			return nil, fmt.Errorf("unmarshal error counts: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
