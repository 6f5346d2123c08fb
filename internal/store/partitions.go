package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// raw_articles is partitioned by day so retention is a cheap DROP TABLE
// instead of a bulk DELETE.

func rawPartitionName(day time.Time) string {
	return "raw_articles_" + day.Format("20060102")
}

func createRawPartition(ctx context.Context, tx pgx.Tx, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF raw_articles FOR VALUES FROM ('%s') TO ('%s')`,
		rawPartitionName(day),
		day.Format("2006-01-02"),
		next.Format("2006-01-02"),
	)
	_, err := tx.Exec(ctx, stmt)
	return err
}

func ensureRawPartitions(ctx context.Context, tx pgx.Tx) error {
	now := time.Now().UTC()
	for _, day := range []time.Time{now, now.Add(24 * time.Hour)} {
		if err := createRawPartition(ctx, tx, day); err != nil {
			return fmt.Errorf("create raw partition: %w", err)
		}
	}
	return nil
}

// EnsureRawPartitions creates today's and tomorrow's raw_articles partitions.
// The poller calls this at the start of each cycle so midnight rollover never
// races an insert against a missing partition.
func (s *Store) EnsureRawPartitions(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := ensureRawPartitions(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DropRawPartitionsBefore removes raw partitions older than the cutoff.
func (s *Store) DropRawPartitionsBefore(ctx context.Context, cutoff time.Time) error {
	rows, err := s.pool.Query(ctx,
		`SELECT tablename FROM pg_tables
		 WHERE schemaname = current_schema() AND tablename LIKE 'raw_articles_________'`)
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		names = append(names, name)
	}
	rows.Close()
	if rows.Err() != nil {
		return rows.Err()
	}

	cutoffName := rawPartitionName(cutoff.UTC())
	for _, name := range names {
		if name < cutoffName {
			if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
				return fmt.Errorf("drop partition %s: %w", name, err)
			}
		}
	}
	return nil
}
