package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const feedColumns = `id, url, lang_hint, priority, trust_score, etag, last_modified,
	health_score, consecutive_failures, daily_quota, fetched_today,
	crawl_interval_s, status, last_crawled_at, next_crawl_at`

func scanFeed(row pgx.Row) (*Feed, error) {
	var f Feed
	var intervalS int
	err := row.Scan(&f.ID, &f.URL, &f.LangHint, &f.Priority, &f.TrustScore,
		&f.ETag, &f.LastModified, &f.HealthScore, &f.ConsecutiveFailures,
		&f.DailyQuota, &f.FetchedToday, &intervalS, &f.Status,
		&f.LastCrawledAt, &f.NextCrawlAt)
	if err != nil {
		return nil, err
	}
	f.CrawlInterval = time.Duration(intervalS) * time.Second
	return &f, nil
}

// UpsertFeed registers a feed or updates its tunables, keyed by URL.
// Crawl state (etag, health, schedule) is never reset by an upsert.
func (s *Store) UpsertFeed(ctx context.Context, f *Feed) (int64, error) {
	interval := int(f.CrawlInterval / time.Second)
	if interval <= 0 {
		interval = 900
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO feeds (url, lang_hint, priority, trust_score, daily_quota, crawl_interval_s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO UPDATE SET
			lang_hint = EXCLUDED.lang_hint,
			priority = EXCLUDED.priority,
			trust_score = EXCLUDED.trust_score,
			daily_quota = EXCLUDED.daily_quota,
			crawl_interval_s = EXCLUDED.crawl_interval_s
		RETURNING id`,
		f.URL, f.LangHint, f.Priority, f.TrustScore, f.DailyQuota, interval).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert feed: %w", err)
	}
	return id, nil
}

// DueFeeds returns active feeds whose next crawl time has passed. Priority
// is a rank, lowest value first; within a rank, higher trust then stalest
// first. The daily quota counter resets lazily when the stored quota date
// falls behind.
func (s *Store) DueFeeds(ctx context.Context, limit int) ([]*Feed, error) {
	if _, err := s.pool.Exec(ctx, `
		UPDATE feeds SET fetched_today = 0, quota_date = CURRENT_DATE
		WHERE quota_date < CURRENT_DATE`); err != nil {
		return nil, fmt.Errorf("reset feed quotas: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE status = 'active'
		  AND next_crawl_at <= now()
		  AND fetched_today < daily_quota
		ORDER BY priority ASC, trust_score DESC, last_crawled_at ASC NULLS FIRST
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query due feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// PollResult is the outcome of one feed fetch, applied atomically.
type PollResult struct {
	Success      bool
	NotModified  bool
	ETag         string
	LastModified string
	NewItems     int
	NextCrawlAt  time.Time
	Err          string
}

// RecordPoll applies a poll outcome: caching headers, health score, failure
// streak, and the next crawl time. Each failure costs 15 health points, and
// a feed whose health drops below 50 is paused until revived.
func (s *Store) RecordPoll(ctx context.Context, feedID int64, r PollResult) error {
	if r.Success {
		_, err := s.pool.Exec(ctx, `
			UPDATE feeds SET
				etag = $2,
				last_modified = $3,
				consecutive_failures = 0,
				health_score = LEAST(100, health_score + 5),
				fetched_today = fetched_today + $4,
				last_crawled_at = now(),
				next_crawl_at = $5
			WHERE id = $1`,
			feedID, r.ETag, r.LastModified, r.NewItems, r.NextCrawlAt)
		if err != nil {
			return fmt.Errorf("record poll success: %w", err)
		}
		return nil
	}

	_, err := s.pool.Exec(ctx, recordPollFailureSQL, feedID, r.NextCrawlAt)
	if err != nil {
		return fmt.Errorf("record poll failure: %w", err)
	}
	return nil
}

const recordPollFailureSQL = `
	UPDATE feeds SET
		consecutive_failures = consecutive_failures + 1,
		health_score = GREATEST(0, health_score - 15),
		status = CASE WHEN GREATEST(0, health_score - 15) < 50 THEN 'paused' ELSE status END,
		last_crawled_at = now(),
		next_crawl_at = $2
	WHERE id = $1`

// FeedByID loads one feed. The article worker reads trust and language
// hints from it.
func (s *Store) FeedByID(ctx context.Context, id int64) (*Feed, error) {
	f, err := scanFeed(s.pool.QueryRow(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("feed by id %d: %w", id, err)
	}
	return f, nil
}

// ListFeeds returns every registered feed ordered by priority rank then URL.
func (s *Store) ListFeeds(ctx context.Context) ([]*Feed, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		ORDER BY priority ASC, url ASC`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// ReviveFeed reactivates a paused feed and clears its failure streak.
func (s *Store) ReviveFeed(ctx context.Context, feedID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE feeds SET status = 'active', consecutive_failures = 0,
			health_score = 50, next_crawl_at = now()
		WHERE id = $1`, feedID)
	return err
}
