package store

import (
	"context"
	"fmt"
	"time"
)

// EnqueueRaw inserts a pending raw article unless the same url_hash was seen
// inside the dedup window. Returns the new id and true when enqueued.
func (s *Store) EnqueueRaw(ctx context.Context, feedID int64, url, canonicalURL, urlHash, rssTitle string, rssPublished *time.Time, window time.Duration) (int64, bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM raw_articles
			WHERE url_hash = $1 AND fetched_at > now() - $2::interval
		)`, urlHash, window).Scan(&exists)
	if err != nil {
		return 0, false, fmt.Errorf("check url hash: %w", err)
	}
	if exists {
		return 0, false, nil
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO raw_articles (feed_id, url, canonical_url, url_hash, rss_title, rss_published)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		feedID, url, canonicalURL, urlHash, rssTitle, rssPublished).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue raw article: %w", err)
	}
	return id, true, nil
}

// ClaimPending locks up to limit pending raw articles for this worker.
// SKIP LOCKED keeps concurrent workers from contending on the same rows;
// the lease expiry lets a sweeper reclaim rows from crashed workers.
func (s *Store) ClaimPending(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*RawArticle, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE raw_articles SET
			status = 'processing',
			lock_owner = $1,
			lock_expires_at = now() + $2::interval
		WHERE (id, fetched_at) IN (
			SELECT id, fetched_at FROM raw_articles
			WHERE status = 'pending'
			ORDER BY fetched_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, feed_id, url, canonical_url, url_hash, rss_title,
			rss_published, retry_count, fetched_at`,
		workerID, lease, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	defer rows.Close()

	var out []*RawArticle
	for rows.Next() {
		ra := &RawArticle{Status: RawProcessing, LockOwner: workerID}
		if err := rows.Scan(&ra.ID, &ra.FeedID, &ra.URL, &ra.CanonicalURL,
			&ra.URLHash, &ra.RSSTitle, &ra.RSSPublished, &ra.RetryCount,
			&ra.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, ra)
	}
	return out, rows.Err()
}

// MarkStored finishes a raw article successfully, recording what the
// extractor produced alongside the canonical article it became.
func (s *Store) MarkStored(ctx context.Context, ra *RawArticle) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_articles SET
			status = 'stored',
			canonical_url = $3,
			clean_text = $4,
			text_hash = $5,
			language = $6,
			category = $7,
			published_at = $8,
			pub_estimated = $9,
			word_count = $10,
			quality_score = $11,
			lock_owner = '',
			lock_expires_at = NULL
		WHERE id = $1 AND fetched_at = $2`,
		ra.ID, ra.FetchedAt, ra.CanonicalURL, ra.CleanText, ra.TextHash,
		ra.Language, ra.Category, ra.PublishedAt, ra.PubEstimated,
		ra.WordCount, ra.QualityScore)
	if err != nil {
		return fmt.Errorf("mark stored: %w", err)
	}
	return nil
}

// MarkDuplicate closes a raw article as a duplicate of an existing article.
func (s *Store) MarkDuplicate(ctx context.Context, id int64, fetchedAt time.Time, originalArticleID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_articles SET
			status = 'duplicate',
			dup_original_id = $3,
			lock_owner = '',
			lock_expires_at = NULL
		WHERE id = $1 AND fetched_at = $2`,
		id, fetchedAt, originalArticleID)
	return err
}

// MarkSkipped closes a raw article that will never become an article
// (paywall, wrong language, too short) with the reason.
func (s *Store) MarkSkipped(ctx context.Context, id int64, fetchedAt time.Time, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_articles SET
			status = 'skipped',
			skip_reason = $3,
			lock_owner = '',
			lock_expires_at = NULL
		WHERE id = $1 AND fetched_at = $2`,
		id, fetchedAt, reason)
	return err
}

// MarkError records a failure. Retryable failures below the attempt cap
// return the row to pending; once the cap is reached the row is parked as
// skipped so reprocessing sweeps never pick it up again. Non-retryable
// failures go straight to error.
func (s *Store) MarkError(ctx context.Context, id int64, fetchedAt time.Time, errMsg string, retryable bool, maxRetries int) error {
	status := "error"
	if retryable {
		status = "pending"
	}
	_, err := s.pool.Exec(ctx, markErrorSQL, id, fetchedAt, status, errMsg, maxRetries)
	return err
}

const markErrorSQL = `
	UPDATE raw_articles SET
		status = CASE WHEN $3 = 'pending' AND retry_count + 1 >= $5 THEN 'skipped' ELSE $3 END,
		skip_reason = CASE WHEN $3 = 'pending' AND retry_count + 1 >= $5 THEN 'retries_exhausted' ELSE skip_reason END,
		retry_count = retry_count + 1,
		last_error = $4,
		lock_owner = '',
		lock_expires_at = NULL
	WHERE id = $1 AND fetched_at = $2`

// SweepExpiredLocks returns abandoned processing rows to pending.
func (s *Store) SweepExpiredLocks(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE raw_articles SET
			status = 'pending',
			lock_owner = '',
			lock_expires_at = NULL
		WHERE status = 'processing' AND lock_expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PendingCount reports the ingestion backlog for health reporting.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM raw_articles WHERE status = 'pending'`).Scan(&n)
	return n, err
}
