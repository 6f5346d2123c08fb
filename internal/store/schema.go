package store

import (
	"context"
	"fmt"
)

// migrations run in order inside one transaction. The schema is small enough
// that versioned migration tooling would be overhead; new statements append.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS feeds (
		id                   BIGSERIAL PRIMARY KEY,
		url                  TEXT NOT NULL UNIQUE,
		lang_hint            TEXT NOT NULL DEFAULT '',
		priority             INT NOT NULL DEFAULT 5,
		trust_score          INT NOT NULL DEFAULT 50,
		etag                 TEXT NOT NULL DEFAULT '',
		last_modified        TEXT NOT NULL DEFAULT '',
		health_score         INT NOT NULL DEFAULT 100,
		consecutive_failures INT NOT NULL DEFAULT 0,
		daily_quota          INT NOT NULL DEFAULT 500,
		fetched_today        INT NOT NULL DEFAULT 0,
		quota_date           DATE NOT NULL DEFAULT CURRENT_DATE,
		crawl_interval_s     INT NOT NULL DEFAULT 900,
		status               TEXT NOT NULL DEFAULT 'active',
		last_crawled_at      TIMESTAMPTZ,
		next_crawl_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS feeds_due_idx
		ON feeds (next_crawl_at) WHERE status = 'active'`,

	`CREATE TABLE IF NOT EXISTS raw_articles (
		id               BIGSERIAL,
		feed_id          BIGINT NOT NULL,
		url              TEXT NOT NULL,
		canonical_url    TEXT NOT NULL,
		url_hash         TEXT NOT NULL,
		rss_title        TEXT NOT NULL DEFAULT '',
		rss_published    TIMESTAMPTZ,
		html             TEXT NOT NULL DEFAULT '',
		clean_text       TEXT NOT NULL DEFAULT '',
		text_hash        TEXT NOT NULL DEFAULT '',
		language         TEXT NOT NULL DEFAULT '',
		category         TEXT NOT NULL DEFAULT '',
		published_at     TIMESTAMPTZ,
		pub_estimated    BOOLEAN NOT NULL DEFAULT false,
		word_count       INT NOT NULL DEFAULT 0,
		quality_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'pending',
		retry_count      INT NOT NULL DEFAULT 0,
		last_error       TEXT NOT NULL DEFAULT '',
		skip_reason      TEXT NOT NULL DEFAULT '',
		lock_owner       TEXT NOT NULL DEFAULT '',
		lock_expires_at  TIMESTAMPTZ,
		dup_original_id  BIGINT,
		fetched_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (id, fetched_at)
	) PARTITION BY RANGE (fetched_at)`,

	`CREATE INDEX IF NOT EXISTS raw_articles_url_hash_idx
		ON raw_articles (url_hash, fetched_at)`,

	`CREATE INDEX IF NOT EXISTS raw_articles_pending_idx
		ON raw_articles (status, fetched_at) WHERE status IN ('pending', 'processing')`,

	`CREATE TABLE IF NOT EXISTS articles (
		id                  BIGSERIAL PRIMARY KEY,
		canonical_url       TEXT NOT NULL,
		source_domain       TEXT NOT NULL,
		title               TEXT NOT NULL DEFAULT '',
		title_norm          TEXT NOT NULL DEFAULT '',
		clean_text          TEXT NOT NULL DEFAULT '',
		authors             TEXT[] NOT NULL DEFAULT '{}',
		language            TEXT NOT NULL DEFAULT '',
		category            TEXT NOT NULL DEFAULT '',
		tags                TEXT[] NOT NULL DEFAULT '{}',
		quality_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
		text_hash           TEXT NOT NULL UNIQUE,
		published_at        TIMESTAMPTZ,
		pub_estimated       BOOLEAN NOT NULL DEFAULT false,
		ready_for_chunking  BOOLEAN NOT NULL DEFAULT false,
		chunking_completed  BOOLEAN NOT NULL DEFAULT false,
		processing_version  INT NOT NULL DEFAULT 1,
		dup_of              BIGINT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`ALTER TABLE articles ADD COLUMN IF NOT EXISTS dup_of BIGINT`,

	`CREATE INDEX IF NOT EXISTS articles_chunking_idx
		ON articles (ready_for_chunking, chunking_completed)
		WHERE ready_for_chunking AND NOT chunking_completed`,

	`CREATE INDEX IF NOT EXISTS articles_published_idx ON articles (published_at)`,

	// Dimension is injected at migration time; mixing dimensions in one
	// index is forbidden, so changing it requires a rebuild.
	`CREATE TABLE IF NOT EXISTS article_chunks (
		id                  TEXT PRIMARY KEY,
		article_id          BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		processing_version  INT NOT NULL DEFAULT 1,
		chunk_index         INT NOT NULL,
		text                TEXT NOT NULL,
		char_start          INT NOT NULL DEFAULT 0,
		char_end            INT NOT NULL DEFAULT 0,
		semantic_type       TEXT NOT NULL DEFAULT 'body',
		importance          DOUBLE PRECISION NOT NULL DEFAULT 0.5,
		source_domain       TEXT NOT NULL DEFAULT '',
		published_at        TIMESTAMPTZ,
		language            TEXT NOT NULL DEFAULT '',
		category            TEXT NOT NULL DEFAULT '',
		quality_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
		title               TEXT NOT NULL DEFAULT '',
		word_count          INT NOT NULL DEFAULT 0,
		embedding           vector(%d),
		embedding_model     TEXT NOT NULL DEFAULT '',
		embed_attempts      INT NOT NULL DEFAULT 0,
		embed_failed        BOOLEAN NOT NULL DEFAULT false,
		fts                 tsvector,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (article_id, processing_version, chunk_index)
	)`,

	// hnsw caps plain vector columns at 2000 dimensions, so the index is
	// built over a halfvec cast. Queries must use the same expression.
	`CREATE INDEX IF NOT EXISTS article_chunks_embedding_idx
		ON article_chunks USING hnsw ((embedding::halfvec(%d)) halfvec_cosine_ops)`,

	`CREATE INDEX IF NOT EXISTS article_chunks_fts_idx
		ON article_chunks USING gin (fts)`,

	`CREATE INDEX IF NOT EXISTS article_chunks_needs_embedding_idx
		ON article_chunks (created_at)
		WHERE embedding IS NULL AND NOT embed_failed`,

	`CREATE INDEX IF NOT EXISTS article_chunks_needs_fts_idx
		ON article_chunks (created_at) WHERE fts IS NULL`,

	`CREATE INDEX IF NOT EXISTS article_chunks_published_idx
		ON article_chunks (published_at)`,

	`CREATE TABLE IF NOT EXISTS config (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		value_type TEXT NOT NULL DEFAULT 'string',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS batch_runs (
		id           BIGSERIAL PRIMARY KEY,
		stage        TEXT NOT NULL,
		worker_id    TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ NOT NULL,
		input_count  INT NOT NULL DEFAULT 0,
		output_count INT NOT NULL DEFAULT 0,
		error_counts JSONB NOT NULL DEFAULT '{}'
	)`,

	`CREATE INDEX IF NOT EXISTS batch_runs_stage_idx ON batch_runs (stage, started_at)`,
}

// Migrate applies the schema. Safe to run on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range migrations {
		if containsDimPlaceholder(stmt) {
			stmt = fmt.Sprintf(stmt, s.dim)
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Keep at least today's and tomorrow's raw_articles partitions present.
	if err := ensureRawPartitions(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func containsDimPlaceholder(stmt string) bool {
	for i := 0; i+1 < len(stmt); i++ {
		if stmt[i] == '%' && stmt[i+1] == 'd' {
			return true
		}
	}
	return false
}
