package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FindArticleByTextHash returns the canonical article with this text hash,
// or nil when none exists. The exact-duplicate check in ingestion runs this
// before inserting.
func (s *Store) FindArticleByTextHash(ctx context.Context, textHash string) (*Article, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, canonical_url, source_domain, title, title_norm, language,
			category, quality_score, text_hash, published_at, pub_estimated,
			ready_for_chunking, chunking_completed, processing_version
		FROM articles WHERE text_hash = $1`, textHash)

	var a Article
	err := row.Scan(&a.ID, &a.CanonicalURL, &a.SourceDomain, &a.Title,
		&a.TitleNorm, &a.Language, &a.Category, &a.QualityScore, &a.TextHash,
		&a.PublishedAt, &a.PubEstimated, &a.ReadyForChunking,
		&a.ChunkingCompleted, &a.ProcessingVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find article by text hash: %w", err)
	}
	return &a, nil
}

// SameDayArticlesByDomain returns the near-duplicate comparison pool: live
// articles from one domain whose publication day (creation day when the date
// is unknown) matches day, newest first.
func (s *Store) SameDayArticlesByDomain(ctx context.Context, domain string, day time.Time, limit int) ([]*Article, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, title_norm, clean_text, text_hash, published_at,
			pub_estimated, quality_score
		FROM articles
		WHERE source_domain = $1
		  AND dup_of IS NULL
		  AND date_trunc('day', COALESCE(published_at, created_at)) = date_trunc('day', $2::timestamptz)
		ORDER BY created_at DESC
		LIMIT $3`, domain, day, limit)
	if err != nil {
		return nil, fmt.Errorf("same day articles by domain: %w", err)
	}
	defer rows.Close()

	var out []*Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.TitleNorm, &a.CleanText,
			&a.TextHash, &a.PublishedAt, &a.PubEstimated, &a.QualityScore); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// DemoteArticle points a displaced near-duplicate at its richer replacement
// and withdraws it from retrieval: existing chunks are dropped and no new
// chunking happens.
func (s *Store) DemoteArticle(ctx context.Context, loserID, winnerID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin demote article: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE articles SET
			dup_of = $2,
			ready_for_chunking = false,
			chunking_completed = true,
			updated_at = now()
		WHERE id = $1`, loserID, winnerID); err != nil {
		return fmt.Errorf("demote article %d: %w", loserID, err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM article_chunks WHERE article_id = $1`, loserID); err != nil {
		return fmt.Errorf("drop demoted chunks: %w", err)
	}
	return tx.Commit(ctx)
}

// InsertArticle stores a new canonical article marked ready for chunking.
// A concurrent insert of the same text hash loses on the unique constraint
// and gets the existing id back.
func (s *Store) InsertArticle(ctx context.Context, a *Article) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO articles (canonical_url, source_domain, title, title_norm,
			clean_text, authors, language, category, tags, quality_score,
			text_hash, published_at, pub_estimated, ready_for_chunking,
			processing_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, true, $14)
		ON CONFLICT (text_hash) DO UPDATE SET updated_at = now()
		RETURNING id`,
		a.CanonicalURL, a.SourceDomain, a.Title, a.TitleNorm, a.CleanText,
		a.Authors, a.Language, a.Category, a.Tags, a.QualityScore,
		a.TextHash, a.PublishedAt, a.PubEstimated, a.ProcessingVersion).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// ArticlesReadyForChunking returns articles awaiting chunking, oldest first.
func (s *Store) ArticlesReadyForChunking(ctx context.Context, limit int) ([]*Article, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, canonical_url, source_domain, title, title_norm, clean_text,
			language, category, quality_score, published_at, pub_estimated,
			processing_version
		FROM articles
		WHERE ready_for_chunking AND NOT chunking_completed
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("articles ready for chunking: %w", err)
	}
	defer rows.Close()

	var out []*Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.CanonicalURL, &a.SourceDomain, &a.Title,
			&a.TitleNorm, &a.CleanText, &a.Language, &a.Category,
			&a.QualityScore, &a.PublishedAt, &a.PubEstimated,
			&a.ProcessingVersion); err != nil {
			return nil, err
		}
		a.ReadyForChunking = true
		out = append(out, &a)
	}
	return out, rows.Err()
}

// CommitChunks replaces an article's chunks for its current processing
// version and flips chunking_completed, all in one transaction. Re-running
// chunking for the same version is therefore idempotent.
func (s *Store) CommitChunks(ctx context.Context, articleID int64, version int, chunks []*Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM article_chunks WHERE article_id = $1 AND processing_version = $2`,
		articleID, version); err != nil {
		return fmt.Errorf("clear old chunks: %w", err)
	}

	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO article_chunks (id, article_id, processing_version,
				chunk_index, text, char_start, char_end, semantic_type,
				importance, source_domain, published_at, language, category,
				quality_score, title, word_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			c.ID, articleID, version, c.Index, c.Text, c.CharStart, c.CharEnd,
			c.Type, c.Importance, c.SourceDomain, c.PublishedAt, c.Language,
			c.Category, c.Quality, c.Title, c.WordCount); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE articles SET chunking_completed = true, updated_at = now()
		WHERE id = $1`, articleID); err != nil {
		return fmt.Errorf("mark chunking complete: %w", err)
	}

	return tx.Commit(ctx)
}

// BumpProcessingVersion schedules an article for re-chunking under a new
// version. Old chunks stay queryable until the new commit replaces them.
func (s *Store) BumpProcessingVersion(ctx context.Context, articleID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE articles SET
			processing_version = processing_version + 1,
			chunking_completed = false,
			updated_at = now()
		WHERE id = $1`, articleID)
	return err
}
