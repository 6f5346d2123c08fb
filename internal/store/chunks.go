package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// ChunksNeedingEmbedding returns chunks without embeddings that are still
// below the attempt cap, oldest first.
func (s *Store) ChunksNeedingEmbedding(ctx context.Context, limit, maxAttempts int) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, article_id, chunk_index, text, embed_attempts
		FROM article_chunks
		WHERE embedding IS NULL AND NOT embed_failed AND embed_attempts < $2
		ORDER BY created_at ASC
		LIMIT $1`, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("chunks needing embedding: %w", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.Index, &c.Text, &c.EmbedAttempts); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SaveEmbedding writes a vector only where none exists yet, so a racing
// worker can never overwrite a committed embedding. Returns false when the
// chunk already had one.
func (s *Store) SaveEmbedding(ctx context.Context, chunkID string, vec []float32, model string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE article_chunks SET
			embedding = $2,
			embedding_model = $3,
			embed_attempts = embed_attempts + 1,
			embed_failed = false
		WHERE id = $1 AND embedding IS NULL`,
		chunkID, pgvector.NewVector(vec), model)
	if err != nil {
		return false, fmt.Errorf("save embedding %s: %w", chunkID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordEmbedFailure counts an attempt; at the cap the chunk is flagged
// permanently failed and leaves the embedding queue.
func (s *Store) RecordEmbedFailure(ctx context.Context, chunkID string, maxAttempts int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE article_chunks SET
			embed_attempts = embed_attempts + 1,
			embed_failed = (embed_attempts + 1 >= $2)
		WHERE id = $1`, chunkID, maxAttempts)
	return err
}

// ClearEmbeddingsForModel empties vectors produced by a different model so
// the embedding worker regenerates them. Used when the deployment switches
// embedding models.
func (s *Store) ClearEmbeddingsForModel(ctx context.Context, keepModel string, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE article_chunks SET
			embedding = NULL,
			embedding_model = '',
			embed_attempts = 0,
			embed_failed = false
		WHERE id IN (
			SELECT id FROM article_chunks
			WHERE embedding IS NOT NULL AND embedding_model <> $1
			LIMIT $2
		)`, keepModel, limit)
	if err != nil {
		return 0, fmt.Errorf("clear embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RefreshFTS fills missing tsvector columns in one server-side batch.
// The analyzer follows the chunk language; anything not Russian gets the
// english configuration.
func (s *Store) RefreshFTS(ctx context.Context, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE article_chunks SET
			fts = to_tsvector(
				CASE WHEN language = 'ru' THEN 'russian' ELSE 'english' END::regconfig,
				title || ' ' || text)
		WHERE id IN (
			SELECT id FROM article_chunks WHERE fts IS NULL
			ORDER BY created_at ASC
			LIMIT $1
		)`, limit)
	if err != nil {
		return 0, fmt.Errorf("refresh fts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// IndexStats summarizes chunk readiness for the health endpoint.
type IndexStats struct {
	Total        int64
	WithVector   int64
	WithFTS      int64
	EmbedFailed  int64
	PendingEmbed int64
}

func (s *Store) ChunkIndexStats(ctx context.Context) (IndexStats, error) {
	var st IndexStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
			count(embedding),
			count(fts),
			count(*) FILTER (WHERE embed_failed),
			count(*) FILTER (WHERE embedding IS NULL AND NOT embed_failed)
		FROM article_chunks`).Scan(
		&st.Total, &st.WithVector, &st.WithFTS, &st.EmbedFailed, &st.PendingEmbed)
	if err != nil {
		return st, fmt.Errorf("chunk index stats: %w", err)
	}
	return st, nil
}
