package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// candidateColumns are the denormalized fields scoring needs, aliased from
// the subquery join.
const candidateColumns = `c.id, c.article_id, c.title, a.canonical_url,
	c.source_domain, c.published_at, c.language, c.category, c.quality_score,
	c.word_count, c.text`

// buildFilterSQL renders the shared WHERE predicates. Missing publication
// dates pass the window filter; scoring penalizes them later.
func buildFilterSQL(args *[]any, window time.Duration, f RetrievalFilter) string {
	var b strings.Builder

	if window > 0 {
		*args = append(*args, window)
		fmt.Fprintf(&b, " AND (c.published_at >= now() - $%d::interval OR c.published_at IS NULL)", len(*args))
	}
	if f.Lang != "" && f.Lang != "auto" {
		*args = append(*args, f.Lang)
		fmt.Fprintf(&b, " AND c.language = $%d", len(*args))
	}
	if len(f.Sources) > 0 {
		*args = append(*args, f.Sources)
		fmt.Fprintf(&b, " AND c.source_domain = ANY($%d)", len(*args))
	}
	if f.AfterDate != nil {
		*args = append(*args, *f.AfterDate)
		fmt.Fprintf(&b, " AND c.published_at >= $%d", len(*args))
	}
	if f.BeforeDate != nil {
		*args = append(*args, *f.BeforeDate)
		fmt.Fprintf(&b, " AND c.published_at < $%d", len(*args))
	}
	return b.String()
}

// SemanticCandidates runs the dense arm: cosine similarity over chunks with
// embeddings, filters applied before the ANN scan narrows to limit. The
// halfvec cast matches the index expression.
func (s *Store) SemanticCandidates(ctx context.Context, qvec []float32, window time.Duration, f RetrievalFilter, limit int) ([]*Candidate, error) {
	args := []any{pgvector.NewVector(qvec)}
	filterSQL := buildFilterSQL(&args, window, f)
	args = append(args, limit)

	dist := fmt.Sprintf("c.embedding::halfvec(%d) <=> $1::halfvec(%d)", s.dim, s.dim)
	q := fmt.Sprintf(`
		SELECT %s, 1 - (%s) AS similarity
		FROM article_chunks c
		JOIN articles a ON a.id = c.article_id
		WHERE c.embedding IS NOT NULL
		  AND c.processing_version = a.processing_version%s
		ORDER BY %s
		LIMIT $%d`, candidateColumns, dist, filterSQL, dist, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic candidates: %w", err)
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ChunkID, &c.ArticleID, &c.Title, &c.URL,
			&c.SourceDomain, &c.PublishedAt, &c.Language, &c.Category,
			&c.Quality, &c.WordCount, &c.Text, &c.Similarity); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// LexicalCandidates runs the sparse arm: websearch-style tsquery matching
// with ts_rank_cd normalized into [0,1) via rank/(rank+1). When qvec is
// present each hit also carries its cosine similarity so purely-lexical
// candidates face the off-topic guard on their own evidence. Chunks still
// waiting on an embedding get similarity 0.
func (s *Store) LexicalCandidates(ctx context.Context, query, lang string, qvec []float32, window time.Duration, f RetrievalFilter, limit int) ([]*Candidate, error) {
	regconfig := "english"
	if lang == "ru" {
		regconfig = "russian"
	}

	simExpr := "0::float8"
	args := []any{regconfig, query}
	if qvec != nil {
		args = append(args, pgvector.NewVector(qvec))
		simExpr = fmt.Sprintf(
			"COALESCE(1 - (c.embedding::halfvec(%d) <=> $3::halfvec(%d)), 0)", s.dim, s.dim)
	}
	filterSQL := buildFilterSQL(&args, window, f)
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT %s, ts_rank_cd(c.fts, q, 32) AS lexical, %s AS similarity
		FROM article_chunks c
		JOIN articles a ON a.id = c.article_id,
		     websearch_to_tsquery($1::regconfig, $2) q
		WHERE c.fts @@ q
		  AND c.processing_version = a.processing_version%s
		ORDER BY lexical DESC
		LIMIT $%d`, candidateColumns, simExpr, filterSQL, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical candidates: %w", err)
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ChunkID, &c.ArticleID, &c.Title, &c.URL,
			&c.SourceDomain, &c.PublishedAt, &c.Language, &c.Category,
			&c.Quality, &c.WordCount, &c.Text, &c.Lexical, &c.Similarity); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// RecentChunks backs the empty-query listing: newest chunks inside the
// window with both scores zero, ordered purely by recency then quality.
func (s *Store) RecentChunks(ctx context.Context, window time.Duration, f RetrievalFilter, limit int) ([]*Candidate, error) {
	var args []any
	filterSQL := buildFilterSQL(&args, window, f)
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT %s
		FROM article_chunks c
		JOIN articles a ON a.id = c.article_id
		WHERE c.processing_version = a.processing_version%s
		ORDER BY c.published_at DESC NULLS LAST, c.quality_score DESC
		LIMIT $%d`, candidateColumns, filterSQL, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("recent chunks: %w", err)
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ChunkID, &c.ArticleID, &c.Title, &c.URL,
			&c.SourceDomain, &c.PublishedAt, &c.Language, &c.Category,
			&c.Quality, &c.WordCount, &c.Text); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
