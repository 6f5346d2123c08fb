// Package store is the persistence layer: feeds, raw articles, canonical
// articles, chunks with pgvector embeddings and tsvector FTS, the persisted
// config table, and batch-run records. One Postgres database carries the
// relational, vector, and full-text state so cross-stage transitions commit
// in a single transaction.
package store

import (
	"fmt"
	"time"
)

// FeedStatus is the feed lifecycle state.
type FeedStatus string

const (
	FeedActive FeedStatus = "active"
	FeedPaused FeedStatus = "paused"
	FeedDead   FeedStatus = "dead"
)

// Feed is a registered RSS/Atom source, keyed by canonical feed URL.
type Feed struct {
	ID                  int64
	URL                 string
	LangHint            string
	Priority            int // rank, 1 is highest
	TrustScore          int // 0-100
	ETag                string
	LastModified        string
	HealthScore         int // 0-100, auto-pause below 50
	ConsecutiveFailures int
	DailyQuota          int
	FetchedToday        int
	CrawlInterval       time.Duration
	Status              FeedStatus
	LastCrawledAt       *time.Time
	NextCrawlAt         time.Time
}

// RawStatus is the raw-article processing state.
type RawStatus string

const (
	RawPending    RawStatus = "pending"
	RawProcessing RawStatus = "processing"
	RawStored     RawStatus = "stored"
	RawDuplicate  RawStatus = "duplicate"
	RawError      RawStatus = "error"
	RawSkipped    RawStatus = "skipped"
)

// RawArticle is one (feed, canonical URL) sighting moving through the
// ingestion state machine.
type RawArticle struct {
	ID            int64
	FeedID        int64
	URL           string
	CanonicalURL  string
	URLHash       string
	RSSTitle      string
	RSSPublished  *time.Time
	HTML          string
	CleanText     string
	TextHash      string
	Language      string
	Category      string
	PublishedAt   *time.Time
	PubEstimated  bool
	WordCount     int
	QualityScore  float64
	Status        RawStatus
	RetryCount    int
	LastError     string
	SkipReason    string
	LockOwner     string
	LockExpiresAt *time.Time
	DupOriginalID *int64
	FetchedAt     time.Time
}

// Article is the canonical deduplicated article, one per unique text hash.
type Article struct {
	ID                int64
	CanonicalURL      string
	SourceDomain      string // eTLD+1
	Title             string
	TitleNorm         string
	CleanText         string
	Authors           []string
	Language          string
	Category          string
	Tags              []string
	QualityScore      float64
	TextHash          string
	PublishedAt       *time.Time
	PubEstimated      bool
	ReadyForChunking  bool
	ChunkingCompleted bool
	ProcessingVersion int
	DupOf             *int64 // set when a richer retelling displaced this article
	CreatedAt         time.Time
}

// SemanticType labels a chunk's position in the article.
type SemanticType string

const (
	ChunkIntro      SemanticType = "intro"
	ChunkBody       SemanticType = "body"
	ChunkList       SemanticType = "list"
	ChunkConclusion SemanticType = "conclusion"
	ChunkQuote      SemanticType = "quote"
)

// Chunk is the unit of embedding, indexing, and retrieval. Retrieval-time
// fields (domain, date, language, category, quality, title) are denormalized
// so the hybrid query never joins for scoring.
type Chunk struct {
	ID                string // {article_id}#{chunk_index}
	ArticleID         int64
	ProcessingVersion int
	Index             int
	Text              string
	CharStart         int
	CharEnd           int
	Type              SemanticType
	Importance        float64

	SourceDomain string
	PublishedAt  *time.Time
	Language     string
	Category     string
	Quality      float64
	Title        string
	WordCount    int

	EmbeddingModel string
	EmbedAttempts  int
	EmbedFailed    bool
	HasEmbedding   bool
	HasFTS         bool
}

// ChunkID builds the composite chunk identifier.
func ChunkID(articleID int64, index int) string {
	return fmt.Sprintf("%d#%d", articleID, index)
}

// Candidate is one retrieval candidate with its raw search components.
type Candidate struct {
	ChunkID      string
	ArticleID    int64
	Title        string
	URL          string
	SourceDomain string
	PublishedAt  *time.Time
	Language     string
	Category     string
	Quality      float64
	WordCount    int
	Text         string

	Similarity float64 // 1 - cosine distance, 0 when semantic is off
	Lexical    float64 // normalized ts_rank_cd in [0,1]
}

// BatchRun records one batch execution by any stage. Append-only.
type BatchRun struct {
	ID          int64
	Stage       string
	WorkerID    string
	StartedAt   time.Time
	FinishedAt  time.Time
	InputCount  int
	OutputCount int
	ErrorCounts map[string]int
}

// RetrievalFilter narrows the hybrid candidate query.
type RetrievalFilter struct {
	Sources    []string // eTLD+1 list
	Lang       string
	AfterDate  *time.Time
	BeforeDate *time.Time
}
