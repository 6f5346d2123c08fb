package search

import (
	"math"
	"time"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/store"
)

// ScoredChunk is a retrieval candidate with its final score and components.
type ScoredChunk struct {
	store.Candidate

	Freshness   float64
	SourceScore float64
	Score       float64
}

// scorer computes base scores from configured weights.
type scorer struct {
	weights config.RankConfig
	trusted map[string]struct{}
	now     time.Time
}

func newScorer(cfg config.RankConfig, trusted []string, now time.Time) *scorer {
	m := make(map[string]struct{}, len(trusted))
	for _, d := range trusted {
		m[d] = struct{}{}
	}
	return &scorer{weights: cfg, trusted: m, now: now}
}

// score fills the Freshness, SourceScore, and Score fields.
func (s *scorer) score(c *ScoredChunk) {
	c.Freshness = s.freshness(c.PublishedAt)
	c.SourceScore = s.sourceScore(c.SourceDomain)
	c.Score = s.weights.SemanticWeight*c.Similarity +
		s.weights.LexicalWeight*c.Lexical +
		s.weights.FreshnessWeight*c.Freshness +
		s.weights.SourceWeight*c.SourceScore
}

// freshness decays exponentially with age in hours. Undated chunks score
// zero here and additionally take the date penalty later.
func (s *scorer) freshness(published *time.Time) float64 {
	if published == nil {
		return 0
	}
	age := s.now.Sub(*published)
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Hours() / s.weights.FreshnessTau.Hours())
}

func (s *scorer) sourceScore(domain string) float64 {
	if _, ok := s.trusted[domain]; ok {
		return 1.0
	}
	return 0.5
}

// rankLess orders scored chunks: score desc, dated before undated, newer
// first, then chunk id for a stable total order.
func rankLess(a, b *ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	aDated, bDated := a.PublishedAt != nil, b.PublishedAt != nil
	if aDated != bDated {
		return aDated
	}
	if aDated && !a.PublishedAt.Equal(*b.PublishedAt) {
		return a.PublishedAt.After(*b.PublishedAt)
	}
	return a.ChunkID < b.ChunkID
}
