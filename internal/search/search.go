// Package search is the hybrid retrieval engine: dense and lexical arms run
// in parallel over the chunk store, merged candidates pass through the
// off-topic guard, weighted scoring, category and date penalties, duplicate
// elimination, and domain diversification, with automatic time-window
// expansion when too few results survive.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/dedup"
	"github.com/langgraphsystem/rssnews/internal/store"
)

// windowChain is the auto-recovery expansion ladder.
var windowChain = []time.Duration{
	7 * 24 * time.Hour,
	14 * 24 * time.Hour,
	30 * 24 * time.Hour,
	90 * 24 * time.Hour,
	180 * 24 * time.Hour,
	365 * 24 * time.Hour,
}

// kCeiling bounds the k_final increase in the last recovery stage.
const kCeiling = 50

// Flags toggle individual pipeline stages.
type Flags struct {
	OffTopicGuard     bool
	CategoryPenalties bool
	DatePenalties     bool
	Diversify         bool
	UseCache          bool
}

// DefaultFlags enables every guard and leaves the cache off; the analytic
// surfaces opt in to caching, the conversational path must not.
func DefaultFlags() Flags {
	return Flags{
		OffTopicGuard:     true,
		CategoryPenalties: true,
		DatePenalties:     true,
		Diversify:         true,
	}
}

// Request is one retrieval call.
type Request struct {
	Query  string
	Window time.Duration // 0 means the configured default
	K      int
	Filter store.RetrievalFilter
	Flags  Flags
}

// Diagnostics reports what the pipeline did to one request.
type Diagnostics struct {
	Warnings          []string      `json:"warnings,omitempty"`
	Candidates        int           `json:"candidates"`
	OffTopicDropped   int           `json:"offtopic_dropped"`
	CategoryPenalized int           `json:"category_penalized"`
	DuplicatesRemoved int           `json:"duplicates_removed"`
	DomainsCapped     int           `json:"domains_capped"`
	FinalWindow       time.Duration `json:"final_window"`
	SemanticDegraded  bool          `json:"semantic_degraded,omitempty"`
	CacheHit          bool          `json:"cache_hit,omitempty"`
}

// Result is a ranked chunk list with its diagnostics.
type Result struct {
	Chunks      []*ScoredChunk
	Diagnostics Diagnostics
}

// Store is the candidate-fetch surface.
type Store interface {
	SemanticCandidates(ctx context.Context, qvec []float32, window time.Duration, f store.RetrievalFilter, limit int) ([]*store.Candidate, error)
	LexicalCandidates(ctx context.Context, query, lang string, qvec []float32, window time.Duration, f store.RetrievalFilter, limit int) ([]*store.Candidate, error)
	RecentChunks(ctx context.Context, window time.Duration, f store.RetrievalFilter, limit int) ([]*store.Candidate, error)
}

// QueryEmbedder embeds query text into the chunk vector space.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher executes hybrid retrieval.
type Searcher struct {
	store    Store
	embedder QueryEmbedder
	rankCfg  atomic.Pointer[config.RankConfig]
	trusted  []string
	deduper  *dedup.Deduper
	penal    *penalizer
	cache    *expirable.LRU[string, *Result]
	counters *Counters
	log      *slog.Logger
	now      func() time.Time
}

// New builds a Searcher.
func New(st Store, emb QueryEmbedder, cfg config.RankConfig, trusted []string, log *slog.Logger) *Searcher {
	s := &Searcher{
		store:    st,
		embedder: emb,
		trusted:  trusted,
		deduper:  dedup.New(),
		penal:    newPenalizer(),
		cache:    expirable.NewLRU[string, *Result](cfg.CacheSize, nil, cfg.CacheTTL),
		counters: &Counters{},
		log:      log.With(slog.String("component", "search")),
		now:      time.Now,
	}
	s.rankCfg.Store(&cfg)
	return s
}

// rank returns the current scoring configuration.
func (s *Searcher) rank() config.RankConfig { return *s.rankCfg.Load() }

// UpdateRankConfig swaps scoring knobs at runtime. The persisted config
// table feeds this, so operator tuning takes effect without a restart.
// Cached results scored under the old knobs are dropped.
func (s *Searcher) UpdateRankConfig(cfg config.RankConfig) {
	s.rankCfg.Store(&cfg)
	s.cache.Purge()
}

// Counters exposes the accumulated counters.
func (s *Searcher) Counters() CounterSnapshot { return s.counters.Snapshot() }

// Retrieve runs the full pipeline with auto-recovery.
func (s *Searcher) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if req.K <= 0 {
		req.K = 10
	}
	if req.Window <= 0 {
		req.Window = s.rank().DefaultWindow
	}

	// An impossible date range is not a miss to recover from: report the
	// conflict and return nothing.
	if f := req.Filter; f.AfterDate != nil && f.BeforeDate != nil && f.AfterDate.After(*f.BeforeDate) {
		return &Result{Diagnostics: Diagnostics{
			Warnings:    []string{"filter_conflict"},
			FinalWindow: req.Window,
		}}, nil
	}

	if req.Flags.UseCache {
		if cached, ok := s.cache.Get(s.cacheKey(req)); ok {
			s.counters.CacheHits.Add(1)
			hit := *cached
			hit.Diagnostics.CacheHit = true
			return &hit, nil
		}
	}

	res, err := s.retrieveWithRecovery(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Flags.UseCache {
		s.cache.Add(s.cacheKey(req), res)
	}
	return res, nil
}

func (s *Searcher) retrieveWithRecovery(ctx context.Context, req Request) (*Result, error) {
	window := req.Window
	res, err := s.retrieveOnce(ctx, req, window, req.Filter, req.Flags, req.K)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return res, nil
	}

	minNeeded := s.rank().MinResults
	if req.K < minNeeded {
		minNeeded = req.K
	}

	// Stage 1: widen the window along the chain.
	for len(res.Chunks) < minNeeded {
		next, ok := nextWindow(window)
		if !ok {
			break
		}
		window = next
		warning := "expanded_window_to_" + windowName(window)
		s.log.Warn("auto-recovery window expansion",
			slog.String("query", req.Query),
			slog.String("window", windowName(window)))
		s.counters.WindowExpansions.Add(1)

		wider, err := s.retrieveOnce(ctx, req, window, req.Filter, req.Flags, req.K)
		if err != nil {
			return nil, err
		}
		if len(wider.Chunks) > len(res.Chunks) {
			wider.Diagnostics.Warnings = append(res.Diagnostics.Warnings, warning)
			res = wider
		} else {
			res.Diagnostics.Warnings = append(res.Diagnostics.Warnings, warning)
			res.Diagnostics.FinalWindow = window
		}
	}

	// Stage 2: relax language and sources.
	if len(res.Chunks) == 0 && (req.Filter.Lang != "" || len(req.Filter.Sources) > 0) {
		relaxed := req.Filter
		relaxed.Lang = ""
		relaxed.Sources = nil
		warnings := append(res.Diagnostics.Warnings, "relaxed_lang_and_sources")

		res, err = s.retrieveOnce(ctx, req, window, relaxed, req.Flags, req.K)
		if err != nil {
			return nil, err
		}
		res.Diagnostics.Warnings = warnings
	}

	// Stage 3: drop the guard and raise k.
	if len(res.Chunks) == 0 && req.Flags.OffTopicGuard {
		unguarded := req.Flags
		unguarded.OffTopicGuard = false
		k := req.K
		if k < kCeiling {
			k = kCeiling
		}
		warnings := append(res.Diagnostics.Warnings, "disabled_offtopic_guard")

		relaxed := req.Filter
		relaxed.Lang = ""
		relaxed.Sources = nil
		res, err = s.retrieveOnce(ctx, req, window, relaxed, unguarded, k)
		if err != nil {
			return nil, err
		}
		res.Diagnostics.Warnings = warnings
	}

	return res, nil
}

// retrieveOnce is one pass of the nine pipeline steps at a fixed window.
func (s *Searcher) retrieveOnce(ctx context.Context, req Request, window time.Duration, filter store.RetrievalFilter, flags Flags, k int) (*Result, error) {
	diag := Diagnostics{FinalWindow: window}

	// Empty query lists recent chunks; scoring is recency-only.
	if strings.TrimSpace(req.Query) == "" {
		cands, err := s.store.RecentChunks(ctx, window, filter, k)
		if err != nil {
			return nil, fmt.Errorf("recent chunks: %w", err)
		}
		return s.finish(cands, diag, flags, k), nil
	}

	// Step 1: query embedding. Failure degrades to lexical-only.
	qvec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		s.log.Warn("query embedding failed, lexical-only mode",
			slog.String("error", err.Error()))
		diag.SemanticDegraded = true
		qvec = nil
	}

	// Step 2: candidate fetch, both arms in parallel, 2k each.
	limit := 2 * k
	var semantic, lexical []*store.Candidate
	g, gctx := errgroup.WithContext(ctx)
	if qvec != nil {
		g.Go(func() error {
			var err error
			semantic, err = s.store.SemanticCandidates(gctx, qvec, window, filter, limit)
			return err
		})
	}
	g.Go(func() error {
		var err error
		lexical, err = s.store.LexicalCandidates(gctx, req.Query, filter.Lang, qvec, window, filter, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("candidate fetch: %w", err)
	}

	merged := mergeCandidates(semantic, lexical)
	diag.Candidates = len(merged)
	s.counters.CandidatesConsidered.Add(int64(len(merged)))

	// Step 3: off-topic guard, only meaningful when the semantic arm ran.
	if flags.OffTopicGuard && qvec != nil {
		kept := merged[:0]
		minCosine := s.rank().MinCosine
		for _, c := range merged {
			if c.Similarity >= minCosine {
				kept = append(kept, c)
			} else {
				diag.OffTopicDropped++
			}
		}
		merged = kept
		s.counters.OffTopicDropped.Add(int64(diag.OffTopicDropped))
	}

	return s.scoreAndFinish(merged, diag, flags, k), nil
}

// scoreAndFinish runs steps 4 through 9 over merged candidates.
func (s *Searcher) scoreAndFinish(cands []*store.Candidate, diag Diagnostics, flags Flags, k int) *Result {
	rc := s.rank()
	sc := newScorer(rc, s.trusted, s.now())

	scored := make([]*ScoredChunk, 0, len(cands))
	for _, c := range cands {
		ch := &ScoredChunk{Candidate: *c}
		sc.score(ch)

		if flags.CategoryPenalties {
			if factor, _ := s.penal.apply(ch.Title, ch.Text); factor < 1.0 {
				ch.Score *= factor
				diag.CategoryPenalized++
				s.counters.CategoryPenalized.Add(1)
			}
		}
		if flags.DatePenalties && ch.PublishedAt == nil {
			ch.Score *= 0.3
		}
		scored = append(scored, ch)
	}

	scored, removed := s.dedupe(scored)
	diag.DuplicatesRemoved = removed
	s.counters.DuplicatesRemoved.Add(int64(removed))

	if flags.Diversify {
		var capped int
		scored, capped = diversify(scored, rc.MaxPerDomain)
		diag.DomainsCapped = capped
		s.counters.DomainsCapped.Add(int64(capped))
	}

	sort.Slice(scored, func(i, j int) bool { return rankLess(scored[i], scored[j]) })
	if len(scored) > k {
		scored = scored[:k]
	}
	return &Result{Chunks: scored, Diagnostics: diag}
}

// finish scores a recency listing without penalties or guards.
func (s *Searcher) finish(cands []*store.Candidate, diag Diagnostics, flags Flags, k int) *Result {
	return s.scoreAndFinish(cands, diag, Flags{Diversify: flags.Diversify}, k)
}

// mergeCandidates joins the two arms by chunk id, keeping the maximum of
// each component when a chunk appears in both.
func mergeCandidates(semantic, lexical []*store.Candidate) []*store.Candidate {
	byID := make(map[string]*store.Candidate, len(semantic)+len(lexical))
	var order []string
	for _, c := range semantic {
		byID[c.ChunkID] = c
		order = append(order, c.ChunkID)
	}
	for _, c := range lexical {
		if existing, ok := byID[c.ChunkID]; ok {
			if c.Lexical > existing.Lexical {
				existing.Lexical = c.Lexical
			}
			if c.Similarity > existing.Similarity {
				existing.Similarity = c.Similarity
			}
			continue
		}
		byID[c.ChunkID] = c
		order = append(order, c.ChunkID)
	}

	out := make([]*store.Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func nextWindow(current time.Duration) (time.Duration, bool) {
	for _, w := range windowChain {
		if w > current {
			return w, true
		}
	}
	return 0, false
}

// windowName renders a window the way the expansion chain names it.
func windowName(w time.Duration) string {
	days := int(w / (24 * time.Hour))
	switch {
	case days >= 365:
		return "1y"
	case days >= 180:
		return "6m"
	case days >= 90:
		return "3m"
	default:
		return fmt.Sprintf("%dd", days)
	}
}

// cacheKey hashes the full request identity including the flag profile.
func (s *Searcher) cacheKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%+v",
		req.Query, req.Window, req.Filter.Lang,
		strings.Join(req.Filter.Sources, ","), req.K, req.Flags)
	if req.Filter.AfterDate != nil {
		fmt.Fprintf(h, "|a:%d", req.Filter.AfterDate.Unix())
	}
	if req.Filter.BeforeDate != nil {
		fmt.Fprintf(h, "|b:%d", req.Filter.BeforeDate.Unix())
	}
	return hex.EncodeToString(h.Sum(nil))
}
