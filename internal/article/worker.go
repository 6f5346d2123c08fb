package article

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/dedup"
	apperr "github.com/langgraphsystem/rssnews/internal/errors"
	"github.com/langgraphsystem/rssnews/internal/httpx"
	"github.com/langgraphsystem/rssnews/internal/store"
	"github.com/langgraphsystem/rssnews/internal/textutil"
	"github.com/langgraphsystem/rssnews/internal/urlutil"
)

const (
	maxBodyBytes = 10 << 20
	sameDayPool  = 50
)

// Store is the persistence surface the worker needs.
type Store interface {
	SweepExpiredLocks(ctx context.Context) (int64, error)
	ClaimPending(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*store.RawArticle, error)
	MarkStored(ctx context.Context, ra *store.RawArticle) error
	MarkDuplicate(ctx context.Context, id int64, fetchedAt time.Time, originalArticleID int64) error
	MarkSkipped(ctx context.Context, id int64, fetchedAt time.Time, reason string) error
	MarkError(ctx context.Context, id int64, fetchedAt time.Time, errMsg string, retryable bool, maxRetries int) error
	FindArticleByTextHash(ctx context.Context, textHash string) (*store.Article, error)
	SameDayArticlesByDomain(ctx context.Context, domain string, day time.Time, limit int) ([]*store.Article, error)
	InsertArticle(ctx context.Context, a *store.Article) (int64, error)
	DemoteArticle(ctx context.Context, loserID, winnerID int64) error
	FeedByID(ctx context.Context, id int64) (*store.Feed, error)
	RecordBatchRun(ctx context.Context, r *store.BatchRun) error
}

// Worker processes claimed raw articles through fetch, extract, dedup, and
// store.
type Worker struct {
	store    Store
	client   *http.Client
	limiter  *httpx.DomainLimiter
	deduper  *dedup.Deduper
	cfg      config.WorkConfig
	ua       string
	log      *slog.Logger
	workerID string
	now      func() time.Time

	feedMu    sync.Mutex
	feedCache map[int64]*store.Feed
}

// New builds a Worker.
func New(st Store, cfg config.WorkConfig, userAgent string, log *slog.Logger) *Worker {
	host, _ := os.Hostname()
	return &Worker{
		store:     st,
		client:    httpx.NewClient(cfg.FetchTimeout),
		limiter:   httpx.NewDomainLimiter(1),
		deduper:   dedup.New(dedup.WithThreshold(cfg.SoftDupJaccard)),
		cfg:       cfg,
		ua:        "rssnews/1.0",
		log:       log.With(slog.String("component", "article_worker")),
		workerID:  fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:       time.Now,
		feedCache: map[int64]*store.Feed{},
	}
}

// CycleStats summarizes one work cycle.
type CycleStats struct {
	Claimed    int
	Stored     int
	Duplicates int
	Skipped    int
	Errors     int
}

// RunOnce sweeps stale locks, claims a batch, and processes it with the
// configured parallelism.
func (w *Worker) RunOnce(ctx context.Context) (CycleStats, error) {
	started := w.now()

	if swept, err := w.store.SweepExpiredLocks(ctx); err != nil {
		w.log.Warn("lock sweep failed", slog.String("error", err.Error()))
	} else if swept > 0 {
		w.log.Info("reclaimed expired locks", slog.Int64("count", swept))
	}

	batch, err := w.store.ClaimPending(ctx, w.workerID, w.cfg.BatchSize, w.cfg.LockTTL)
	if err != nil {
		return CycleStats{}, fmt.Errorf("claim pending: %w", err)
	}
	if len(batch) == 0 {
		return CycleStats{}, nil
	}

	results := make([]string, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for i, ra := range batch {
		g.Go(func() error {
			results[i] = w.processOne(gctx, ra)
			return nil
		})
	}
	_ = g.Wait()

	var stats CycleStats
	stats.Claimed = len(batch)
	errCounts := map[string]int{}
	for _, r := range results {
		switch r {
		case "stored":
			stats.Stored++
		case "duplicate":
			stats.Duplicates++
		case "skipped":
			stats.Skipped++
		default:
			stats.Errors++
			errCounts[r]++
		}
	}

	run := &store.BatchRun{
		Stage:       "work",
		WorkerID:    w.workerID,
		StartedAt:   started,
		FinishedAt:  w.now(),
		InputCount:  stats.Claimed,
		OutputCount: stats.Stored,
		ErrorCounts: errCounts,
	}
	if err := w.store.RecordBatchRun(ctx, run); err != nil {
		w.log.Warn("record batch run failed", slog.String("error", err.Error()))
	}

	w.log.Info("work cycle complete",
		slog.Int("claimed", stats.Claimed),
		slog.Int("stored", stats.Stored),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("skipped", stats.Skipped),
		slog.Int("errors", stats.Errors))
	return stats, nil
}

// processOne runs one raw article through the pipeline and records the
// terminal state. The returned string is the outcome label for stats.
func (w *Worker) processOne(ctx context.Context, ra *store.RawArticle) string {
	outcome, err := w.pipeline(ctx, ra)
	if err == nil {
		return outcome
	}

	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindParse, apperr.KindPermanent:
		if serr := w.store.MarkSkipped(ctx, ra.ID, ra.FetchedAt, string(kind)+": "+err.Error()); serr != nil {
			w.log.Error("mark skipped failed", slog.String("error", serr.Error()))
		}
		return "skipped"
	default:
		if serr := w.store.MarkError(ctx, ra.ID, ra.FetchedAt, err.Error(),
			apperr.IsRetryable(err), w.cfg.MaxRetries); serr != nil {
			w.log.Error("mark error failed", slog.String("error", serr.Error()))
		}
		return string(kind)
	}
}

func (w *Worker) pipeline(ctx context.Context, ra *store.RawArticle) (string, error) {
	feed, err := w.feed(ctx, ra.FeedID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "load feed", err)
	}

	html, finalURL, err := w.fetch(ctx, ra.CanonicalURL)
	if err != nil {
		return "", err
	}

	// Redirects can land on a different canonical URL; keep the final one.
	canonical := ra.CanonicalURL
	if c := urlutil.Canonicalize(finalURL); c != "" && c != canonical {
		canonical = c
	}

	ex, err := Extract(html, canonical, feed.LangHint, ra.RSSPublished)
	if err != nil {
		return "", err
	}
	if ex.WordCount < w.cfg.MinWordCount {
		return "", apperr.New(apperr.KindParse,
			fmt.Sprintf("body too short: %d words", ex.WordCount))
	}
	if ex.Title == "" {
		ex.Title = ra.RSSTitle
	}

	domain := urlutil.ETLD1(canonical)
	if domain == "" {
		return "", apperr.New(apperr.KindPermanent, "no source domain in url")
	}

	textHash := textutil.Hash(ex.Text)

	// Hard duplicate: exact text hash match anywhere in the corpus.
	if existing, err := w.store.FindArticleByTextHash(ctx, textHash); err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "hash lookup", err)
	} else if existing != nil {
		if err := w.store.MarkDuplicate(ctx, ra.ID, ra.FetchedAt, existing.ID); err != nil {
			return "", apperr.Wrap(apperr.KindTransient, "mark duplicate", err)
		}
		return "duplicate", nil
	}

	quality := Quality(QualityInput{
		WordCount:    ex.WordCount,
		Title:        ex.Title,
		HasAuthors:   len(ex.Authors) > 0,
		HasDate:      ex.PublishedAt != nil,
		PubEstimated: ex.PubEstimated,
		TrustScore:   feed.TrustScore,
		PublishedAt:  ex.PublishedAt,
	})

	art := &store.Article{
		CanonicalURL:      canonical,
		SourceDomain:      domain,
		Title:             ex.Title,
		TitleNorm:         textutil.NormalizeTitle(ex.Title),
		CleanText:         ex.Text,
		Authors:           ex.Authors,
		Language:          ex.Language,
		Category:          Categorize(ex.Title, ex.Text),
		QualityScore:      quality,
		TextHash:          textHash,
		PublishedAt:       ex.PublishedAt,
		PubEstimated:      ex.PubEstimated,
		ProcessingVersion: 1,
	}

	storeArticle := func() (string, error) {
		id, err := w.store.InsertArticle(ctx, art)
		if err != nil {
			return "", apperr.Wrap(apperr.KindTransient, "insert article", err)
		}
		art.ID = id
		ra.CanonicalURL = canonical
		ra.CleanText = ex.Text
		ra.TextHash = textHash
		ra.Language = ex.Language
		ra.Category = art.Category
		ra.PublishedAt = ex.PublishedAt
		ra.PubEstimated = ex.PubEstimated
		ra.WordCount = ex.WordCount
		ra.QualityScore = quality
		if err := w.store.MarkStored(ctx, ra); err != nil {
			return "", apperr.Wrap(apperr.KindTransient, "mark stored", err)
		}
		return "stored", nil
	}

	// Soft duplicate: near-identical story from the same domain published
	// the same day. The richer telling wins; a better newcomer displaces
	// the stored canonical instead of being discarded.
	day := w.now()
	if ex.PublishedAt != nil {
		day = *ex.PublishedAt
	}
	pool, err := w.store.SameDayArticlesByDomain(ctx, domain, day, sameDayPool)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "same day articles", err)
	}
	docs := make([]dedup.Doc, 0, len(pool))
	for _, a := range pool {
		docs = append(docs, dedup.Doc{ID: a.ID, Text: a.CleanText})
	}
	if origID, sim, ok := w.deduper.FindNearDuplicate(ex.Text, docs); ok {
		var orig *store.Article
		for _, a := range pool {
			if a.ID == origID {
				orig = a
				break
			}
		}
		w.log.Debug("near duplicate",
			slog.String("url", canonical),
			slog.Int64("original", origID),
			slog.Float64("similarity", sim))

		if orig != nil && displaces(art, ex.WordCount, orig) {
			outcome, err := storeArticle()
			if err != nil {
				return "", err
			}
			if err := w.store.DemoteArticle(ctx, orig.ID, art.ID); err != nil {
				return "", apperr.Wrap(apperr.KindTransient, "demote article", err)
			}
			return outcome, nil
		}
		if err := w.store.MarkDuplicate(ctx, ra.ID, ra.FetchedAt, origID); err != nil {
			return "", apperr.Wrap(apperr.KindTransient, "mark duplicate", err)
		}
		return "duplicate", nil
	}

	return storeArticle()
}

// displaces decides the canonical between two near-duplicate tellings: a
// real publication date beats none, then the higher quality score, then the
// longer text.
func displaces(newcomer *store.Article, newcomerWords int, orig *store.Article) bool {
	newHasDate := newcomer.PublishedAt != nil && !newcomer.PubEstimated
	origHasDate := orig.PublishedAt != nil && !orig.PubEstimated
	if newHasDate != origHasDate {
		return newHasDate
	}
	if newcomer.QualityScore != orig.QualityScore {
		return newcomer.QualityScore > orig.QualityScore
	}
	return newcomerWords > len(strings.Fields(orig.CleanText))
}

// fetch downloads the page, returning the body and the post-redirect URL.
func (w *Worker) fetch(ctx context.Context, pageURL string) (html, finalURL string, err error) {
	if domain := urlutil.ETLD1(pageURL); domain != "" {
		if werr := w.limiter.Wait(ctx, domain); werr != nil {
			return "", "", apperr.Wrap(apperr.KindTransient, "rate limiter wait", werr)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindPermanent, "build request", err)
	}
	req.Header.Set("User-Agent", w.ua)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindTransient, "fetch article", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", "", apperr.New(apperr.KindRateLimit, "article fetch rate limited")
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnauthorized:
		return "", "", apperr.New(apperr.KindPermanent,
			fmt.Sprintf("article fetch returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return "", "", apperr.New(apperr.KindTransient,
			fmt.Sprintf("article fetch returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindTransient, "read body", err)
	}
	return string(body), resp.Request.URL.String(), nil
}

func (w *Worker) feed(ctx context.Context, id int64) (*store.Feed, error) {
	w.feedMu.Lock()
	if f, ok := w.feedCache[id]; ok {
		w.feedMu.Unlock()
		return f, nil
	}
	w.feedMu.Unlock()

	f, err := w.store.FeedByID(ctx, id)
	if err != nil {
		return nil, err
	}
	w.feedMu.Lock()
	w.feedCache[id] = f
	w.feedMu.Unlock()
	return f, nil
}
