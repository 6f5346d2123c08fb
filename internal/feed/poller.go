// Package feed polls registered RSS/Atom sources and enqueues new items for
// the article worker. Polling is conditional (ETag / If-Modified-Since) and
// rate limited per publisher domain.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/langgraphsystem/rssnews/internal/config"
	apperr "github.com/langgraphsystem/rssnews/internal/errors"
	"github.com/langgraphsystem/rssnews/internal/httpx"
	"github.com/langgraphsystem/rssnews/internal/store"
	"github.com/langgraphsystem/rssnews/internal/urlutil"
)

const (
	pollConcurrency = 8

	// pollAttempts is how many tries a transiently failing fetch gets inside
	// one cycle before the failure counts against the feed's health.
	pollAttempts   = 3
	pollRetryDelay = 500 * time.Millisecond
)

// Store is the persistence surface the poller needs.
type Store interface {
	EnsureRawPartitions(ctx context.Context) error
	DueFeeds(ctx context.Context, limit int) ([]*store.Feed, error)
	RecordPoll(ctx context.Context, feedID int64, r store.PollResult) error
	EnqueueRaw(ctx context.Context, feedID int64, url, canonicalURL, urlHash, rssTitle string, rssPublished *time.Time, window time.Duration) (int64, bool, error)
	RecordBatchRun(ctx context.Context, r *store.BatchRun) error
}

// Poller runs one polling cycle over all due feeds.
type Poller struct {
	store      Store
	client     *http.Client
	limiter    *httpx.DomainLimiter
	cfg        config.FeedConfig
	log        *slog.Logger
	workerID   string
	now        func() time.Time
	retryDelay time.Duration
}

// New builds a Poller.
func New(st Store, cfg config.FeedConfig, log *slog.Logger) *Poller {
	host, _ := os.Hostname()
	return &Poller{
		store:      st,
		client:     httpx.NewClient(cfg.FetchTimeout),
		limiter:    httpx.NewDomainLimiter(cfg.PerDomainRPS),
		cfg:        cfg,
		log:        log.With(slog.String("component", "feed_poller")),
		workerID:   fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:        time.Now,
		retryDelay: pollRetryDelay,
	}
}

// CycleStats summarizes one polling cycle.
type CycleStats struct {
	Feeds       int
	NotModified int
	NewItems    int
	Failures    int
}

// RunOnce polls every due feed once and records a batch run.
func (p *Poller) RunOnce(ctx context.Context) (CycleStats, error) {
	started := p.now()

	if err := p.store.EnsureRawPartitions(ctx); err != nil {
		return CycleStats{}, fmt.Errorf("ensure partitions: %w", err)
	}

	feeds, err := p.store.DueFeeds(ctx, p.cfg.BatchSize)
	if err != nil {
		return CycleStats{}, fmt.Errorf("load due feeds: %w", err)
	}
	if len(feeds) == 0 {
		return CycleStats{}, nil
	}

	type outcome struct {
		notModified bool
		newItems    int
		failed      bool
		errKind     string
	}
	outcomes := make([]outcome, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for i, f := range feeds {
		g.Go(func() error {
			res, err := p.fetchWithRetry(gctx, f)
			if err != nil {
				outcomes[i] = outcome{failed: true, errKind: string(apperr.KindOf(err))}
				p.log.Warn("feed poll failed",
					slog.String("feed", f.URL),
					slog.String("error", err.Error()))
				res = store.PollResult{
					NextCrawlAt: p.failureNextCrawl(f, err),
					Err:         err.Error(),
				}
			} else {
				outcomes[i] = outcome{notModified: res.NotModified, newItems: res.NewItems}
			}
			if rerr := p.store.RecordPoll(gctx, f.ID, res); rerr != nil {
				p.log.Error("record poll failed",
					slog.String("feed", f.URL),
					slog.String("error", rerr.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	var stats CycleStats
	stats.Feeds = len(feeds)
	errCounts := map[string]int{}
	for _, o := range outcomes {
		switch {
		case o.failed:
			stats.Failures++
			errCounts[o.errKind]++
		case o.notModified:
			stats.NotModified++
		default:
			stats.NewItems += o.newItems
		}
	}

	run := &store.BatchRun{
		Stage:       "poll",
		WorkerID:    p.workerID,
		StartedAt:   started,
		FinishedAt:  p.now(),
		InputCount:  stats.Feeds,
		OutputCount: stats.NewItems,
		ErrorCounts: errCounts,
	}
	if err := p.store.RecordBatchRun(ctx, run); err != nil {
		p.log.Warn("record batch run failed", slog.String("error", err.Error()))
	}

	p.log.Info("poll cycle complete",
		slog.Int("feeds", stats.Feeds),
		slog.Int("new_items", stats.NewItems),
		slog.Int("not_modified", stats.NotModified),
		slog.Int("failures", stats.Failures))
	return stats, nil
}

// fetchWithRetry retries transient fetch failures with exponential backoff.
// Rate-limited feeds are not hammered again in the same cycle; their
// Retry-After is honored by the failure scheduling instead.
func (p *Poller) fetchWithRetry(ctx context.Context, f *store.Feed) (store.PollResult, error) {
	delay := p.retryDelay
	var res store.PollResult
	var err error
	for attempt := 1; ; attempt++ {
		res, err = p.pollFeed(ctx, f)
		if err == nil || apperr.KindOf(err) != apperr.KindTransient || attempt >= pollAttempts {
			return res, err
		}
		p.log.Debug("transient fetch failure, retrying",
			slog.String("feed", f.URL),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return store.PollResult{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (p *Poller) pollFeed(ctx context.Context, f *store.Feed) (store.PollResult, error) {
	if domain := urlutil.ETLD1(f.URL); domain != "" {
		if werr := p.limiter.Wait(ctx, domain); werr != nil {
			return store.PollResult{}, apperr.Wrap(apperr.KindTransient, "rate limiter wait", werr)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return store.PollResult{}, apperr.Wrap(apperr.KindPermanent, "build request", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	if f.ETag != "" {
		req.Header.Set("If-None-Match", f.ETag)
	}
	if f.LastModified != "" {
		req.Header.Set("If-Modified-Since", f.LastModified)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return store.PollResult{}, apperr.Wrap(apperr.KindTransient, "fetch feed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return store.PollResult{
			Success:      true,
			NotModified:  true,
			ETag:         f.ETag,
			LastModified: f.LastModified,
			NextCrawlAt:  p.now().Add(f.CrawlInterval),
		}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		delay := httpx.RetryAfter(resp.Header, p.now())
		if delay == 0 {
			delay = f.CrawlInterval
		}
		return store.PollResult{}, apperr.New(apperr.KindRateLimit,
			fmt.Sprintf("feed returned %d, retry after %s", resp.StatusCode, delay)).
			WithDetail("retry_after", delay.String())

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return store.PollResult{}, apperr.New(apperr.KindPermanent,
			fmt.Sprintf("feed returned %d", resp.StatusCode))

	case resp.StatusCode != http.StatusOK:
		return store.PollResult{}, apperr.New(apperr.KindTransient,
			fmt.Sprintf("feed returned %d", resp.StatusCode))
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return store.PollResult{}, apperr.Wrap(apperr.KindParse, "parse feed", err)
	}

	window := time.Duration(p.cfg.DedupWindowDays) * 24 * time.Hour
	newItems := 0
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		canonical := urlutil.Canonicalize(item.Link)
		_, enqueued, err := p.store.EnqueueRaw(ctx, f.ID, item.Link, canonical,
			urlutil.Hash(canonical), item.Title, itemPublished(item), window)
		if err != nil {
			p.log.Warn("enqueue failed",
				slog.String("url", item.Link),
				slog.String("error", err.Error()))
			continue
		}
		if enqueued {
			newItems++
		}
	}

	return store.PollResult{
		Success:      true,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		NewItems:     newItems,
		NextCrawlAt:  p.now().Add(f.CrawlInterval),
	}, nil
}

// failureNextCrawl backs off linearly with the failure streak, capped at six
// hours. Rate-limited feeds honor the server's Retry-After instead.
func (p *Poller) failureNextCrawl(f *store.Feed, err error) time.Time {
	var appErr *apperr.Error
	if apperr.As(err, &appErr) && appErr.Kind == apperr.KindRateLimit {
		if d, perr := time.ParseDuration(appErr.Details["retry_after"]); perr == nil && d > 0 {
			return p.now().Add(d)
		}
	}
	backoff := f.CrawlInterval * time.Duration(f.ConsecutiveFailures+2)
	if backoff > 6*time.Hour {
		backoff = 6 * time.Hour
	}
	return p.now().Add(backoff)
}

// itemPublished prefers the parsed timestamp and falls back to permissive
// date parsing of the raw string.
func itemPublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}
	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return &t
		}
	}
	return nil
}
