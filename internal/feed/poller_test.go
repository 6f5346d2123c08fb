package feed

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/store"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example Wire</title>
<item>
  <title>Rates held steady</title>
  <link>https://example.com/story-1?utm_source=rss</link>
  <pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
</item>
<item>
  <title>Merger announced</title>
  <link>https://example.com/story-2</link>
</item>
<item>
  <title>No link item</title>
</item>
</channel></rss>`

type fakeStore struct {
	mu       sync.Mutex
	feeds    []*store.Feed
	enqueued []string
	polls    map[int64]store.PollResult
	runs     []*store.BatchRun
	dupHash  string
}

func newFakeStore(feeds ...*store.Feed) *fakeStore {
	return &fakeStore{feeds: feeds, polls: map[int64]store.PollResult{}}
}

func (f *fakeStore) EnsureRawPartitions(context.Context) error { return nil }

func (f *fakeStore) DueFeeds(context.Context, int) ([]*store.Feed, error) {
	return f.feeds, nil
}

func (f *fakeStore) RecordPoll(_ context.Context, feedID int64, r store.PollResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[feedID] = r
	return nil
}

func (f *fakeStore) EnqueueRaw(_ context.Context, _ int64, _, canonicalURL, urlHash, _ string, _ *time.Time, _ time.Duration) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if urlHash == f.dupHash {
		return 0, false, nil
	}
	f.enqueued = append(f.enqueued, canonicalURL)
	return int64(len(f.enqueued)), true, nil
}

func (f *fakeStore) RecordBatchRun(_ context.Context, r *store.BatchRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, r)
	return nil
}

func testConfig() config.FeedConfig {
	cfg := config.Default().Feed
	cfg.PerDomainRPS = 1000 // tests should not wait on the limiter
	return cfg
}

func testFeed(url string) *store.Feed {
	return &store.Feed{ID: 1, URL: url, CrawlInterval: 15 * time.Minute, Status: store.FeedActive}
}

func TestRunOnceEnqueuesNewItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jun 2025 10:00:00 GMT")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	fs := newFakeStore(testFeed(srv.URL))
	p := New(fs, testConfig(), slog.Default())

	stats, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Feeds)
	assert.Equal(t, 2, stats.NewItems)
	assert.Zero(t, stats.Failures)

	// Tracking parameters are stripped before enqueue.
	require.Len(t, fs.enqueued, 2)
	assert.NotContains(t, fs.enqueued[0], "utm_source")

	res := fs.polls[1]
	assert.True(t, res.Success)
	assert.Equal(t, `"v1"`, res.ETag)

	require.Len(t, fs.runs, 1)
	assert.Equal(t, "poll", fs.runs[0].Stage)
	assert.Equal(t, 2, fs.runs[0].OutputCount)
}

func TestRunOnceSendsConditionalHeaders(t *testing.T) {
	var gotETag, gotModified string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := testFeed(srv.URL)
	f.ETag = `"v1"`
	f.LastModified = "Mon, 02 Jun 2025 10:00:00 GMT"
	fs := newFakeStore(f)

	stats, err := New(fs, testConfig(), slog.Default()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NotModified)
	assert.Equal(t, `"v1"`, gotETag)
	assert.Equal(t, f.LastModified, gotModified)

	// A 304 keeps the cached validators.
	assert.True(t, fs.polls[1].Success)
	assert.Equal(t, `"v1"`, fs.polls[1].ETag)
}

func TestRunOnceHonorsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	fs := newFakeStore(testFeed(srv.URL))
	p := New(fs, testConfig(), slog.Default())

	before := time.Now()
	stats, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failures)

	res := fs.polls[1]
	assert.False(t, res.Success)
	assert.WithinDuration(t, before.Add(time.Hour), res.NextCrawlAt, 30*time.Second)
}

func TestRunOnceRetriesTransientFetchInCycle(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	fs := newFakeStore(testFeed(srv.URL))
	p := New(fs, testConfig(), slog.Default())
	p.retryDelay = time.Millisecond

	stats, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	// Two 500s are absorbed by the in-cycle retries and the third attempt
	// lands, so the feed's health never takes the hit.
	assert.EqualValues(t, 3, hits.Load())
	assert.Zero(t, stats.Failures)
	assert.Equal(t, 2, stats.NewItems)
	assert.True(t, fs.polls[1].Success)
}

func TestRunOnceRateLimitNotRetriedInCycle(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	fs := newFakeStore(testFeed(srv.URL))
	p := New(fs, testConfig(), slog.Default())
	p.retryDelay = time.Millisecond

	stats, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, 1, stats.Failures)
}

func TestRunOnceParseFailureIsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	fs := newFakeStore(testFeed(srv.URL))
	stats, err := New(fs, testConfig(), slog.Default()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failures)
	assert.False(t, fs.polls[1].Success)
	assert.NotEmpty(t, fs.polls[1].Err)
}

func TestRunOnceNoDueFeeds(t *testing.T) {
	fs := newFakeStore()
	stats, err := New(fs, testConfig(), slog.Default()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Feeds)
	assert.Empty(t, fs.runs)
}
