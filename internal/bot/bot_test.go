package bot

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langgraphsystem/rssnews/internal/ask"
	"github.com/langgraphsystem/rssnews/internal/llm"
	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/store"
)

type stubRetriever struct {
	result  *search.Result
	lastReq search.Request
}

func (s *stubRetriever) Retrieve(_ context.Context, req search.Request) (*search.Result, error) {
	s.lastReq = req
	return s.result, nil
}

type stubAsker struct {
	answer   *ask.Answer
	question string
	opts     ask.Options
}

func (s *stubAsker) Ask(_ context.Context, question string, opts ask.Options) (*ask.Answer, error) {
	s.question = question
	s.opts = opts
	return s.answer, nil
}

type stubCompleter struct {
	text    string
	lastReq llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.lastReq = req
	return &llm.Response{Text: s.text, Model: "test-model"}, nil
}

func chunkWithTitle(id, title, domain string) *search.ScoredChunk {
	published := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)
	return &search.ScoredChunk{Candidate: store.Candidate{
		ChunkID:      id,
		Title:        title,
		URL:          "https://" + domain + "/" + id,
		SourceDomain: domain,
		PublishedAt:  &published,
		Text:         "Body of " + title + ".",
	}}
}

func newTestBot(r Retriever, a Asker, c llm.Completer) *Bot {
	return New(r, a, c, slog.Default())
}

func TestHandleSearch(t *testing.T) {
	rt := &stubRetriever{result: &search.Result{Chunks: []*search.ScoredChunk{
		chunkWithTitle("1#0", "Rates held steady", "reuters.com"),
	}}}
	b := newTestBot(rt, &stubAsker{}, &stubCompleter{})

	reply, err := b.Handle(context.Background(), "/search interest rates")
	require.NoError(t, err)
	assert.Contains(t, reply, "Rates held steady")
	assert.Contains(t, reply, "https://reuters.com/1#0")
	assert.Equal(t, "interest rates", rt.lastReq.Query)
	assert.True(t, rt.lastReq.Flags.UseCache)
}

func TestHandleSearchFlags(t *testing.T) {
	rt := &stubRetriever{result: &search.Result{Chunks: []*search.ScoredChunk{
		chunkWithTitle("1#0", "Rates held steady", "reuters.com"),
	}}}
	b := newTestBot(rt, &stubAsker{}, &stubCompleter{})

	_, err := b.Handle(context.Background(),
		"search --hours=48 --k=3 --sources=reuters.com,bbc.com --lang=en interest rates")
	require.NoError(t, err)
	assert.Equal(t, "interest rates", rt.lastReq.Query)
	assert.Equal(t, 48*time.Hour, rt.lastReq.Window)
	assert.Equal(t, 3, rt.lastReq.K)
	assert.Equal(t, []string{"reuters.com", "bbc.com"}, rt.lastReq.Filter.Sources)
	assert.Equal(t, "en", rt.lastReq.Filter.Lang)

	// The space-separated spelling works too.
	_, err = b.Handle(context.Background(), "search --hours 24 --lang EN rates")
	require.NoError(t, err)
	assert.Equal(t, "rates", rt.lastReq.Query)
	assert.Equal(t, 24*time.Hour, rt.lastReq.Window)
	assert.Equal(t, "en", rt.lastReq.Filter.Lang)
	assert.Equal(t, searchK, rt.lastReq.K)
}

func TestExtractSearchOptsClampsAndIgnoresJunk(t *testing.T) {
	opts := extractSearchOpts("--k=500 --hours=abc central bank")
	assert.Equal(t, "central bank", opts.query)
	assert.Equal(t, searchKMax, opts.k)
	assert.Zero(t, opts.window)
}

func TestHandleSearchEmptyQuery(t *testing.T) {
	b := newTestBot(&stubRetriever{}, &stubAsker{}, &stubCompleter{})
	reply, err := b.Handle(context.Background(), "search")
	require.NoError(t, err)
	assert.Contains(t, reply, "Usage")
}

func TestHandleAskWithDepth(t *testing.T) {
	as := &stubAsker{answer: &ask.Answer{
		Answer:     "The board replaced the CEO.",
		Confidence: 0.9,
		Iterations: 2,
		ModelUsed:  "test-model",
		Evidence: []ask.Evidence{{
			Title: "Board announces change", URL: "https://reuters.com/story",
		}},
	}}
	b := newTestBot(&stubRetriever{}, as, &stubCompleter{})

	reply, err := b.Handle(context.Background(), "ask --depth=3 what happened at the company?")
	require.NoError(t, err)
	assert.Equal(t, "what happened at the company?", as.question)
	assert.Equal(t, 3, as.opts.Depth)
	assert.Contains(t, reply, "The board replaced the CEO.")
	assert.Contains(t, reply, "Sources:")
	assert.Contains(t, reply, "confidence 90%")
}

func TestHandleTrendsClusters(t *testing.T) {
	rt := &stubRetriever{result: &search.Result{Chunks: []*search.ScoredChunk{
		chunkWithTitle("1#0", "Central bank raises interest rates again", "reuters.com"),
		chunkWithTitle("2#0", "Central bank raises interest rates sharply", "bbc.com"),
		chunkWithTitle("3#0", "Wildfire spreads across northern region", "apnews.com"),
	}}}
	b := newTestBot(rt, &stubAsker{}, &stubCompleter{})

	reply, err := b.Handle(context.Background(), "trends 48h")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, rt.lastReq.Window)
	assert.Empty(t, rt.lastReq.Query)

	lines := strings.Split(reply, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	// The two-outlet rate story ranks first.
	assert.Contains(t, lines[1], "interest rates")
	assert.Contains(t, lines[1], "2 article(s)")
	assert.Contains(t, lines[1], "bbc.com, reuters.com")
}

func TestHandleAnalyze(t *testing.T) {
	rt := &stubRetriever{result: &search.Result{Chunks: []*search.ScoredChunk{
		chunkWithTitle("1#0", "Rates held steady", "reuters.com"),
	}}}
	cp := &stubCompleter{text: "rates, central bank, inflation"}
	b := newTestBot(rt, &stubAsker{}, cp)

	reply, err := b.Handle(context.Background(), "analyze keywords interest rates")
	require.NoError(t, err)
	assert.Equal(t, "rates, central bank, inflation", reply)
	assert.Contains(t, cp.lastReq.System, "keywords")
	assert.Contains(t, cp.lastReq.User, "Rates held steady")
	assert.True(t, rt.lastReq.Flags.UseCache)
}

func TestHandleAnalyzeBadMode(t *testing.T) {
	b := newTestBot(&stubRetriever{}, &stubAsker{}, &stubCompleter{})
	reply, err := b.Handle(context.Background(), "analyze vibes interest rates")
	require.NoError(t, err)
	assert.Contains(t, reply, "Usage")
}

func TestHandleHelpAndUnknown(t *testing.T) {
	b := newTestBot(&stubRetriever{}, &stubAsker{}, &stubCompleter{})

	reply, err := b.Handle(context.Background(), "/help")
	require.NoError(t, err)
	assert.Contains(t, reply, "search [--hours=N]")

	_, err = b.Handle(context.Background(), "/frobnicate now")
	require.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	name, rest := splitCommand("/search@newsbot interest rates")
	assert.Equal(t, "search", name)
	assert.Equal(t, "interest rates", rest)

	name, rest = splitCommand("ASK what happened")
	assert.Equal(t, "ask", name)
	assert.Equal(t, "what happened", rest)
}

func TestExtractDepth(t *testing.T) {
	q, d := extractDepth("--depth=2 what happened")
	assert.Equal(t, "what happened", q)
	assert.Equal(t, 2, d)

	q, d = extractDepth("--depth 3 what happened")
	assert.Equal(t, "what happened", q)
	assert.Equal(t, 3, d)

	q, d = extractDepth("what happened")
	assert.Equal(t, "what happened", q)
	assert.Equal(t, 0, d)
}

func TestClusterTitlesDedupesWithinOutlet(t *testing.T) {
	chunks := []*search.ScoredChunk{
		chunkWithTitle("1#0", "Central bank raises interest rates", "reuters.com"),
		chunkWithTitle("2#0", "Central bank raises interest rates", "reuters.com"),
	}
	clusters := clusterTitles(chunks)
	require.Len(t, clusters, 1)
	assert.Equal(t, 1, clusters[0].Size)
}

func TestJaccard(t *testing.T) {
	a := map[string]struct{}{"x": {}, "y": {}}
	b := map[string]struct{}{"y": {}, "z": {}}
	assert.InDelta(t, 1.0/3.0, jaccard(a, b), 1e-9)
	assert.Zero(t, jaccard(a, map[string]struct{}{}))
}
