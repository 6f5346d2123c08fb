package ask

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/govern"
	"github.com/langgraphsystem/rssnews/internal/llm"
	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/store"
)

type fakeRetriever struct {
	results  []*search.Result
	requests []search.Request
	err      error
}

func (f *fakeRetriever) Retrieve(_ context.Context, req search.Request) (*search.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.requests) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

type fakeCompleter struct {
	responses []*llm.Response
	requests  []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := *f.responses[i]
	return &r, nil
}

func resp(text string) *llm.Response {
	return &llm.Response{Text: text, Model: "test-model", PromptTokens: 100, CompletionTokens: 50}
}

func newsChunk(id, domain string) *search.ScoredChunk {
	published := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	return &search.ScoredChunk{
		Candidate: store.Candidate{
			ChunkID:      id,
			Title:        "Board announces leadership change",
			URL:          "https://" + domain + "/story",
			SourceDomain: domain,
			PublishedAt:  &published,
			Text: strings.Repeat("The company board voted to replace its chief "+
				"executive after a contentious meeting. ", 6),
		},
		Score: 0.7,
	}
}

func testAskConfig() config.AskConfig {
	return config.AskConfig{
		PrimaryModel:    "test-model",
		MaxTokens:       20000,
		BudgetCents:     100,
		Timeout:         time.Minute,
		DefaultDepth:    3,
		ReasoningEffort: "minimal",
	}
}

func newOrchestrator(r Retriever, c llm.Completer) *Orchestrator {
	return New(r, c, testAskConfig(), slog.Default())
}

func singleResult(chunks ...*search.ScoredChunk) *search.Result {
	return &search.Result{Chunks: chunks}
}

func TestAskGeneralBypassesRetrieval(t *testing.T) {
	rt := &fakeRetriever{}
	cp := &fakeCompleter{responses: []*llm.Response{resp("Photosynthesis converts light into chemical energy.")}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "What is photosynthesis?", Options{})
	require.NoError(t, err)

	assert.Empty(t, rt.requests)
	assert.Equal(t, SourceKB, ans.Source)
	assert.Equal(t, "general_qa", ans.Intent)
	assert.Equal(t, 1, ans.Iterations)
	assert.Equal(t, "test-model", ans.ModelUsed)
	assert.Empty(t, ans.Evidence)
	assert.Contains(t, ans.Answer, "Photosynthesis")
	assert.Equal(t, 150, ans.Usage.Tokens)
}

func TestAskNewsSingleIteration(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com"), newsChunk("b#0", "apnews.com")),
	}}
	cp := &fakeCompleter{responses: []*llm.Response{resp(
		`{"answer":"The board replaced the CEO [1].","reasoning":"Both articles report it.","confidence":0.85,"needs_more_info":false}`,
	)}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{Depth: 1})
	require.NoError(t, err)

	require.Len(t, rt.requests, 1)
	assert.False(t, rt.requests[0].Flags.UseCache)
	assert.Equal(t, SourceCorpus, ans.Source)
	assert.Equal(t, "news_current_events", ans.Intent)
	assert.Equal(t, 1, ans.Iterations)
	assert.InDelta(t, 0.85, ans.Confidence, 1e-9)
	require.Len(t, ans.Evidence, 2)
	assert.Equal(t, "a#0", ans.Evidence[0].ChunkID)
	assert.Equal(t, "reuters.com", ans.Evidence[0].Domain)
	assert.LessOrEqual(t, len([]rune(ans.Evidence[0].Snippet)), 240)
}

func TestAskNewsRefineIteration(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com")),
		singleResult(newsChunk("a#0", "reuters.com"), newsChunk("c#0", "bbc.com")),
	}}
	cp := &fakeCompleter{responses: []*llm.Response{
		resp(`{"answer":"Unclear.","reasoning":"Single source.","confidence":0.4,"needs_more_info":true,"refined_query":"company board CEO vote"}`),
		resp(`{"answer":"The board replaced the CEO [1][2].","reasoning":"Two sources agree.","confidence":0.9,"needs_more_info":false}`),
	}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{Depth: 2})
	require.NoError(t, err)

	require.Len(t, rt.requests, 2)
	assert.Equal(t, "company board CEO vote", rt.requests[1].Query)
	assert.Equal(t, 3, rt.requests[1].K)
	assert.Equal(t, 2, ans.Iterations)
	assert.InDelta(t, 0.9, ans.Confidence, 1e-9)
	// Merged by chunk id: a#0 appears once.
	require.Len(t, ans.Evidence, 2)
	assert.Equal(t, "a#0", ans.Evidence[0].ChunkID)
	assert.Equal(t, "c#0", ans.Evidence[1].ChunkID)
}

func TestAskSelfCheckConsistentRaisesConfidence(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com")),
		singleResult(newsChunk("c#0", "bbc.com")),
	}}
	cp := &fakeCompleter{responses: []*llm.Response{
		resp(`{"answer":"The board replaced the CEO.","reasoning":"One source.","confidence":0.6,"needs_more_info":true,"refined_query":"board CEO vote"}`),
		resp(`{"answer":"The board replaced the CEO [1][2].","reasoning":"Two sources.","confidence":0.8,"needs_more_info":false}`),
		resp(`{"consistent":true,"confidence":0.95,"issues":""}`),
	}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{Depth: 3})
	require.NoError(t, err)

	require.Len(t, cp.requests, 3)
	assert.Equal(t, "minimal", cp.requests[0].ReasoningEffort)
	// The check sees both drafts.
	assert.Contains(t, cp.requests[2].User, "The board replaced the CEO.")
	assert.Contains(t, cp.requests[2].User, "The board replaced the CEO [1][2].")
	assert.Equal(t, 3, ans.Iterations)
	assert.InDelta(t, 0.95, ans.Confidence, 1e-9)
	assert.Empty(t, ans.Warnings)
}

func TestAskSelfCheckInconsistentReconciles(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com")),
		singleResult(newsChunk("c#0", "bbc.com")),
	}}
	cp := &fakeCompleter{responses: []*llm.Response{
		resp(`{"answer":"The board replaced the CFO.","reasoning":"","confidence":0.6,"needs_more_info":true,"refined_query":"board vote"}`),
		resp(`{"answer":"The board replaced the CEO.","reasoning":"","confidence":0.7,"needs_more_info":false}`),
		resp(`{"consistent":false,"confidence":0.3,"issues":"drafts disagree on CFO vs CEO"}`),
		resp(`{"answer":"The board replaced the CEO [1].","reasoning":"Only the CEO claim is supported.","confidence":0.9,"needs_more_info":false}`),
	}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{Depth: 3})
	require.NoError(t, err)

	require.Len(t, cp.requests, 4)
	// The reconciliation pass carries the disagreement and its issues.
	assert.Contains(t, cp.requests[3].User, "drafts disagree on CFO vs CEO")
	assert.Contains(t, cp.requests[3].User, "The board replaced the CFO.")
	assert.Equal(t, "The board replaced the CEO [1].", ans.Answer)
	// Reconciled answers are never trusted past 0.5.
	assert.InDelta(t, 0.5, ans.Confidence, 1e-9)
	assert.Contains(t, ans.Warnings, "self_check_inconsistent")
	assert.Equal(t, 3, ans.Iterations)
}

func TestAskSelfCheckSkippedWithoutSecondDraft(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com")),
	}}
	cp := &fakeCompleter{responses: []*llm.Response{
		resp(`{"answer":"The board replaced the CEO.","reasoning":"Reported directly.","confidence":0.7,"needs_more_info":false}`),
	}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{Depth: 3})
	require.NoError(t, err)

	// One draft, nothing to compare against.
	assert.Len(t, cp.requests, 1)
	assert.Equal(t, 1, ans.Iterations)
	assert.InDelta(t, 0.7, ans.Confidence, 1e-9)
	assert.Empty(t, ans.Warnings)
}

func TestAskDepthDegradedByBudget(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com")),
	}}
	cp := &fakeCompleter{responses: []*llm.Response{
		resp(`{"answer":"The board replaced the CEO.","reasoning":"","confidence":0.7,"needs_more_info":true,"refined_query":"more"}`),
	}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{
		Depth:  3,
		Budget: govern.Budget{MaxTokens: 2500, MaxCents: 100, Timeout: time.Minute},
	})
	require.NoError(t, err)

	// 2500 tokens funds one iteration only; the refine and self-check steps
	// never run despite needs_more_info.
	assert.Contains(t, ans.Warnings, "depth_reduced_to_1")
	assert.Equal(t, 1, ans.Iterations)
	assert.Len(t, cp.requests, 1)
	assert.Len(t, rt.requests, 1)
}

func TestAskBudgetExhaustedMidLoop(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com")),
		singleResult(newsChunk("c#0", "bbc.com")),
	}}
	first := resp(`{"answer":"Partial answer.","reasoning":"","confidence":0.5,"needs_more_info":true,"refined_query":"more detail"}`)
	first.PromptTokens = 4000
	first.CompletionTokens = 500
	cp := &fakeCompleter{responses: []*llm.Response{first}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{
		Depth:  2,
		Budget: govern.Budget{MaxTokens: 5000, MaxCents: 100, Timeout: time.Minute},
	})
	require.NoError(t, err)

	assert.Equal(t, "Partial answer.", ans.Answer)
	assert.Equal(t, 1, ans.Iterations)
	assert.Contains(t, ans.Warnings, "budget_exhausted")
	assert.Len(t, cp.requests, 1)
	assert.True(t, ans.Usage.Denied)
}

func TestAskMalformedAnalysisKeptAsLowConfidenceAnswer(t *testing.T) {
	rt := &fakeRetriever{results: []*search.Result{
		singleResult(newsChunk("a#0", "reuters.com")),
	}}
	cp := &fakeCompleter{responses: []*llm.Response{resp("The board replaced the CEO, plainly.")}}
	o := newOrchestrator(rt, cp)

	ans, err := o.Ask(context.Background(), "latest news about the company board", Options{Depth: 1})
	require.NoError(t, err)

	assert.Equal(t, "The board replaced the CEO, plainly.", ans.Answer)
	assert.InDelta(t, 0.3, ans.Confidence, 1e-9)
}

func TestAskRetrievalErrorPropagates(t *testing.T) {
	rt := &fakeRetriever{err: errors.New("storage down")}
	cp := &fakeCompleter{responses: []*llm.Response{resp("x")}}
	o := newOrchestrator(rt, cp)

	_, err := o.Ask(context.Background(), "latest news about the company board", Options{Depth: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage down")
}

func TestAskEmptyQuestion(t *testing.T) {
	o := newOrchestrator(&fakeRetriever{}, &fakeCompleter{responses: []*llm.Response{resp("x")}})
	_, err := o.Ask(context.Background(), "   ", Options{})
	require.Error(t, err)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`{"a":1}`))
}

func TestDegradeDepth(t *testing.T) {
	assert.Equal(t, 3, degradeDepth(3, govern.Budget{MaxTokens: 20000}))
	assert.Equal(t, 1, degradeDepth(3, govern.Budget{MaxTokens: 2400}))
	assert.Equal(t, 3, degradeDepth(3, govern.Budget{}))
}
