// Package ask is the agentic question-answering orchestrator. Questions are
// routed by intent: general knowledge goes straight to the model, current
// events run a bounded retrieve-analyze-refine loop over the article corpus
// with a budget governor holding the whole request to its token, spend, and
// time allowances.
package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/langgraphsystem/rssnews/internal/config"
	apperr "github.com/langgraphsystem/rssnews/internal/errors"
	"github.com/langgraphsystem/rssnews/internal/govern"
	"github.com/langgraphsystem/rssnews/internal/llm"
	"github.com/langgraphsystem/rssnews/internal/query"
	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/store"
	"github.com/langgraphsystem/rssnews/internal/textutil"
)

const (
	maxDepth       = 3
	retrieveK      = 10
	refineK        = 3
	snippetMax     = 240
	answerTokens   = 800
	generalTokens  = 2000
	generalCents   = 10
	generalTimeout = 15 * time.Second
)

// SourceKB marks answers produced from model knowledge without retrieval.
const SourceKB = "LLM/KB"

// SourceCorpus marks answers grounded in retrieved articles.
const SourceCorpus = "news_corpus"

// Retriever is the retrieval surface the loop uses.
type Retriever interface {
	Retrieve(ctx context.Context, req search.Request) (*search.Result, error)
}

// Evidence is one cited chunk in an answer.
type Evidence struct {
	ChunkID     string     `json:"chunk_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Domain      string     `json:"domain"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Snippet     string     `json:"snippet"`
}

// Answer is the orchestrator output.
type Answer struct {
	Answer     string       `json:"answer"`
	Reasoning  string       `json:"reasoning"`
	Confidence float64      `json:"confidence"`
	Intent     string       `json:"intent"`
	Source     string       `json:"source"`
	Iterations int          `json:"iterations"`
	ModelUsed  string       `json:"model_used"`
	Evidence   []Evidence   `json:"evidence"`
	Warnings   []string     `json:"warnings,omitempty"`
	Usage      govern.Usage `json:"usage"`
}

// Options tune one request. Zero values fall back to configured defaults.
type Options struct {
	Depth  int
	Budget govern.Budget
}

// Orchestrator routes and answers questions.
type Orchestrator struct {
	retriever Retriever
	completer llm.Completer
	parser    *query.Parser
	cfg       config.AskConfig
	log       *slog.Logger
}

// New builds an Orchestrator.
func New(r Retriever, c llm.Completer, cfg config.AskConfig, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		retriever: r,
		completer: c,
		parser:    query.NewParser(cfg.TrustedDomains, log),
		cfg:       cfg,
		log:       log.With(slog.String("component", "ask")),
	}
}

// Ask answers one question.
func (o *Orchestrator) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.New(apperr.KindValidation, "empty question")
	}

	parsed := o.parser.Parse(question)
	cls := query.Classify(question)

	if cls.Intent == query.IntentGeneral {
		return o.answerGeneral(ctx, question, cls, opts)
	}
	return o.answerNews(ctx, question, parsed, cls, opts)
}

// answerGeneral bypasses retrieval. The budget never drops below the bypass
// floor so a tightly budgeted session can still get a direct answer.
func (o *Orchestrator) answerGeneral(ctx context.Context, question string, cls query.Classification, opts Options) (*Answer, error) {
	budget := o.budget(opts)
	if budget.MaxTokens < generalTokens {
		budget.MaxTokens = generalTokens
	}
	if budget.MaxCents < generalCents {
		budget.MaxCents = generalCents
	}
	if budget.Timeout < generalTimeout {
		budget.Timeout = generalTimeout
	}
	gov := govern.New(budget)
	ctx, cancel := o.withDeadline(ctx, gov)
	defer cancel()

	req := llm.Request{
		System:          generalSystemPrompt,
		User:            question,
		MaxTokens:       answerTokens,
		ReasoningEffort: o.cfg.ReasoningEffort,
	}
	if err := o.allow(gov, req); err != nil {
		return nil, err
	}
	resp, err := o.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	gov.Charge(resp.PromptTokens+resp.CompletionTokens,
		llm.CostCents(resp.Model, resp.PromptTokens, resp.CompletionTokens))

	return &Answer{
		Answer:     strings.TrimSpace(resp.Text),
		Reasoning:  cls.Reason,
		Confidence: cls.Confidence,
		Intent:     string(cls.Intent),
		Source:     SourceKB,
		Iterations: 1,
		ModelUsed:  resp.Model,
		Evidence:   []Evidence{},
		Usage:      gov.Snapshot(),
	}, nil
}

// answerNews runs the bounded retrieval loop.
func (o *Orchestrator) answerNews(ctx context.Context, question string, parsed query.Parsed, cls query.Classification, opts Options) (*Answer, error) {
	budget := o.budget(opts)
	gov := govern.New(budget)
	ctx, cancel := o.withDeadline(ctx, gov)
	defer cancel()

	depth := opts.Depth
	if depth <= 0 {
		depth = o.cfg.DefaultDepth
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	var warnings []string
	if degraded := degradeDepth(depth, budget); degraded < depth {
		warnings = append(warnings,
			fmt.Sprintf("depth_reduced_to_%d", degraded))
		depth = degraded
	}

	// The conversational path must see fresh results, never the cache.
	flags := search.DefaultFlags()
	flags.UseCache = false

	filter := store.RetrievalFilter{
		Sources:    parsed.Sources,
		AfterDate:  parsed.After,
		BeforeDate: parsed.Before,
	}
	res, err := o.retriever.Retrieve(ctx, search.Request{
		Query:  parsed.Clean,
		Window: parsed.Window,
		K:      retrieveK,
		Filter: filter,
		Flags:  flags,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	warnings = append(warnings, res.Diagnostics.Warnings...)
	chunks := res.Chunks

	ans := &Answer{
		Intent:   string(cls.Intent),
		Source:   SourceCorpus,
		Evidence: []Evidence{},
	}

	// Iteration 1: analyze the evidence and answer.
	analysis, model, err := o.analyze(ctx, gov, analyzeUserPrompt(question, chunks))
	if err != nil {
		return nil, err
	}
	ans.Answer = analysis.Answer
	ans.Reasoning = analysis.Reasoning
	ans.Confidence = analysis.Confidence
	ans.ModelUsed = model
	ans.Iterations = 1
	firstAnswer := analysis.Answer
	var secondAnswer string

	// Iteration 2: refine the query and fold in more evidence.
	if depth >= 2 && analysis.NeedsMoreInfo {
		refined := strings.TrimSpace(analysis.RefinedQuery)
		if refined == "" {
			refined = parsed.Clean
		}
		more, err := o.retriever.Retrieve(ctx, search.Request{
			Query:  refined,
			Window: parsed.Window,
			K:      refineK,
			Filter: filter,
			Flags:  flags,
		})
		if err == nil {
			chunks = mergeChunks(chunks, more.Chunks)
		} else {
			warnings = append(warnings, "refine_retrieval_failed")
		}

		second, model2, err := o.analyze(ctx, gov, analyzeUserPrompt(question, chunks))
		if err != nil {
			if apperr.KindOf(err) == apperr.KindBudget {
				warnings = append(warnings, "budget_exhausted")
			} else {
				return nil, err
			}
		} else {
			ans.Answer = second.Answer
			ans.Reasoning = second.Reasoning
			ans.Confidence = second.Confidence
			ans.ModelUsed = model2
			ans.Iterations = 2
			secondAnswer = second.Answer
		}
	}

	// Final iteration: check the two drafts against each other. With a
	// single draft there is nothing to compare, so the step is skipped.
	if depth >= 3 && secondAnswer != "" {
		check, err := o.selfCheck(ctx, gov, question, firstAnswer, secondAnswer, chunks)
		switch {
		case err != nil && apperr.KindOf(err) == apperr.KindBudget:
			warnings = append(warnings, "budget_exhausted")
		case err != nil:
			return nil, err
		case check.Consistent:
			if check.Confidence > ans.Confidence {
				ans.Confidence = check.Confidence
			}
			ans.Iterations++
		default:
			warnings = append(warnings, "self_check_inconsistent")
			ans.Iterations++
			// Disagreeing drafts get one reconciliation pass over the full
			// evidence. Whatever comes out is not trusted past 0.5.
			rec, model3, err := o.analyze(ctx, gov,
				reconcileUserPrompt(question, firstAnswer, secondAnswer, check.Issues, chunks))
			if err != nil {
				if apperr.KindOf(err) != apperr.KindBudget {
					return nil, err
				}
				warnings = append(warnings, "budget_exhausted")
			} else {
				ans.Answer = rec.Answer
				ans.Reasoning = rec.Reasoning
				ans.Confidence = rec.Confidence
				ans.ModelUsed = model3
			}
			if ans.Confidence > 0.5 {
				ans.Confidence = 0.5
			}
		}
	}

	ans.Evidence = buildEvidence(chunks)
	ans.Warnings = warnings
	ans.Usage = gov.Snapshot()
	return ans, nil
}

func (o *Orchestrator) budget(opts Options) govern.Budget {
	b := opts.Budget
	if b.MaxTokens <= 0 {
		b.MaxTokens = o.cfg.MaxTokens
	}
	if b.MaxCents <= 0 {
		b.MaxCents = float64(o.cfg.BudgetCents)
	}
	if b.Timeout <= 0 {
		b.Timeout = o.cfg.Timeout
	}
	return b
}

func (o *Orchestrator) withDeadline(ctx context.Context, gov *govern.Governor) (context.Context, context.CancelFunc) {
	if dl, ok := gov.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}

// degradeDepth lowers the loop depth when the token budget cannot fund all
// iterations. Each iteration needs roughly a prompt with evidence context
// plus the completion allowance.
func degradeDepth(depth int, budget govern.Budget) int {
	if budget.MaxTokens <= 0 {
		return depth
	}
	perIteration := answerTokens * 3
	for depth > 1 && depth*perIteration > budget.MaxTokens {
		depth--
	}
	return depth
}

// analysis is the model's structured answer for one loop iteration.
type analysis struct {
	Answer        string  `json:"answer"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
	NeedsMoreInfo bool    `json:"needs_more_info"`
	RefinedQuery  string  `json:"refined_query"`
}

// allow runs the pre-flight budget check: the token estimate plus the
// worst-case cost of the completion at the primary model's rate.
func (o *Orchestrator) allow(gov *govern.Governor, req llm.Request) error {
	est := llm.EstimateTokens(req.System + req.User)
	return gov.Allow(est+req.MaxTokens,
		llm.CostCents(o.cfg.PrimaryModel, est, req.MaxTokens))
}

func (o *Orchestrator) analyze(ctx context.Context, gov *govern.Governor, user string) (*analysis, string, error) {
	req := llm.Request{
		System:          analyzeSystemPrompt,
		User:            user,
		MaxTokens:       answerTokens,
		JSONOnly:        true,
		ReasoningEffort: o.cfg.ReasoningEffort,
	}
	if err := o.allow(gov, req); err != nil {
		return nil, "", err
	}
	resp, err := o.completer.Complete(ctx, req)
	if err != nil {
		return nil, "", err
	}
	gov.Charge(resp.PromptTokens+resp.CompletionTokens,
		llm.CostCents(resp.Model, resp.PromptTokens, resp.CompletionTokens))

	var a analysis
	if err := json.Unmarshal([]byte(stripFence(resp.Text)), &a); err != nil {
		// A malformed response still carries an answer; keep it at low
		// confidence instead of failing the request.
		o.log.Warn("unparseable analysis response", slog.String("model", resp.Model))
		a = analysis{Answer: strings.TrimSpace(resp.Text), Confidence: 0.3}
	}
	if a.Confidence <= 0 {
		a.Confidence = 0.3
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return &a, resp.Model, nil
}

// selfCheckResult is the model's consistency verdict.
type selfCheckResult struct {
	Consistent bool    `json:"consistent"`
	Confidence float64 `json:"confidence"`
	Issues     string  `json:"issues"`
}

func (o *Orchestrator) selfCheck(ctx context.Context, gov *govern.Governor, question, first, second string, chunks []*search.ScoredChunk) (*selfCheckResult, error) {
	req := llm.Request{
		System:          selfCheckSystemPrompt,
		User:            selfCheckUserPrompt(question, first, second, chunks),
		MaxTokens:       300,
		JSONOnly:        true,
		ReasoningEffort: o.cfg.ReasoningEffort,
	}
	if err := o.allow(gov, req); err != nil {
		return nil, err
	}
	resp, err := o.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	gov.Charge(resp.PromptTokens+resp.CompletionTokens,
		llm.CostCents(resp.Model, resp.PromptTokens, resp.CompletionTokens))

	var r selfCheckResult
	if err := json.Unmarshal([]byte(stripFence(resp.Text)), &r); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, "self-check response", err)
	}
	return &r, nil
}

// mergeChunks appends additions not already present, keyed by chunk id.
func mergeChunks(base, extra []*search.ScoredChunk) []*search.ScoredChunk {
	seen := make(map[string]struct{}, len(base))
	for _, c := range base {
		seen[c.ChunkID] = struct{}{}
	}
	out := base
	for _, c := range extra {
		if _, ok := seen[c.ChunkID]; ok {
			continue
		}
		seen[c.ChunkID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func buildEvidence(chunks []*search.ScoredChunk) []Evidence {
	out := make([]Evidence, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Evidence{
			ChunkID:     c.ChunkID,
			Title:       c.Title,
			URL:         c.URL,
			Domain:      c.SourceDomain,
			PublishedAt: c.PublishedAt,
			Snippet:     textutil.Snippet(c.Text, snippetMax),
		})
	}
	return out
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
