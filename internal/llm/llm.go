// Package llm is the chat-completions client with model routing: requests
// try the primary model first and fall through an ordered fallback chain.
// Each model carries its own circuit breaker so a dead primary fails fast.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"

	apperr "github.com/langgraphsystem/rssnews/internal/errors"
)

// Request is one completion request.
type Request struct {
	System    string
	User      string
	MaxTokens int
	// JSONOnly asks the model to emit a JSON object response.
	JSONOnly bool
	// ReasoningEffort selects how hard reasoning models think (minimal,
	// low, medium, high). Empty keeps the provider default.
	ReasoningEffort string
}

// Response is a completion with the usage the governor charges for.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Completer is the surface the orchestrator and chunker depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client routes completions across a model chain.
type Client struct {
	api      openai.Client
	models   []string
	breakers map[string]*apperr.CircuitBreaker
	log      *slog.Logger
}

// New builds a Client. The first model is the primary; the rest are tried
// in order when it fails.
func New(api openai.Client, primary string, fallbacks []string, log *slog.Logger) *Client {
	models := append([]string{primary}, fallbacks...)
	breakers := make(map[string]*apperr.CircuitBreaker, len(models))
	for _, m := range models {
		breakers[m] = apperr.NewCircuitBreaker(m, 3, 0)
	}
	return &Client{
		api:      api,
		models:   models,
		breakers: breakers,
		log:      log.With(slog.String("component", "llm")),
	}
}

// Complete runs the request through the model chain. Validation and budget
// errors abort immediately; provider failures move to the next model.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for _, model := range c.models {
		br := c.breakers[model]
		if !br.Allow() {
			c.log.Debug("skipping model with open breaker", slog.String("model", model))
			continue
		}

		resp, err := c.completeWith(ctx, model, req)
		if err == nil {
			br.RecordSuccess()
			return resp, nil
		}

		lastErr = err
		br.RecordFailure(err)
		kind := apperr.KindOf(err)
		if kind == apperr.KindValidation || kind == apperr.KindBudget {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindTransient, "completion cancelled", ctx.Err())
		}
		c.log.Warn("model failed, trying next",
			slog.String("model", model),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
	}

	if lastErr == nil {
		return nil, apperr.New(apperr.KindTransient, "all model breakers open")
	}
	return nil, apperr.Wrap(apperr.KindOf(lastErr), "all models failed", lastErr)
}

func (c *Client) completeWith(ctx context.Context, model string, req Request) (*Response, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSONOnly {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	if req.ReasoningEffort != "" {
		params.ReasoningEffort = openai.ReasoningEffort(req.ReasoningEffort)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.New(apperr.KindTransient, "completion returned no choices")
	}

	return &Response{
		Text:             resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// classify maps provider errors onto the shared kinds.
func classify(err error) error {
	var apiErr *openai.Error
	if !apperr.As(err, &apiErr) {
		return apperr.Wrap(apperr.KindTransient, "completion request", err)
	}
	switch {
	case apiErr.StatusCode == 429:
		return apperr.Wrap(apperr.KindRateLimit, "completion rate limited", err)
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return apperr.Wrap(apperr.KindFatal, "completion auth failed", err)
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apperr.Wrap(apperr.KindPermanent, "completion request rejected", err)
	default:
		return apperr.Wrap(apperr.KindTransient, "completion upstream error", err)
	}
}

// SplitterFunc adapts the client for the chunker's completion hook.
func SplitterFunc(c Completer, maxTokens int) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := c.Complete(ctx, Request{User: prompt, MaxTokens: maxTokens})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

// costPer1kCents approximates provider pricing in hundredths of a cent per
// 1k tokens, split prompt/completion. Unknown models use the default row.
var costPer1kCents = map[string][2]float64{
	"gpt-5":       {0.125, 1.0},
	"gpt-5-mini":  {0.025, 0.2},
	"gpt-4o-mini": {0.015, 0.06},
}

var defaultCost = [2]float64{0.125, 1.0}

// CostCents estimates the cost of a completion in cents.
func CostCents(model string, promptTokens, completionTokens int) float64 {
	rate, ok := costPer1kCents[model]
	if !ok {
		rate = defaultCost
	}
	return rate[0]*float64(promptTokens)/1000 + rate[1]*float64(completionTokens)/1000
}

// EstimateTokens is the rough chars/4 heuristic used for pre-flight budget
// checks before the real usage comes back.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

var _ Completer = (*Client)(nil)

// String implements fmt.Stringer for logs.
func (c *Client) String() string {
	return fmt.Sprintf("llm.Client(%v)", c.models)
}
