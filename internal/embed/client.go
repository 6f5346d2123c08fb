// Package embed generates dense vectors for chunks through the OpenAI
// embeddings API and writes them back conditionally so racing workers never
// overwrite committed vectors.
package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/pkoukk/tiktoken-go"

	"github.com/langgraphsystem/rssnews/internal/config"
	apperr "github.com/langgraphsystem/rssnews/internal/errors"
)

const encodingName = "cl100k_base"

// Client wraps the embeddings API with token truncation and error
// classification.
type Client struct {
	api openai.Client
	enc *tiktoken.Tiktoken
	cfg config.EmbedConfig
}

// NewClient builds a Client. The OpenAI client reads OPENAI_API_KEY from the
// environment by default.
func NewClient(api openai.Client, cfg config.EmbedConfig) (*Client, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}
	return &Client{api: api, enc: enc, cfg: cfg}, nil
}

// Truncate cuts text to the model's input token limit.
func (c *Client) Truncate(text string) string {
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= c.cfg.MaxTokens {
		return text
	}
	return c.enc.Decode(tokens[:c.cfg.MaxTokens])
}

// EmbedBatch embeds up to the provider batch limit of texts in one request.
// The response preserves input order. Inputs are truncated, never rejected.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = c.Truncate(t)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: openai.Int(int64(c.cfg.Dimensions)),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, apperr.New(apperr.KindTransient,
			fmt.Sprintf("embedding count mismatch: sent %d, got %d", len(inputs), len(resp.Data)))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, apperr.New(apperr.KindTransient,
				fmt.Sprintf("embedding index %d out of range", d.Index))
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		if len(vec) != c.cfg.Dimensions {
			return nil, apperr.New(apperr.KindPermanent,
				fmt.Sprintf("embedding has %d dimensions, want %d", len(vec), c.cfg.Dimensions))
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Embed embeds a single text, typically a search query.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Model reports the configured embedding model name.
func (c *Client) Model() string { return c.cfg.Model }

// classify maps provider errors onto the shared kinds.
func classify(err error) error {
	var apiErr *openai.Error
	if !apperr.As(err, &apiErr) {
		return apperr.Wrap(apperr.KindTransient, "embeddings request", err)
	}
	switch {
	case apiErr.StatusCode == 429:
		return apperr.Wrap(apperr.KindRateLimit, "embeddings rate limited", err)
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return apperr.Wrap(apperr.KindFatal, "embeddings auth failed", err)
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apperr.Wrap(apperr.KindPermanent, "embeddings request rejected", err)
	default:
		return apperr.Wrap(apperr.KindTransient, "embeddings upstream error", err)
	}
}
