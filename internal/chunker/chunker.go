// Package chunker splits stored articles into retrieval chunks. An optional
// LLM splitter proposes semantic boundaries; the paragraph splitter is both
// the default and the fallback. Token accounting uses the same encoding as
// the embedding model so chunk bounds hold downstream.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/store"
)

const encodingName = "cl100k_base"

// CompleteFunc asks a language model for a completion. Wired to the llm
// package in production; tests substitute their own.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// Encoder turns text into token IDs and back. Production uses the tiktoken
// encoding shared with the embedding model; tests supply a local one.
type Encoder interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

func (e tiktokenEncoder) Encode(text string) []int   { return e.enc.Encode(text, nil, nil) }
func (e tiktokenEncoder) Decode(tokens []int) string { return e.enc.Decode(tokens) }

// Chunker splits article text under token bounds.
type Chunker struct {
	enc      Encoder
	cfg      config.ChunkConfig
	complete CompleteFunc
	log      *slog.Logger
}

// New builds a Chunker on the cl100k_base encoding. complete may be nil,
// which disables the LLM pass.
func New(cfg config.ChunkConfig, complete CompleteFunc, log *slog.Logger) (*Chunker, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}
	return NewWithEncoder(tiktokenEncoder{enc: enc}, cfg, complete, log), nil
}

// NewWithEncoder builds a Chunker over a caller-supplied encoder.
func NewWithEncoder(enc Encoder, cfg config.ChunkConfig, complete CompleteFunc, log *slog.Logger) *Chunker {
	return &Chunker{
		enc:      enc,
		cfg:      cfg,
		complete: complete,
		log:      log.With(slog.String("component", "chunker")),
	}
}

// CountTokens returns the token length of text under the encoder.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text))
}

// Split produces the chunk rows for one article. Chunk IDs and denormalized
// retrieval fields are filled in; the caller commits them transactionally.
func (c *Chunker) Split(ctx context.Context, a *store.Article) ([]*store.Chunk, error) {
	if strings.TrimSpace(a.CleanText) == "" {
		return nil, fmt.Errorf("article %d has no text", a.ID)
	}

	var pieces []string
	if c.cfg.UseLLMSplitter && c.complete != nil {
		llmPieces, err := c.llmSplit(ctx, a.CleanText)
		if err != nil {
			c.log.Warn("llm splitter failed, falling back to paragraphs",
				slog.Int64("article_id", a.ID),
				slog.String("error", err.Error()))
		} else {
			pieces = llmPieces
		}
	}
	if pieces == nil {
		pieces = c.paragraphSplit(a.CleanText)
	}

	// LLM output can still exceed the bound; re-split any oversized piece.
	pieces = c.enforceBounds(pieces)

	chunks := make([]*store.Chunk, 0, len(pieces))
	cursor := 0
	for i, text := range pieces {
		start := indexFrom(a.CleanText, text, cursor)
		end := start + len(text)
		if start >= 0 {
			cursor = end
		} else {
			start, end = 0, 0
		}

		semType := classify(text, i, len(pieces))
		chunks = append(chunks, &store.Chunk{
			ID:                store.ChunkID(a.ID, i),
			ArticleID:         a.ID,
			ProcessingVersion: a.ProcessingVersion,
			Index:             i,
			Text:              text,
			CharStart:         start,
			CharEnd:           end,
			Type:              semType,
			Importance:        importance(semType),
			SourceDomain:      a.SourceDomain,
			PublishedAt:       a.PublishedAt,
			Language:          a.Language,
			Category:          a.Category,
			Quality:           a.QualityScore,
			Title:             a.Title,
			WordCount:         len(strings.Fields(text)),
		})
	}
	return chunks, nil
}

// paragraphSplit packs paragraphs into chunks at most MaxChunkTokens long,
// carrying OverlapTokens of trailing context into the next chunk.
func (c *Chunker) paragraphSplit(text string) []string {
	paras := splitParagraphs(text)

	var out []string
	var cur []string
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunk := strings.Join(cur, "\n\n")
		out = append(out, chunk)

		// Seed the next chunk with the tail of this one.
		if c.cfg.OverlapTokens > 0 {
			tail := c.tailTokens(chunk, c.cfg.OverlapTokens)
			if tail != "" {
				cur = []string{tail}
				curTokens = c.CountTokens(tail)
				return
			}
		}
		cur = nil
		curTokens = 0
	}

	for _, p := range paras {
		pTokens := c.CountTokens(p)

		if pTokens > c.cfg.MaxChunkTokens {
			flush()
			// Drop any overlap seed; the oversized paragraph stands alone.
			cur, curTokens = nil, 0
			out = append(out, c.splitByTokens(p)...)
			continue
		}

		if curTokens+pTokens > c.cfg.MaxChunkTokens {
			flush()
		}
		cur = append(cur, p)
		curTokens += pTokens
	}
	if len(cur) > 0 {
		// An overlap-only remainder would duplicate text already emitted.
		if len(out) == 0 || strings.Join(cur, "\n\n") != c.tailTokens(out[len(out)-1], c.cfg.OverlapTokens) {
			out = append(out, strings.Join(cur, "\n\n"))
		}
	}
	return out
}

// splitByTokens hard-splits one oversized block on token boundaries.
func (c *Chunker) splitByTokens(text string) []string {
	tokens := c.enc.Encode(text)
	step := c.cfg.MaxChunkTokens - c.cfg.OverlapTokens
	if step <= 0 {
		step = c.cfg.MaxChunkTokens
	}

	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.cfg.MaxChunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, c.enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return out
}

// tailTokens returns the last n tokens of text as a string.
func (c *Chunker) tailTokens(text string, n int) string {
	tokens := c.enc.Encode(text)
	if len(tokens) <= n {
		return text
	}
	return strings.TrimSpace(c.enc.Decode(tokens[len(tokens)-n:]))
}

func (c *Chunker) enforceBounds(pieces []string) []string {
	var out []string
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if c.CountTokens(p) > c.cfg.MaxChunkTokens {
			out = append(out, c.splitByTokens(p)...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

func classify(text string, index, total int) store.SemanticType {
	if isList(text) {
		return store.ChunkList
	}
	if total > 1 {
		if index == 0 {
			return store.ChunkIntro
		}
		if index == total-1 {
			return store.ChunkConclusion
		}
	}
	if strings.HasPrefix(strings.TrimSpace(text), "\"") ||
		strings.HasPrefix(strings.TrimSpace(text), "«") {
		return store.ChunkQuote
	}
	return store.ChunkBody
}

// isList reports whether most lines look like bullet or numbered items.
func isList(text string) bool {
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return false
	}
	listLines := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") ||
			strings.HasPrefix(line, "•") || startsNumbered(line) {
			listLines++
		}
	}
	return listLines*2 > len(lines)
}

func startsNumbered(line string) bool {
	for i, r := range line {
		if unicode.IsDigit(r) {
			continue
		}
		return i > 0 && (r == '.' || r == ')')
	}
	return false
}

func importance(t store.SemanticType) float64 {
	switch t {
	case store.ChunkIntro:
		return 0.8
	case store.ChunkConclusion:
		return 0.6
	case store.ChunkQuote:
		return 0.55
	case store.ChunkList:
		return 0.45
	default:
		return 0.5
	}
}

// indexFrom finds needle in haystack at or after from, tolerating a missed
// match (LLM splitters may lightly rewrite boundaries).
func indexFrom(haystack, needle string, from int) int {
	if from >= len(haystack) {
		return -1
	}
	i := strings.Index(haystack[from:], needle)
	if i < 0 {
		return strings.Index(haystack, needle)
	}
	return from + i
}
