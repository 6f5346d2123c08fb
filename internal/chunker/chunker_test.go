package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/store"
)

// wordEncoder tokenizes on whitespace so the tests never touch the network
// for the tiktoken vocabulary.
type wordEncoder struct {
	words []string
	index map[string]int
}

func newWordEncoder() *wordEncoder {
	return &wordEncoder{index: make(map[string]int)}
}

func (e *wordEncoder) Encode(text string) []int {
	var out []int
	for _, w := range strings.Fields(text) {
		id, ok := e.index[w]
		if !ok {
			id = len(e.words)
			e.words = append(e.words, w)
			e.index[w] = id
		}
		out = append(out, id)
	}
	return out
}

func (e *wordEncoder) Decode(tokens []int) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, e.words[t])
	}
	return strings.Join(parts, " ")
}

func testChunker(t *testing.T, cfg config.ChunkConfig, complete CompleteFunc) *Chunker {
	t.Helper()
	return NewWithEncoder(newWordEncoder(), cfg, complete, slog.Default())
}

func testArticle(text string) *store.Article {
	return &store.Article{
		ID: 7, Title: "Headline", CleanText: text,
		SourceDomain: "example.com", Language: "en", Category: "business",
		QualityScore: 0.7, ProcessingVersion: 1,
	}
}

func paragraphs(n, sentencesEach int) string {
	var paras []string
	for i := 0; i < n; i++ {
		paras = append(paras, strings.TrimSpace(strings.Repeat(
			fmt.Sprintf("Paragraph %d reports on the quarterly results in detail. ", i), sentencesEach)))
	}
	return strings.Join(paras, "\n\n")
}

func TestSplitSmallArticleSingleChunk(t *testing.T) {
	c := testChunker(t, config.Default().Chunk, nil)
	chunks, err := c.Split(context.Background(), testArticle(paragraphs(3, 2)))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	ch := chunks[0]
	assert.Equal(t, "7#0", ch.ID)
	assert.Equal(t, int64(7), ch.ArticleID)
	assert.Equal(t, 0, ch.Index)
	assert.Equal(t, store.ChunkBody, ch.Type)
	assert.Equal(t, "example.com", ch.SourceDomain)
	assert.Equal(t, "Headline", ch.Title)
	assert.Equal(t, 0, ch.CharStart)
}

func TestSplitRespectsTokenBound(t *testing.T) {
	cfg := config.Default().Chunk
	cfg.MaxChunkTokens = 120
	cfg.OverlapTokens = 10
	c := testChunker(t, cfg, nil)

	chunks, err := c.Split(context.Background(), testArticle(paragraphs(12, 3)))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.LessOrEqual(t, c.CountTokens(ch.Text), cfg.MaxChunkTokens, ch.ID)
	}

	// First and last chunks carry their positional types.
	assert.Equal(t, store.ChunkIntro, chunks[0].Type)
	assert.Equal(t, store.ChunkConclusion, chunks[len(chunks)-1].Type)

	// Indexes are dense and IDs follow them.
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, store.ChunkID(7, i), ch.ID)
	}
}

func TestSplitOversizedParagraph(t *testing.T) {
	cfg := config.Default().Chunk
	cfg.MaxChunkTokens = 50
	cfg.OverlapTokens = 5
	c := testChunker(t, cfg, nil)

	// One giant paragraph with no blank lines forces token splitting.
	text := strings.Repeat("The committee deliberated at length over the proposed amendments. ", 40)
	chunks, err := c.Split(context.Background(), testArticle(text))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)
	for _, ch := range chunks {
		assert.LessOrEqual(t, c.CountTokens(ch.Text), cfg.MaxChunkTokens)
	}
}

func TestSplitDeterministic(t *testing.T) {
	cfg := config.Default().Chunk
	cfg.MaxChunkTokens = 100
	c := testChunker(t, cfg, nil)
	a := testArticle(paragraphs(10, 3))

	first, err := c.Split(context.Background(), a)
	require.NoError(t, err)
	second, err := c.Split(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestSplitEmptyArticle(t *testing.T) {
	c := testChunker(t, config.Default().Chunk, nil)
	_, err := c.Split(context.Background(), testArticle("   "))
	assert.Error(t, err)
}

func TestLLMSplitterUsedWhenEnabled(t *testing.T) {
	cfg := config.Default().Chunk
	cfg.UseLLMSplitter = true
	text := "First part about markets.\n\nSecond part about policy."
	c := testChunker(t, cfg, func(ctx context.Context, prompt string) (string, error) {
		return `["First part about markets.", "Second part about policy."]`, nil
	})

	chunks, err := c.Split(context.Background(), testArticle(text))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "First part about markets.", chunks[0].Text)
}

func TestLLMSplitterFailureFallsBack(t *testing.T) {
	cfg := config.Default().Chunk
	cfg.UseLLMSplitter = true
	c := testChunker(t, cfg, func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("model unavailable")
	})

	chunks, err := c.Split(context.Background(), testArticle(paragraphs(2, 2)))
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestParseSplitterResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"flat array", `["a", "b"]`, []string{"a", "b"}},
		{"object array", `[{"text": "first"}, {"text": "second"}]`, []string{"first", "second"}},
		{"wrapped strings", `{"chunks": ["a", "b"]}`, []string{"a", "b"}},
		{"wrapped objects", `{"chunks": [{"text": "a"}, {"text": "b"}]}`, []string{"a", "b"}},
		{"single object", `{"text": "only chunk"}`, []string{"only chunk"}},
		{"code fence", "```json\n[\"a\"]\n```", []string{"a"}},
		{"blank entries dropped", `["a", "  ", "b"]`, []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSplitterResponse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseSplitterResponseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not json", `{"data": []}`, `{"chunks": [42]}`} {
		_, err := ParseSplitterResponse(raw)
		assert.Error(t, err, raw)
	}
}

func TestIsList(t *testing.T) {
	list := "- one\n- two\n- three\n- four"
	prose := "Sentence one.\nSentence two.\nSentence three."
	assert.True(t, isList(list))
	assert.False(t, isList(prose))
}
