package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello\n\tWorld  "))
	assert.Equal(t, "a b c", Normalize("A  B   C"))
	assert.Equal(t, "", Normalize("   \n "))
}

func TestHashIgnoresCosmeticEdits(t *testing.T) {
	a := Hash("The Quick  Brown Fox.\n")
	b := Hash("the quick brown fox.")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, Hash("x"), Hash(Normalize("x")))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "ai regulation what changed", NormalizeTitle("AI Regulation: What Changed?"))
	assert.Equal(t, "новости дня", NormalizeTitle("Новости дня!"))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 4, WordCount("one two  three\nfour"))
}

func TestShingles(t *testing.T) {
	got := Shingles("a b c d e f", 5)
	assert.Equal(t, []string{"a b c d e", "b c d e f"}, got)

	short := Shingles("one two", 5)
	assert.Equal(t, []string{"one two"}, short)

	assert.Nil(t, Shingles("   ", 5))
}

func TestShinglesDeduplicated(t *testing.T) {
	got := Shingles("x x x x x x x", 3)
	assert.Equal(t, []string{"x x x"}, got)
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("word ", 100)
	s := Snippet(long, 240)
	assert.LessOrEqual(t, len([]rune(s)), 240)
	assert.True(t, strings.HasSuffix(s, "…"))

	assert.Equal(t, "short text", Snippet("short text", 240))
}
