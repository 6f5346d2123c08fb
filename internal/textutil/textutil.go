// Package textutil provides text normalization, content hashing, and the
// shingling used by near-duplicate detection.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases text, collapses whitespace runs to single spaces,
// and strips leading/trailing space. Hashing and shingling both run over
// this form so cosmetic edits do not defeat deduplication.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Hash returns the SHA-256 hex digest of the normalized text.
// Hash(t) == Hash(Normalize(t)) for every t.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// CollapseWhitespace squeezes whitespace runs to single spaces without
// changing case.
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

var (
	inlineRun    = regexp.MustCompile(`[ \t]+`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
)

// CleanBody tidies extracted article text while preserving paragraph
// boundaries: spaces collapse within lines, blank-line runs collapse to one
// empty line, and whitespace-only lines disappear.
func CleanBody(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// NormalizeTitle produces the title grouping key: normalized text with
// punctuation removed.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Shingles returns the k-word shingle set of the normalized text.
// Texts shorter than k words yield a single shingle of the whole text.
func Shingles(text string, k int) []string {
	if k <= 0 {
		k = 5
	}
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		return nil
	}
	if len(words) <= k {
		return []string{strings.Join(words, " ")}
	}

	seen := make(map[string]struct{}, len(words)-k+1)
	shingles := make([]string, 0, len(words)-k+1)
	for i := 0; i+k <= len(words); i++ {
		s := strings.Join(words[i:i+k], " ")
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		shingles = append(shingles, s)
	}
	return shingles
}

// Snippet truncates text to at most max runes on a word boundary,
// appending an ellipsis when truncated.
func Snippet(text string, max int) string {
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max-1])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
