package ask

import (
	"fmt"
	"strings"

	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/textutil"
)

const generalSystemPrompt = `You are a knowledgeable assistant. Answer the question directly and concisely from your own knowledge. If the question actually depends on very recent events you may not know about, say so.`

const analyzeSystemPrompt = `You are a news analyst. Answer the question using ONLY the numbered articles provided. Respond with a JSON object:
{
  "answer": "the answer, citing articles as [1], [2], ...",
  "reasoning": "one or two sentences on how the articles support the answer",
  "confidence": 0.0 to 1.0,
  "needs_more_info": true if the articles are insufficient,
  "refined_query": "a better search query if needs_more_info, else empty"
}
If the articles do not answer the question, say so in "answer" and set needs_more_info.`

const selfCheckSystemPrompt = `You compare two draft answers written from the same source articles. Respond with a JSON object:
{
  "consistent": true if the drafts make the same factual claims and the articles support them,
  "confidence": 0.0 to 1.0,
  "issues": "claims where the drafts disagree or lack support, empty if none"
}`

// contextBudget caps how much article text goes into a prompt.
const contextChunkMax = 700

func analyzeUserPrompt(question string, chunks []*search.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nArticles:\n")
	writeContext(&b, chunks)
	return b.String()
}

func selfCheckUserPrompt(question, first, second string, chunks []*search.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nFirst draft: ")
	b.WriteString(first)
	b.WriteString("\n\nSecond draft: ")
	b.WriteString(second)
	b.WriteString("\n\nArticles:\n")
	writeContext(&b, chunks)
	return b.String()
}

func reconcileUserPrompt(question, first, second, issues string, chunks []*search.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nTwo earlier drafts of the answer disagree.\nFirst draft: ")
	b.WriteString(first)
	b.WriteString("\nSecond draft: ")
	b.WriteString(second)
	if issues != "" {
		b.WriteString("\nReported issues: ")
		b.WriteString(issues)
	}
	b.WriteString("\n\nWrite one answer that resolves the disagreement, keeping only claims the articles support.\n\nArticles:\n")
	writeContext(&b, chunks)
	return b.String()
}

func writeContext(b *strings.Builder, chunks []*search.ScoredChunk) {
	if len(chunks) == 0 {
		b.WriteString("(no articles retrieved)\n")
		return
	}
	for i, c := range chunks {
		date := "date unknown"
		if c.PublishedAt != nil {
			date = c.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(b, "[%d] %s (%s, %s)\n%s\n\n",
			i+1, c.Title, c.SourceDomain, date,
			textutil.Snippet(c.Text, contextChunkMax))
	}
}
