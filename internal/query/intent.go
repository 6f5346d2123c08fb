package query

import (
	"strings"
	"unicode"
)

// Intent routes a question to the right answering strategy.
type Intent string

const (
	// IntentNews needs retrieval over the article corpus.
	IntentNews Intent = "news_current_events"
	// IntentGeneral is answerable from model knowledge alone.
	IntentGeneral Intent = "general_qa"
)

// Classification is an intent with its confidence and the winning signal.
type Classification struct {
	Intent     Intent
	Confidence float64 // in [0.5, 1.0]
	Reason     string
}

// newsSignals suggest the user wants current events.
var newsSignals = []string{
	"news", "latest", "today", "yesterday", "this week", "recent",
	"happening", "happened", "announced", "breaking", "update", "headlines",
	"новост", "последн", "сегодня", "вчера", "произошло", "случилось",
	"объявил", "заявил", "сообщил",
}

// generalSignals suggest a timeless knowledge question.
var generalSignals = []string{
	"what is", "what are", "who is", "who was", "how does", "how do",
	"how to", "why do", "why does", "define", "explain", "difference between",
	"что такое", "кто такой", "кто такая", "как работает", "как устроен",
	"почему", "объясни", "в чем разница",
}

// Classify picks the intent for a question. Any operator forces the news
// path at full confidence; otherwise lexical signals vote, capitalized
// multi-word phrases count as entity mentions for news, and short
// capitalized queries lean news.
func Classify(raw string) Classification {
	p := Parse(raw)
	if p.HasOperators {
		return Classification{IntentNews, 1.0, "search operator present"}
	}
	if p.Window > 0 {
		return Classification{IntentNews, 0.9, "time window phrase"}
	}

	lower := strings.ToLower(raw)
	news := countSignals(lower, newsSignals)
	general := countSignals(lower, generalSignals)
	entities := capitalizedPhrases(raw)
	news += entities

	switch {
	case news > general:
		return Classification{IntentNews, confidence(news, general), "news signals dominate"}
	case general > news:
		return Classification{IntentGeneral, confidence(general, news), "question pattern dominates"}
	}

	if len(strings.Fields(raw)) <= 4 && entities > 0 {
		return Classification{IntentNews, 0.6, "short query naming entities"}
	}
	return Classification{IntentGeneral, 0.5, "no decisive signal"}
}

func confidence(winner, loser int) float64 {
	c := 0.5 + 0.15*float64(winner-loser)
	if c > 1.0 {
		c = 1.0
	}
	return c
}

func countSignals(text string, signals []string) int {
	n := 0
	for _, s := range signals {
		if strings.Contains(text, s) {
			n++
		}
	}
	return n
}

// capitalizedPhrases counts runs of two or more capitalized words, a cheap
// proxy for named entities.
func capitalizedPhrases(raw string) int {
	count := 0
	run := 0
	for _, w := range strings.Fields(raw) {
		if unicode.IsUpper([]rune(w)[0]) {
			run++
			if run == 2 {
				count++
			}
		} else {
			run = 0
		}
	}
	return count
}
