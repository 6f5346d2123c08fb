package article

import (
	"strings"
	"time"
)

// QualityInput carries the signals quality scoring reads.
type QualityInput struct {
	WordCount    int
	Title        string
	HasAuthors   bool
	HasDate      bool
	PubEstimated bool
	TrustScore   int // feed trust, 0-100
	PublishedAt  *time.Time
}

// Quality scores an article in [0,1]. Length carries half the weight; the
// rest rewards complete metadata and source trust.
func Quality(in QualityInput) float64 {
	var score float64

	switch {
	case in.WordCount >= 800:
		score += 0.5
	case in.WordCount >= 400:
		score += 0.4
	case in.WordCount >= 200:
		score += 0.3
	case in.WordCount >= 80:
		score += 0.15
	}

	if in.Title != "" {
		score += 0.1
	}
	if in.HasAuthors {
		score += 0.1
	}
	if in.HasDate && !in.PubEstimated {
		score += 0.1
	} else if in.HasDate {
		score += 0.05
	}

	score += 0.2 * float64(in.TrustScore) / 100

	if score > 1 {
		score = 1
	}
	return score
}

// categoryKeywords maps a category to lowercase keywords matched against
// title and lead text. First category to hit two distinct keywords wins;
// a single hit falls through to the next candidate.
var categoryKeywords = map[string][]string{
	"business":   {"market", "stocks", "earnings", "economy", "inflation", "merger", "ipo", "revenue", "акции", "рынок", "экономика", "инфляция"},
	"technology": {"software", "startup", "ai", "chip", "cloud", "app", "cyber", "robot", "технолог", "стартап", "программ"},
	"politics":   {"election", "parliament", "senate", "minister", "president", "policy", "sanctions", "выборы", "парламент", "президент", "санкции"},
	"science":    {"research", "study", "scientists", "climate", "space", "vaccine", "физик", "исследован", "ученые", "космос"},
	"sports":     {"match", "league", "championship", "tournament", "coach", "goal", "матч", "чемпионат", "турнир"},
	"health":     {"health", "hospital", "disease", "treatment", "patients", "здоровье", "болезн", "лечени"},
}

// categoryOrder keeps classification deterministic.
var categoryOrder = []string{"business", "technology", "politics", "science", "sports", "health"}

// Categorize assigns a coarse category from title and the first part of the
// body. Unmatched articles get "general".
func Categorize(title, text string) string {
	sample := strings.ToLower(title + " " + lead(text, 600))

	bestCat := "general"
	bestHits := 0
	for _, cat := range categoryOrder {
		hits := 0
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(sample, kw) {
				hits++
			}
		}
		if hits >= 2 && hits > bestHits {
			bestCat = cat
			bestHits = hits
		}
	}
	return bestCat
}

func lead(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
