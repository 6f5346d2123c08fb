package search

import (
	"regexp"
	"strings"
	"sync"
)

// Category penalties demote chunks that match news-adjacent noise
// categories. A penalty fires only when at least two distinct keywords for
// the category match on word boundaries in the title or text.

// CategoryPenalty is one demotion rule.
type CategoryPenalty struct {
	Name     string
	Factor   float64
	Keywords []string
}

// DefaultPenalties are the shipped rules.
func DefaultPenalties() []CategoryPenalty {
	return []CategoryPenalty{
		{
			Name:   "sports",
			Factor: 0.5,
			Keywords: []string{
				"match", "league", "playoff", "championship", "tournament",
				"goal", "coach", "striker", "quarterback", "innings",
				"матч", "лига", "чемпионат", "турнир", "гол", "тренер",
			},
		},
		{
			Name:   "entertainment",
			Factor: 0.6,
			Keywords: []string{
				"celebrity", "premiere", "box office", "album", "grammy",
				"oscars", "reality show", "red carpet",
				"знаменитость", "премьера", "альбом", "сериал",
			},
		},
		{
			Name:   "crime-blotter",
			Factor: 0.7,
			Keywords: []string{
				"arrested", "robbery", "stabbing", "burglary", "assault",
				"police said", "suspect fled",
				"арестован", "ограбление", "нападение", "подозреваемый",
			},
		},
		{
			Name:   "weather",
			Factor: 0.8,
			Keywords: []string{
				"forecast", "rainfall", "heatwave", "snowfall", "humidity",
				"temperatures", "degrees",
				"прогноз погоды", "осадки", "жара", "снегопад",
			},
		},
	}
}

// penalizer applies category penalties with compiled word-boundary patterns.
type penalizer struct {
	rules []compiledPenalty
}

type compiledPenalty struct {
	name     string
	factor   float64
	patterns []*regexp.Regexp
}

var (
	penaltyOnce   sync.Once
	defaultRules  []compiledPenalty
	nonWordBefore = `(^|[^\p{L}\p{N}])`
	nonWordAfter  = `($|[^\p{L}\p{N}])`
)

func compilePenalties(rules []CategoryPenalty) []compiledPenalty {
	out := make([]compiledPenalty, 0, len(rules))
	for _, r := range rules {
		cp := compiledPenalty{name: r.Name, factor: r.Factor}
		for _, kw := range r.Keywords {
			cp.patterns = append(cp.patterns, regexp.MustCompile(
				nonWordBefore+regexp.QuoteMeta(strings.ToLower(kw))+nonWordAfter))
		}
		out = append(out, cp)
	}
	return out
}

func newPenalizer() *penalizer {
	penaltyOnce.Do(func() {
		defaultRules = compilePenalties(DefaultPenalties())
	})
	return &penalizer{rules: defaultRules}
}

// apply returns the multiplicative penalty for a chunk, 1.0 when none
// fires, and the name of the category that fired.
func (p *penalizer) apply(title, text string) (float64, string) {
	sample := strings.ToLower(title + " " + text)
	for _, rule := range p.rules {
		hits := 0
		for _, pat := range rule.patterns {
			if pat.MatchString(sample) {
				hits++
				if hits >= 2 {
					return rule.factor, rule.name
				}
			}
		}
	}
	return 1.0, ""
}
