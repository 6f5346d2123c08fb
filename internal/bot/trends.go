package bot

import (
	"sort"
	"strings"

	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/urlutil"
)

// Cluster is one group of related headlines.
type Cluster struct {
	Representative string
	Size           int
	Domains        []string
}

// minOverlap is the token Jaccard similarity at which two headlines are
// considered the same story.
const minOverlap = 0.25

// trendStopwords are dropped from headline tokens before comparison.
var trendStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "as": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "has": {}, "have": {}, "after": {},
	"over": {}, "amid": {}, "new": {}, "says": {}, "say": {},
	"и": {}, "в": {}, "на": {}, "с": {}, "по": {}, "из": {}, "за": {},
	"не": {}, "для": {}, "как": {}, "что": {}, "это": {},
}

// clusterTitles groups headlines greedily by token overlap. One article per
// (eTLD+1, title) pair feeds the clustering, so republications within one
// outlet do not inflate a trend. Clusters come back largest first.
func clusterTitles(chunks []*search.ScoredChunk) []Cluster {
	type item struct {
		title  string
		domain string
		tokens map[string]struct{}
	}

	seen := make(map[string]struct{}, len(chunks))
	var items []item
	for _, c := range chunks {
		domain := urlutil.ETLD1(c.SourceDomain)
		key := domain + "|" + strings.ToLower(c.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tokens := titleTokens(c.Title)
		if len(tokens) == 0 {
			continue
		}
		items = append(items, item{title: c.Title, domain: domain, tokens: tokens})
	}

	type group struct {
		rep     item
		size    int
		domains map[string]struct{}
	}
	var groups []*group
	for _, it := range items {
		placed := false
		for _, g := range groups {
			if jaccard(it.tokens, g.rep.tokens) >= minOverlap {
				g.size++
				g.domains[it.domain] = struct{}{}
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{
				rep:     it,
				size:    1,
				domains: map[string]struct{}{it.domain: {}},
			})
		}
	}

	out := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		domains := make([]string, 0, len(g.domains))
		for d := range g.domains {
			domains = append(domains, d)
		}
		sort.Strings(domains)
		out = append(out, Cluster{Representative: g.rep.title, Size: g.size, Domains: domains})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return len(out[i].Domains) > len(out[j].Domains)
	})
	return out
}

func titleTokens(title string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(title)) {
		f = strings.Trim(f, `.,:;!?"'()[]«»—-`)
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := trendStopwords[f]; stop {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
