package search

import (
	"sort"

	minhashlsh "github.com/ekzhu/minhash-lsh"

	"github.com/langgraphsystem/rssnews/internal/dedup"
	"github.com/langgraphsystem/rssnews/internal/textutil"
	"github.com/langgraphsystem/rssnews/internal/urlutil"
)

// dedupe removes duplicate stories from a scored candidate list, in two
// passes. First, exact grouping by (eTLD+1, normalized path, normalized
// title): the group winner maximizes (has_date, source_score, word_count,
// score) lexicographically. Second, MinHash-LSH near-duplicate merging over
// chunk text. Returns survivors in rank order and the number removed.
func (s *Searcher) dedupe(chunks []*ScoredChunk) ([]*ScoredChunk, int) {
	if len(chunks) <= 1 {
		return chunks, 0
	}
	before := len(chunks)

	groups := make(map[string]*ScoredChunk, len(chunks))
	order := make([]string, 0, len(chunks))
	for _, c := range chunks {
		key := groupKey(c)
		best, ok := groups[key]
		if !ok {
			groups[key] = c
			order = append(order, key)
			continue
		}
		if groupBetter(c, best) {
			groups[key] = c
		}
	}

	survivors := make([]*ScoredChunk, 0, len(order))
	for _, key := range order {
		survivors = append(survivors, groups[key])
	}

	survivors = s.lshMerge(survivors)

	sort.Slice(survivors, func(i, j int) bool { return rankLess(survivors[i], survivors[j]) })
	return survivors, before - len(survivors)
}

func groupKey(c *ScoredChunk) string {
	return urlutil.ETLD1(c.SourceDomain) + "|" +
		urlutil.NormalizePath(c.URL) + "|" +
		textutil.NormalizeTitle(c.Title)
}

// groupBetter implements the lexicographic winner rule.
func groupBetter(a, b *ScoredChunk) bool {
	aDated, bDated := a.PublishedAt != nil, b.PublishedAt != nil
	if aDated != bDated {
		return aDated
	}
	if a.SourceScore != b.SourceScore {
		return a.SourceScore > b.SourceScore
	}
	if a.WordCount != b.WordCount {
		return a.WordCount > b.WordCount
	}
	return a.Score > b.Score
}

// lshMerge drops near-duplicate texts, keeping the better-ranked chunk.
// The LSH index is constructed fresh for every call and each id is inserted
// exactly once, tracked by a processed-ids set.
func (s *Searcher) lshMerge(chunks []*ScoredChunk) []*ScoredChunk {
	if len(chunks) <= 1 {
		return chunks
	}

	sigs := make(map[string][]uint64, len(chunks))
	lsh := minhashlsh.NewMinhashLSH16(128, s.deduper.Threshold(), len(chunks))
	processed := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, done := processed[c.ChunkID]; done {
			continue
		}
		processed[c.ChunkID] = struct{}{}
		sig, err := s.deduper.Signature(c.Text)
		if err != nil {
			continue
		}
		sigs[c.ChunkID] = sig
		lsh.Add(c.ChunkID, sig)
	}
	lsh.Index()

	ranked := make([]*ScoredChunk, len(chunks))
	copy(ranked, chunks)
	sort.Slice(ranked, func(i, j int) bool { return rankLess(ranked[i], ranked[j]) })

	dropped := make(map[string]struct{})
	for _, c := range ranked {
		if _, gone := dropped[c.ChunkID]; gone {
			continue
		}
		sig, ok := sigs[c.ChunkID]
		if !ok {
			continue
		}
		for _, raw := range lsh.Query(sig) {
			otherID, _ := raw.(string)
			if otherID == c.ChunkID {
				continue
			}
			if _, gone := dropped[otherID]; gone {
				continue
			}
			if dedup.EstimateJaccard(sig, sigs[otherID]) >= s.deduper.Threshold() {
				dropped[otherID] = struct{}{}
			}
		}
	}

	if len(dropped) == 0 {
		return chunks
	}
	out := chunks[:0]
	for _, c := range chunks {
		if _, gone := dropped[c.ChunkID]; !gone {
			out = append(out, c)
		}
	}
	return out
}

// diversify caps results per eTLD+1, preserving rank order.
func diversify(chunks []*ScoredChunk, maxPerDomain int) ([]*ScoredChunk, int) {
	if maxPerDomain <= 0 {
		return chunks, 0
	}
	counts := make(map[string]int)
	out := make([]*ScoredChunk, 0, len(chunks))
	capped := 0
	for _, c := range chunks {
		d := urlutil.ETLD1(c.SourceDomain)
		if counts[d] >= maxPerDomain {
			capped++
			continue
		}
		counts[d]++
		out = append(out, c)
	}
	return out, capped
}
