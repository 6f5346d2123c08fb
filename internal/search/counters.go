package search

import "sync/atomic"

// Counters accumulate across calls for the health surface.
type Counters struct {
	CandidatesConsidered atomic.Int64
	OffTopicDropped      atomic.Int64
	CategoryPenalized    atomic.Int64
	DuplicatesRemoved    atomic.Int64
	DomainsCapped        atomic.Int64
	WindowExpansions     atomic.Int64
	CacheHits            atomic.Int64
}

// CounterSnapshot is a plain-value copy for JSON responses.
type CounterSnapshot struct {
	CandidatesConsidered int64 `json:"candidates_considered"`
	OffTopicDropped      int64 `json:"offtopic_dropped_total"`
	CategoryPenalized    int64 `json:"category_penalized_total"`
	DuplicatesRemoved    int64 `json:"duplicates_removed_total"`
	DomainsCapped        int64 `json:"domains_capped_total"`
	WindowExpansions     int64 `json:"window_expansions_total"`
	CacheHits            int64 `json:"cache_hits_total"`
}

// Snapshot copies current counter values.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		CandidatesConsidered: c.CandidatesConsidered.Load(),
		OffTopicDropped:      c.OffTopicDropped.Load(),
		CategoryPenalized:    c.CategoryPenalized.Load(),
		DuplicatesRemoved:    c.DuplicatesRemoved.Load(),
		DomainsCapped:        c.DomainsCapped.Load(),
		WindowExpansions:     c.WindowExpansions.Load(),
		CacheHits:            c.CacheHits.Load(),
	}
}
