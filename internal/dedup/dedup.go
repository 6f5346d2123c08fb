// Package dedup finds near-duplicate articles with MinHash signatures and
// LSH candidate lookup. Exact duplicates are caught earlier by text hash;
// this layer handles rewrites of the same wire story.
package dedup

import (
	"fmt"

	minhashlsh "github.com/ekzhu/minhash-lsh"

	"github.com/langgraphsystem/rssnews/internal/textutil"
)

const (
	defaultNumHashes = 128
	defaultShingleK  = 3
	defaultSeed      = 1
)

// Deduper computes signatures and runs near-duplicate queries. Safe for
// concurrent use; each query builds its own LSH index.
type Deduper struct {
	numHashes int
	shingleK  int
	threshold float64
	seed      int64
}

// Option configures a Deduper.
type Option func(*Deduper)

// WithThreshold sets the Jaccard similarity above which two texts are
// considered the same story.
func WithThreshold(t float64) Option {
	return func(d *Deduper) { d.threshold = t }
}

// WithNumHashes sets the signature length.
func WithNumHashes(n int) Option {
	return func(d *Deduper) { d.numHashes = n }
}

// New builds a Deduper with the 0.85 default threshold.
func New(opts ...Option) *Deduper {
	d := &Deduper{
		numHashes: defaultNumHashes,
		shingleK:  defaultShingleK,
		threshold: 0.85,
		seed:      defaultSeed,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold reports the configured similarity cutoff.
func (d *Deduper) Threshold() float64 { return d.threshold }

// Signature computes the MinHash signature of a text over its word
// shingles. Returns an error for texts too short to shingle.
func (d *Deduper) Signature(text string) ([]uint64, error) {
	shingles := textutil.Shingles(text, d.shingleK)
	if len(shingles) == 0 {
		return nil, fmt.Errorf("text too short to shingle (need %d words)", d.shingleK)
	}
	mh := minhashlsh.NewMinhash(d.seed, d.numHashes)
	for _, sh := range shingles {
		mh.Push([]byte(sh))
	}
	return mh.Signature(), nil
}

// EstimateJaccard estimates similarity from two signatures as the fraction
// of agreeing positions.
func EstimateJaccard(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	equal := 0
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / float64(len(a))
}

// Doc is one previously stored article offered for comparison.
type Doc struct {
	ID   int64
	Text string
}

// FindNearDuplicate checks text against docs and returns the best match at
// or above the threshold. The LSH index is rebuilt per call: the comparison
// set is small (recent articles from one domain) and a fresh index avoids
// the library's one-shot Index() restriction.
func (d *Deduper) FindNearDuplicate(text string, docs []Doc) (int64, float64, bool) {
	if len(docs) == 0 {
		return 0, 0, false
	}
	qsig, err := d.Signature(text)
	if err != nil {
		return 0, 0, false
	}

	lsh := minhashlsh.NewMinhashLSH16(d.numHashes, d.threshold, len(docs))
	sigs := make(map[string][]uint64, len(docs))
	ids := make(map[string]int64, len(docs))
	for _, doc := range docs {
		sig, err := d.Signature(doc.Text)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%d", doc.ID)
		sigs[key] = sig
		ids[key] = doc.ID
		lsh.Add(key, sig)
	}
	lsh.Index()

	// LSH returns probable matches; verify each against the threshold and
	// keep the best.
	var bestID int64
	var bestSim float64
	for _, raw := range lsh.Query(qsig) {
		key, ok := raw.(string)
		if !ok {
			continue
		}
		sim := EstimateJaccard(qsig, sigs[key])
		if sim >= d.threshold && sim > bestSim {
			bestSim = sim
			bestID = ids[key]
		}
	}
	if bestSim == 0 {
		return 0, 0, false
	}
	return bestID, bestSim, true
}
