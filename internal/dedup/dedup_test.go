package dedup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseStory = `The central bank raised interest rates by a quarter point on Wednesday,
citing persistent inflation in services and housing. Officials signaled that further
increases remain possible if price growth does not cool through the autumn. Markets
had largely priced in the move, and bond yields were little changed after the
announcement. The decision was not unanimous, with two members voting to hold.`

func TestSignatureDeterministic(t *testing.T) {
	d := New()
	a, err := d.Signature(baseStory)
	require.NoError(t, err)
	b, err := d.Signature(baseStory)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, defaultNumHashes)
}

func TestSignatureTooShort(t *testing.T) {
	_, err := New().Signature("one two")
	assert.Error(t, err)
}

func TestEstimateJaccard(t *testing.T) {
	assert.Equal(t, 0.0, EstimateJaccard(nil, nil))
	assert.Equal(t, 0.0, EstimateJaccard([]uint64{1}, []uint64{1, 2}))
	assert.Equal(t, 1.0, EstimateJaccard([]uint64{1, 2, 3}, []uint64{1, 2, 3}))
	assert.InDelta(t, 0.5, EstimateJaccard([]uint64{1, 2}, []uint64{1, 9}), 0.001)
}

func TestFindNearDuplicateIdenticalText(t *testing.T) {
	d := New()
	id, sim, ok := d.FindNearDuplicate(baseStory, []Doc{
		{ID: 1, Text: "completely unrelated football match report about the cup final and penalties"},
		{ID: 2, Text: baseStory},
	})
	require.True(t, ok)
	assert.Equal(t, int64(2), id)
	assert.InDelta(t, 1.0, sim, 0.001)
}

func TestFindNearDuplicateLightRewrite(t *testing.T) {
	// Same story with one sentence appended keeps most shingles intact.
	rewrite := baseStory + " Analysts expect one more hike before the end of the year."
	d := New(WithThreshold(0.7))
	id, sim, ok := d.FindNearDuplicate(rewrite, []Doc{{ID: 5, Text: baseStory}})
	require.True(t, ok)
	assert.Equal(t, int64(5), id)
	assert.Greater(t, sim, 0.7)
}

func TestFindNearDuplicateDistinctStories(t *testing.T) {
	other := strings.Repeat("the quick brown fox jumps over the lazy dog near the river bank today ", 5)
	d := New()
	_, _, ok := d.FindNearDuplicate(baseStory, []Doc{{ID: 9, Text: other}})
	assert.False(t, ok)
}

func TestFindNearDuplicateEmptyCorpus(t *testing.T) {
	_, _, ok := New().FindNearDuplicate(baseStory, nil)
	assert.False(t, ok)
}
