package query

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainQuery(t *testing.T) {
	p := Parse("interest rate decision")
	assert.Equal(t, "interest rate decision", p.Clean)
	assert.Empty(t, p.Sources)
	assert.Nil(t, p.After)
	assert.Nil(t, p.Before)
	assert.Zero(t, p.Window)
	assert.False(t, p.HasOperators)
}

func TestParseSiteOperator(t *testing.T) {
	p := Parse("site:www.bbc.co.uk elections")
	assert.Equal(t, "elections", p.Clean)
	assert.Equal(t, []string{"bbc.co.uk"}, p.Sources)
	assert.True(t, p.HasOperators)
}

func TestParseMultipleSites(t *testing.T) {
	p := Parse("site:reuters.com site:bloomberg.com oil prices")
	assert.Equal(t, []string{"reuters.com", "bloomberg.com"}, p.Sources)
	assert.Equal(t, "oil prices", p.Clean)
}

func TestParserRejectsUntrustedSite(t *testing.T) {
	pr := NewParser([]string{"reuters.com", "bbc.co.uk"}, slog.Default())
	p := pr.Parse("site:shady-blog.example site:reuters.com oil")
	assert.Equal(t, []string{"reuters.com"}, p.Sources)
	assert.True(t, p.HasOperators)
	assert.Equal(t, "oil", p.Clean)
}

func TestParserNormalizesSubdomainToETLD1(t *testing.T) {
	pr := NewParser([]string{"bbc.co.uk"}, slog.Default())
	p := pr.Parse("site:news.bbc.co.uk elections")
	assert.Equal(t, []string{"bbc.co.uk"}, p.Sources)
}

func TestParseDateBounds(t *testing.T) {
	p := Parse("sanctions after:2025-01-15 before:2025-03-01")
	assert.Equal(t, "sanctions", p.Clean)
	require.NotNil(t, p.After)
	require.NotNil(t, p.Before)
	assert.Equal(t, time.January, p.After.Month())
	assert.Equal(t, 15, p.After.Day())
	assert.Equal(t, time.March, p.Before.Month())
}

func TestParseRelativeDates(t *testing.T) {
	pr := NewParser(nil, nil)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	pr.now = func() time.Time { return now }

	p := pr.Parse("sanctions after:3d")
	require.NotNil(t, p.After)
	assert.Equal(t, now.Add(-3*24*time.Hour), *p.After)

	p = pr.Parse("sanctions after:1w before:2m")
	require.NotNil(t, p.After)
	require.NotNil(t, p.Before)
	assert.Equal(t, now.Add(-7*24*time.Hour), *p.After)
	assert.Equal(t, now.Add(-60*24*time.Hour), *p.Before)
}

func TestParseBadDateDropped(t *testing.T) {
	p := Parse("sanctions after:someday")
	assert.Equal(t, "sanctions", p.Clean)
	assert.Nil(t, p.After)
	assert.True(t, p.HasOperators)
}

func TestParseWindowPhrases(t *testing.T) {
	cases := []struct {
		raw    string
		window time.Duration
		clean  string
	}{
		{"rate cuts this week", 7 * 24 * time.Hour, "rate cuts"},
		{"rate cuts today", 24 * time.Hour, "rate cuts"},
		{"mergers last month", 30 * 24 * time.Hour, "mergers"},
		{"новости за неделю", 7 * 24 * time.Hour, "новости"},
		{"что произошло сегодня", 24 * time.Hour, "что произошло"},
	}
	for _, tc := range cases {
		p := Parse(tc.raw)
		assert.Equal(t, tc.window, p.Window, tc.raw)
		assert.Equal(t, tc.clean, p.Clean, tc.raw)
	}
}

func TestParseLongerPhraseWins(t *testing.T) {
	p := Parse("события за последнюю неделю")
	assert.Equal(t, 7*24*time.Hour, p.Window)
	assert.Equal(t, "события", p.Clean)
}

func TestParseWindowOperator(t *testing.T) {
	p := Parse("oil exports window:7d")
	assert.Equal(t, 7*24*time.Hour, p.Window)
	assert.Equal(t, "oil exports", p.Clean)
	assert.True(t, p.HasOperators)

	p = Parse("oil exports window:36h")
	assert.Equal(t, 36*time.Hour, p.Window)

	// Malformed window values are dropped like bad dates.
	p = Parse("oil exports window:soon")
	assert.Zero(t, p.Window)
	assert.Equal(t, "oil exports", p.Clean)
}

func TestParseStringRoundTrip(t *testing.T) {
	p := Parse("site:bbc.co.uk elections after:2025-01-15 this week")
	assert.Contains(t, p.String(), "window:7d")

	again := Parse(p.String())
	assert.Equal(t, p.Clean, again.Clean)
	assert.Equal(t, p.Sources, again.Sources)
	assert.Equal(t, p.Window, again.Window)
	require.NotNil(t, again.After)
	assert.Equal(t, p.After.Format("2006-01-02"), again.After.Format("2006-01-02"))
}

func TestClassifyNews(t *testing.T) {
	for _, q := range []string{
		"latest news on the merger",
		"what happened today in parliament",
		"нефть новости за неделю",
		"fed decision on European Central Bank rates",
	} {
		c := Classify(q)
		assert.Equal(t, IntentNews, c.Intent, q)
		assert.GreaterOrEqual(t, c.Confidence, 0.5, q)
		assert.LessOrEqual(t, c.Confidence, 1.0, q)
	}
}

func TestClassifyOperatorForcesNewsAtFullConfidence(t *testing.T) {
	c := Classify("what is the new policy after:2025-06-01")
	assert.Equal(t, IntentNews, c.Intent)
	assert.Equal(t, 1.0, c.Confidence)

	c = Classify("site:reuters.com chip exports")
	assert.Equal(t, IntentNews, c.Intent)
	assert.Equal(t, 1.0, c.Confidence)
}

func TestClassifyGeneral(t *testing.T) {
	for _, q := range []string{
		"what is quantitative easing",
		"how does an ETF work",
		"explain the difference between bonds and equities",
		"что такое инфляция",
		"как работает центральный банк",
	} {
		c := Classify(q)
		assert.Equal(t, IntentGeneral, c.Intent, q)
	}
}

func TestClassifyShortEntityQueryLeansNews(t *testing.T) {
	c := Classify("Deutsche Bank earnings")
	assert.Equal(t, IntentNews, c.Intent)
}

func TestClassifyDefaultsToGeneral(t *testing.T) {
	c := Classify("gardening tips for small balconies please")
	assert.Equal(t, IntentGeneral, c.Intent)
	assert.Equal(t, 0.5, c.Confidence)
}
