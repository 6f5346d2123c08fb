// Package article turns pending raw articles into canonical stored articles:
// fetch, extract, language detection, categorization, quality scoring, and
// duplicate elimination.
package article

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"

	apperr "github.com/langgraphsystem/rssnews/internal/errors"
	"github.com/langgraphsystem/rssnews/internal/textutil"
)

// minLangConfidence gates language assignment; below it the feed's language
// hint wins.
const minLangConfidence = 0.8

// Extracted is the result of pulling content out of an article page.
type Extracted struct {
	Title        string
	Text         string
	Authors      []string
	PublishedAt  *time.Time
	PubEstimated bool
	Language     string
	WordCount    int
}

// Extract parses an HTML page into clean text plus metadata. Readability
// does the main content pass; goquery reads the metadata the readability
// pass does not surface.
func Extract(html, pageURL, langHint string, fallbackDate *time.Time) (*Extracted, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "parse page url", err)
	}

	art, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindParse, "readability", err)
	}

	text := textutil.CleanBody(art.TextContent)
	if text == "" {
		return nil, apperr.New(apperr.KindParse, "empty article body")
	}

	ex := &Extracted{
		Title:     strings.TrimSpace(art.Title),
		Text:      text,
		WordCount: textutil.WordCount(text),
	}
	if art.Byline != "" {
		ex.Authors = splitAuthors(art.Byline)
	}

	// Metadata pass. A doc parse failure only loses metadata, not the body.
	if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(html)); derr == nil {
		if ex.Title == "" {
			ex.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
		if len(ex.Authors) == 0 {
			if v, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
				ex.Authors = splitAuthors(v)
			}
		}
		ex.PublishedAt = metaPublished(doc)
	}

	if ex.PublishedAt == nil && fallbackDate != nil {
		ex.PublishedAt = fallbackDate
		ex.PubEstimated = true
	}

	info := whatlanggo.Detect(text)
	if info.Confidence >= minLangConfidence {
		ex.Language = info.Lang.Iso6391()
	} else {
		ex.Language = langHint
	}

	return ex, nil
}

// metaPublished tries publication-date metadata in priority order.
func metaPublished(doc *goquery.Document) *time.Time {
	selectors := []string{
		`meta[property="article:published_time"]`,
		`meta[name="article:published_time"]`,
		`meta[itemprop="datePublished"]`,
		`meta[name="date"]`,
		`meta[name="pubdate"]`,
	}
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && v != "" {
			if t, err := dateparse.ParseAny(v); err == nil {
				return &t
			}
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && v != "" {
		if t, err := dateparse.ParseAny(v); err == nil {
			return &t
		}
	}
	return nil
}

func splitAuthors(byline string) []string {
	byline = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(byline), "By "))
	parts := strings.FieldsFunc(byline, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "and "))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
