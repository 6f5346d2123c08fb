package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"strips www and utm params",
			"https://www.BBC.com/news/article?utm_source=x&utm_medium=y",
			"https://bbc.com/news/article",
		},
		{
			"strips fbclid and gclid, keeps real params sorted",
			"https://example.com/a?z=1&fbclid=abc&gclid=def&b=2",
			"https://example.com/a?b=2&z=1",
		},
		{
			"removes default port and trailing slash",
			"HTTPS://Example.com:443/path/",
			"https://example.com/path",
		},
		{
			"keeps non-default port",
			"http://example.com:8080/path",
			"http://example.com:8080/path",
		},
		{
			"drops fragment",
			"https://example.com/a#section",
			"https://example.com/a",
		},
		{
			"strips _ga",
			"https://news.example.co.uk/x?_ga=1.2",
			"https://news.example.co.uk/x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.in))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	urls := []string{
		"https://www.bbc.com/a?utm_source=x",
		"http://Example.COM:80/news/",
		"https://europa.eu/policy?b=2&a=1",
		"not a url at all",
	}
	for _, u := range urls {
		once := Canonicalize(u)
		assert.Equal(t, once, Canonicalize(once), u)
	}
}

func TestHashEqualsHashOfCanonical(t *testing.T) {
	u := "https://www.bbc.com/a?utm_source=x&gclid=y"
	assert.Equal(t, Hash(Canonicalize(u)), Hash(u))
	assert.Len(t, Hash(u), 64)
}

func TestHashCollapsesTrackingVariants(t *testing.T) {
	a := Hash("https://news.bbc.co.uk/a?utm_source=x")
	b := Hash("https://www.news.bbc.co.uk/a?gclid=y")
	assert.Equal(t, a, b)
}

func TestETLD1(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"www.bbc.co.uk", "bbc.co.uk"},
		{"news.bbc.co.uk", "bbc.co.uk"},
		{"example.com.au", "example.com.au"},
		{"sub.example.com.au", "example.com.au"},
		{"asahi.co.jp", "asahi.co.jp"},
		{"europa.eu", "europa.eu"},
		{"ec.europa.eu", "europa.eu"},
		{"EXAMPLE.COM:8443", "example.com"},
		{"https://www.reuters.com/world/article", "reuters.com"},
		{"localhost", "localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ETLD1(tt.in))
		})
	}
}

func TestETLD1Idempotent(t *testing.T) {
	hosts := []string{"news.bbc.co.uk", "www.example.com", "europa.eu", "localhost"}
	for _, h := range hosts {
		once := ETLD1(h)
		assert.Equal(t, once, ETLD1(once), h)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/News/Story.html", "/news/story"},
		{"https://example.com/a.php?utm_source=x", "/a"},
		{"https://example.com/a/?b=2&a=1", "/a?a=1&b=2"},
		{"https://example.com/index.aspx", "/index"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}
}

func TestIsTrackingParam(t *testing.T) {
	assert.True(t, IsTrackingParam("utm_campaign"))
	assert.True(t, IsTrackingParam("UTM_SOURCE"))
	assert.True(t, IsTrackingParam("fbclid"))
	assert.False(t, IsTrackingParam("page"))
	assert.False(t, IsTrackingParam("q"))
}
