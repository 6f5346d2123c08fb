// Package urlutil provides canonical URL forms, URL hashing, and the eTLD+1
// extraction shared by deduplication, domain capping, and site: filtering.
// All functions are idempotent: f(f(x)) == f(x).
package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackingParams are stripped from every URL during canonicalization.
// Prefix entries (trailing '*') match any parameter with that prefix.
var trackingParams = []string{
	"utm_*",
	"fbclid",
	"gclid",
	"yclid",
	"dclid",
	"_ga",
	"_gl",
	"mc_cid",
	"mc_eid",
	"igshid",
	"ref_src",
	"cmpid",
	"ocid",
}

// meaninglessSuffixes are dropped from the end of a path during
// normalization for grouping purposes.
var meaninglessSuffixes = []string{".html", ".htm", ".php", ".asp", ".aspx"}

// Canonicalize returns the deterministic canonical form of an article URL:
// lowercased scheme and host, "www." stripped, default port removed,
// tracking parameters dropped, remaining query sorted, trailing slash
// removed. Returns the input unchanged when it does not parse.
func Canonicalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")
	u.Host = stripDefaultPort(u.Host, u.Scheme)
	u.Fragment = ""

	u.RawQuery = filterQuery(u.Query())

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// Hash returns the SHA-256 hex digest of the canonical form of raw.
// Hash(u) == Hash(Canonicalize(u)) for every u.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(Canonicalize(raw)))
	return hex.EncodeToString(sum[:])
}

// ETLD1 extracts the effective TLD plus one label from a host or URL.
// Multi-label public suffixes (co.uk, com.au, co.jp) count as one suffix.
// Idempotent: ETLD1(ETLD1(h)) == ETLD1(h).
func ETLD1(hostOrURL string) string {
	host := hostOrURL
	if strings.Contains(host, "/") || strings.Contains(host, "://") {
		if u, err := url.Parse(hostOrURL); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	host = strings.Trim(host, ".")
	if host == "" {
		return ""
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Single-label hosts and unknown suffixes fall back to the host itself.
		return host
	}
	return etld1
}

// NormalizePath returns the grouping key path for dedup: lowercased,
// tracking params dropped, known suffixes removed, query sorted.
func NormalizePath(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	path := strings.ToLower(u.Path)
	for _, suffix := range meaninglessSuffixes {
		path = strings.TrimSuffix(path, suffix)
	}
	path = strings.TrimSuffix(path, "/")

	if q := filterQuery(u.Query()); q != "" {
		return path + "?" + q
	}
	return path
}

// IsTrackingParam reports whether a query parameter name is on the strip list.
func IsTrackingParam(name string) bool {
	name = strings.ToLower(name)
	for _, p := range trackingParams {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(name, strings.TrimSuffix(p, "*")) {
				return true
			}
		} else if name == p {
			return true
		}
	}
	return false
}

func filterQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if IsTrackingParam(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
	}
	return b.String()
}

func stripDefaultPort(host, scheme string) string {
	switch scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	}
	return host
}
