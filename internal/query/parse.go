// Package query parses user queries: search operators (site:, after:,
// before:, window:), time-window phrases, and the intent routing that decides
// whether a question needs news retrieval at all. English and Russian
// phrasing are both recognized.
package query

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/langgraphsystem/rssnews/internal/urlutil"
)

// Parsed is a query with its operators lifted out.
type Parsed struct {
	// Clean is the query text with every operator and window phrase removed.
	Clean string
	// Sources holds eTLD+1 domains from site: operators that passed the
	// trusted-domain allow-list.
	Sources []string
	// After and Before are date bounds from after:/before: operators.
	After  *time.Time
	Before *time.Time
	// Window is the recency window implied by a time phrase; zero when the
	// query names none.
	Window time.Duration
	// HasOperators reports whether the raw query used any operator at all,
	// including rejected ones. Intent routing reads it.
	HasOperators bool
}

var (
	operatorRe = regexp.MustCompile(`(?i)\b(site|after|before|window):(\S+)`)
	relDateRe  = regexp.MustCompile(`(?i)^(\d+)([dwmy])$`)
	windowRe   = regexp.MustCompile(`(?i)^(\d+)([hdwmy])$`)
)

// windowPhrases maps recognized time phrases to windows. Longer phrases are
// listed first so they match before their substrings.
var windowPhrases = []struct {
	phrase string
	window time.Duration
}{
	{"this month", 30 * 24 * time.Hour},
	{"past month", 30 * 24 * time.Hour},
	{"last month", 30 * 24 * time.Hour},
	{"this week", 7 * 24 * time.Hour},
	{"past week", 7 * 24 * time.Hour},
	{"last week", 7 * 24 * time.Hour},
	{"yesterday", 48 * time.Hour},
	{"today", 24 * time.Hour},
	{"за последний месяц", 30 * 24 * time.Hour},
	{"за месяц", 30 * 24 * time.Hour},
	{"за последнюю неделю", 7 * 24 * time.Hour},
	{"за неделю", 7 * 24 * time.Hour},
	{"на этой неделе", 7 * 24 * time.Hour},
	{"вчера", 48 * time.Hour},
	{"сегодня", 24 * time.Hour},
}

// Parser extracts operators with site: domains validated against the
// trusted allow-list.
type Parser struct {
	trusted map[string]struct{}
	now     func() time.Time
	log     *slog.Logger
}

// NewParser builds a Parser. An empty trusted list accepts every domain.
func NewParser(trustedDomains []string, log *slog.Logger) *Parser {
	var trusted map[string]struct{}
	if len(trustedDomains) > 0 {
		trusted = make(map[string]struct{}, len(trustedDomains))
		for _, d := range trustedDomains {
			trusted[urlutil.ETLD1(d)] = struct{}{}
		}
	}
	return &Parser{trusted: trusted, now: time.Now, log: log}
}

// Parse lifts operators and window phrases out of a raw query. Unknown
// site: domains and unparseable dates are dropped, not fatal.
func (pr *Parser) Parse(raw string) Parsed {
	p := Parsed{}
	rest := operatorRe.ReplaceAllStringFunc(raw, func(m string) string {
		sub := operatorRe.FindStringSubmatch(m)
		op, val := strings.ToLower(sub[1]), sub[2]
		p.HasOperators = true
		switch op {
		case "site":
			d := urlutil.ETLD1(val)
			if d == "" {
				break
			}
			if pr.trusted != nil {
				if _, ok := pr.trusted[d]; !ok {
					if pr.log != nil {
						pr.log.Warn("site: domain not on allow-list, ignoring",
							slog.String("domain", d))
					}
					break
				}
			}
			p.Sources = append(p.Sources, d)
		case "after":
			if t, ok := pr.parseDate(val); ok {
				p.After = &t
			}
		case "before":
			if t, ok := pr.parseDate(val); ok {
				p.Before = &t
			}
		case "window":
			if w, ok := parseWindow(val); ok {
				p.Window = w
			}
		}
		return " "
	})

	lower := strings.ToLower(rest)
	for _, wp := range windowPhrases {
		if i := strings.Index(lower, wp.phrase); i >= 0 {
			p.Window = wp.window
			rest = rest[:i] + rest[i+len(wp.phrase):]
			break
		}
	}

	p.Clean = strings.Join(strings.Fields(rest), " ")
	return p
}

// parseDate accepts absolute forms (YYYY-MM-DD, MM/DD/YYYY, DD.MM.YYYY, ...)
// and relative ones (3d, 1w, 2m, 1y).
func (pr *Parser) parseDate(val string) (time.Time, bool) {
	if sub := relDateRe.FindStringSubmatch(val); sub != nil {
		n := 0
		for _, r := range sub[1] {
			n = n*10 + int(r-'0')
		}
		var unit time.Duration
		switch strings.ToLower(sub[2]) {
		case "d":
			unit = 24 * time.Hour
		case "w":
			unit = 7 * 24 * time.Hour
		case "m":
			unit = 30 * 24 * time.Hour
		case "y":
			unit = 365 * 24 * time.Hour
		}
		return pr.now().Add(-time.Duration(n) * unit), true
	}
	if t, err := dateparse.ParseAny(val); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseWindow accepts explicit window operators (36h, 7d, 1w, 2m, 1y).
func parseWindow(val string) (time.Duration, bool) {
	sub := windowRe.FindStringSubmatch(val)
	if sub == nil {
		return 0, false
	}
	n := 0
	for _, r := range sub[1] {
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, false
	}
	var unit time.Duration
	switch strings.ToLower(sub[2]) {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	case "m":
		unit = 30 * 24 * time.Hour
	case "y":
		unit = 365 * 24 * time.Hour
	}
	return time.Duration(n) * unit, true
}

// Parse parses without a trusted-domain allow-list. Intent classification
// and tests use it; the ask and search surfaces use a configured Parser.
func Parse(raw string) Parsed {
	return NewParser(nil, nil).Parse(raw)
}

// String reassembles the parsed query into canonical operator form. Parsing
// the result yields the same Parsed back, so it doubles as a cache key.
func (p Parsed) String() string {
	parts := []string{p.Clean}
	for _, s := range p.Sources {
		parts = append(parts, "site:"+s)
	}
	if p.After != nil {
		parts = append(parts, "after:"+p.After.Format("2006-01-02"))
	}
	if p.Before != nil {
		parts = append(parts, "before:"+p.Before.Format("2006-01-02"))
	}
	if p.Window > 0 {
		parts = append(parts, "window:"+windowLabel(p.Window))
	}
	return strings.Join(parts, " ")
}

// windowLabel renders a window in the operator form parseWindow accepts.
func windowLabel(w time.Duration) string {
	if w%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(w/(24*time.Hour)))
	}
	return fmt.Sprintf("%dh", int(w/time.Hour))
}
