package config

// DefaultTrustedDomains is the allow-list consulted when parsing site:
// operators. Entries are eTLD+1; subdomains in queries are normalized down
// to these before matching. Overridable via ask.trusted_domains.
var DefaultTrustedDomains = []string{
	// Wires and global outlets
	"reuters.com", "apnews.com", "afp.com", "bloomberg.com", "bbc.com",
	"bbc.co.uk", "cnn.com", "nytimes.com", "washingtonpost.com", "wsj.com",
	"theguardian.com", "ft.com", "economist.com", "aljazeera.com", "dw.com",
	"france24.com", "euronews.com", "npr.org", "abcnews.go.com", "cbsnews.com",
	"nbcnews.com", "foxnews.com", "usatoday.com", "latimes.com", "politico.com",
	"politico.eu", "axios.com", "thehill.com", "time.com", "newsweek.com",
	"forbes.com", "businessinsider.com", "cnbc.com", "marketwatch.com",
	"barrons.com", "fortune.com",

	// Tech and science
	"techcrunch.com", "theverge.com", "wired.com", "arstechnica.com",
	"engadget.com", "zdnet.com", "venturebeat.com", "theinformation.com",
	"technologyreview.com", "nature.com", "science.org", "scientificamerican.com",
	"newscientist.com", "ieee.org", "arxiv.org",

	// Institutions and official sources
	"europa.eu", "un.org", "who.int", "imf.org", "worldbank.org", "oecd.org",
	"nato.int", "whitehouse.gov", "state.gov", "sec.gov", "fda.gov", "nasa.gov",
	"nih.gov", "cdc.gov",

	// International and Russian-language coverage
	"meduza.io", "novayagazeta.eu", "themoscowtimes.com", "rbc.ru",
	"kommersant.ru", "interfax.ru", "tass.ru", "lenta.ru", "rt.com",
	"kyivindependent.com", "pravda.com.ua",
}
