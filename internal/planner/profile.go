package planner

import (
	"regexp"
	"strings"

	"github.com/rahul/autopilot/internal/catalog"
)

// extractor captures one value from free text. The first non-empty capture
// group wins.
type extractor struct {
	re        *regexp.Regexp
	normalize func(string) string
}

func (e extractor) find(input string) string {
	m := e.re.FindStringSubmatch(input)
	for _, g := range m[min(1, len(m)):] {
		if g = strings.TrimSpace(g); g != "" {
			if e.normalize != nil {
				g = e.normalize(g)
			}
			return g
		}
	}
	return ""
}

func ex(pattern string) extractor {
	return extractor{re: regexp.MustCompile(pattern)}
}

var (
	emailExtractors = []extractor{
		ex(`\b([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`),
	}
	subjectExtractors = []extractor{
		ex(`(?i)\bregarding\s+(.+?)(?:\s+to\s+|\s*$)`),
		ex(`(?i)\babout\s+(.+?)(?:\s+to\s+|\s*$)`),
		ex(`(?i)\bsubject\s*:?\s+(.+?)(?:\s+to\s+|\s*$)`),
	}
	bodyExtractors = []extractor{
		ex(`(?i)\b(?:saying|body|message)\s*:?\s+(.+)$`),
		ex(`"([^"]+)"`),
	}
	queryExtractors = []extractor{
		ex(`(?i)\bsearch\s+(?:for\s+)?(.+)`),
		ex(`(?i)\bfind\s+(?:information\s+about\s+)?(.+)`),
		ex(`(?i)\blook\s+(?:up\s+)?(.+)`),
		ex(`(?i)\bgoogle\s+(.+)`),
	}
	urlExtractors = []extractor{
		ex(`(https?://\S+)`),
		{re: regexp.MustCompile(`(?i)(?:go\s+to\s+|visit\s+|open\s+)(\S+\.(?:com|org|net))\b`), normalize: withScheme},
		{re: regexp.MustCompile(`(?i)(\S+\.(?:com|org|net))\b`), normalize: withScheme},
	}
	textExtractors = []extractor{
		ex(`"([^"]+)"`),
		ex(`(?i)\btype\s+(.+)$`),
	}
	selectorExtractors = []extractor{
		ex(`(?i)\b(?:element|selector|field|button)\s+([A-Za-z_][\w-]*)`),
	}
)

func withScheme(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "http") {
		return s
	}
	return "https://" + s
}

// fallback supplies a value when no extractor matched. Returning "" leaves
// the placeholder missing.
type fallback func(input string) string

func constant(v string) fallback       { return func(string) string { return v } }
func wholeInput(input string) string { return input }

// Profile is the ordered extractor chain per value kind used for one family
// of templates.
type Profile struct {
	Name       string
	extractors map[catalog.ValueKind][]extractor
	fallbacks  map[catalog.ValueKind]fallback
}

// Extract returns the value of kind found in input, or "".
func (p Profile) Extract(kind catalog.ValueKind, input string) string {
	for _, e := range p.extractors[kind] {
		if v := e.find(input); v != "" {
			return v
		}
	}
	if fb, ok := p.fallbacks[kind]; ok {
		return strings.TrimSpace(fb(input))
	}
	return ""
}

func baseExtractors() map[catalog.ValueKind][]extractor {
	return map[catalog.ValueKind][]extractor{
		catalog.KindEmail:      emailExtractors,
		catalog.KindSubject:    subjectExtractors,
		catalog.KindBody:       bodyExtractors,
		catalog.KindQuery:      queryExtractors,
		catalog.KindURL:        urlExtractors,
		catalog.KindText:       textExtractors,
		catalog.KindSelectorID: selectorExtractors,
	}
}

var (
	// Compose extracts a recipient, a subject (default "Inquiry") and a body.
	Compose = Profile{
		Name:       "compose",
		extractors: baseExtractors(),
		fallbacks:  map[catalog.ValueKind]fallback{catalog.KindSubject: constant("Inquiry")},
	}
	// Search uses the whole input as the query when no search verb is found.
	Search = Profile{
		Name:       "search",
		extractors: baseExtractors(),
		fallbacks:  map[catalog.ValueKind]fallback{catalog.KindQuery: wholeInput},
	}
	// Navigate extracts a URL, prefixing https:// to bare domains.
	Navigate = Profile{
		Name:       "navigate",
		extractors: baseExtractors(),
	}
	// Generic applies every chain with no fallbacks except free text.
	Generic = Profile{
		Name:       "generic",
		extractors: baseExtractors(),
		fallbacks:  map[catalog.ValueKind]fallback{catalog.KindText: wholeInput},
	}
)

// ProfileFor picks the profile for a template category.
func ProfileFor(category string) Profile {
	switch strings.ToLower(category) {
	case "email", "compose", "mail":
		return Compose
	case "search":
		return Search
	case "web", "navigate", "navigation", "browse":
		return Navigate
	}
	return Generic
}
