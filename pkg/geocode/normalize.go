package geocode

import (
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation folds typographic quotes and dashes from PDF text onto ASCII.
var punctuation = runes.Map(func(r rune) rune {
	switch r {
	case '’', '‘':
		return '\''
	case '–', '—':
		return '-'
	}
	return r
})

// abbrevRule expands one abbreviation. Rules run in slice order.
type abbrevRule struct {
	re   *regexp.Regexp
	repl string
}

var abbrevRules = []abbrevRule{
	{regexp.MustCompile(`\bSt\b`), "Street"},
	{regexp.MustCompile(`\bRd\b`), "Road"},
	{regexp.MustCompile(`\bSq\b`), "Square"},
	{regexp.MustCompile(`\bStn\b`), "Station"},
	{regexp.MustCompile(`(?i)\bB'way\b`), "Broadway"},
	{regexp.MustCompile(`\bJunc\b`), "Junction"},
}

// NormalizeAddress cleans a deployment location before it is sent to a
// geocoder: NFC folding, ASCII quotes and dashes, abbreviation expansion and
// whitespace collapse.
func NormalizeAddress(s string) string {
	t := transform.Chain(norm.NFC, punctuation)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	for _, r := range abbrevRules {
		out = r.re.ReplaceAllString(out, r.repl)
	}
	return strings.Join(strings.Fields(out), " ")
}

// AddressKey is the case-insensitive lookup key for an address.
func AddressKey(s string) string {
	return strings.ToLower(NormalizeAddress(s))
}
