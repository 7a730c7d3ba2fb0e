package text

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are dropped from brand keys when they appear as whole tokens.
var legalSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "llc": {}, "ltd": {}, "limited": {},
	"corp": {}, "corporation": {}, "co": {}, "company": {}, "plc": {}, "gmbh": {},
}

var (
	repeatedPunct = regexp.MustCompile(`[!?.]{2,}`)
	urlPattern    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
)

// NormalizeBrandName produces a matching key for a brand: lower-cased,
// without trademark glyphs, accents, punctuation or legal-entity suffixes, and
// with no whitespace. "Test Corp." and "TEST CORP" both map to "test". The
// first token is always kept, so a brand named "Company" keys as "company".
func NormalizeBrandName(name string) string {
	name = strings.ToLower(RepairEncoding(name))
	name = removeAccents(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '™' || r == '®' || r == '©':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '/':
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for i, tok := range tokens {
		if _, ok := legalSuffixes[tok]; ok && i > 0 {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, "")
}

// NormalizeCallToAction lower-cases a call to action, removes runs of
// repeated terminal punctuation and collapses whitespace.
func NormalizeCallToAction(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = repeatedPunct.ReplaceAllString(s, "")
	return CollapseWhitespace(s)
}

// RemoveURLs drops http(s) and www. links from s.
func RemoveURLs(s string) string {
	return CollapseWhitespace(urlPattern.ReplaceAllString(s, " "))
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
