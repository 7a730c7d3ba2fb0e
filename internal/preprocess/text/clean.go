// Package text cleans and canonicalizes ad copy.
package text

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis marks truncated output.
const Ellipsis = "..."

var quotes = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
)

// Clean repairs mis-decoded text, strips HTML markup, standardizes quotes,
// collapses whitespace and truncates to maxLength runes when maxLength > 0.
// Clean(Clean(s, n), n) == Clean(s, n): passes repeat until the text stops
// changing.
func Clean(s string, maxLength int) string {
	for {
		next := cleanPass(s, maxLength)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanPass(s string, maxLength int) string {
	s = norm.NFC.String(s)
	s = RepairEncoding(s)
	s = StripHTML(s)
	s = quotes.Replace(s)
	s = CollapseWhitespace(s)
	return Truncate(s, maxLength)
}

// CollapseWhitespace trims s and replaces every whitespace run with a single
// space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most maxLength runes, ending with Ellipsis.
// A non-positive maxLength leaves s untouched.
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	r := []rune(s)
	if maxLength <= len(Ellipsis) {
		return string(r[:maxLength])
	}
	return strings.TrimSpace(string(r[:maxLength-len(Ellipsis)])) + Ellipsis
}

// RepairEncoding undoes UTF-8 text that was decoded as Windows-1252, such as
// "Nikeâ„¢" for "Nike™". Each whitespace separated word is re-encoded on its
// own and replaced only when the bytes form valid UTF-8.
func RepairEncoding(s string) string {
	if isASCII(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && !isASCIISpace(s[i]) {
			continue
		}
		if start < i {
			b.WriteString(repairWord(s[start:i]))
		}
		if i < len(s) {
			b.WriteByte(s[i])
		}
		start = i + 1
	}
	return b.String()
}

func repairWord(w string) string {
	if isASCII(w) {
		return w
	}
	buf := make([]byte, 0, len(w))
	for _, r := range w {
		if r < utf8.RuneSelf {
			buf = append(buf, byte(r))
			continue
		}
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			return w
		}
		buf = append(buf, c)
	}
	if !utf8.Valid(buf) {
		return w
	}
	return string(buf)
}

// StripHTML removes tags and decodes entities. Block level tags become a
// space; inline tags are dropped so words are not split. Script and style
// contents are discarded.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case atom.A, atom.B, atom.I, atom.U, atom.Em, atom.Strong, atom.Span, atom.Small, atom.Sup, atom.Sub, atom.Mark:
			default:
				b.WriteByte(' ')
			}
		}
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
