// Package dom extracts ad blocks from rendered or fetched HTML with goquery.
package dom

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/adintel/internal/source/payload"
)

// Parse builds a goquery document from an HTML body.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// FirstMatch tries selectors in order and returns the matches of the first one
// that finds anything, along with that selector.
func FirstMatch(doc *goquery.Document, selectors []string) (*goquery.Selection, string) {
	for _, sel := range selectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			return found, sel
		}
	}
	return doc.Find("__no_match__"), ""
}

// Text returns the text nodes of a selection joined by single spaces, so
// adjacent block elements do not run together. Script and style content is
// skipped.
func Text(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			parts = append(parts, n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Texts returns the non-empty collapsed texts of each node in s.
func Texts(s *goquery.Selection) []string {
	var out []string
	s.Each(func(_ int, node *goquery.Selection) {
		if t := Text(node); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// Attrs resolves attribute attr of every node in s against base, dropping
// empty values and duplicates.
func Attrs(s *goquery.Selection, attr string, base *url.URL) []string {
	seen := map[string]struct{}{}
	out := []string{}
	s.Each(func(_ int, node *goquery.Selection) {
		raw, ok := node.Attr(attr)
		if !ok {
			return
		}
		resolved := payload.Resolve(base, raw)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	})
	return out
}
