// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// contentElements hold a page's main content. When a page has any of them,
// only their text is kept.
var contentElements = map[atom.Atom]bool{
	atom.Main:    true,
	atom.Article: true,
	atom.Section: true,
}

var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Img:      true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Template: true,
	atom.Iframe:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.Td: true, atom.Th: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Main: true, atom.Article: true, atom.Section: true, atom.Header: true, atom.Footer: true,
	atom.Dt: true, atom.Dd: true,
}

// HTMLToText extracts readable text from an HTML document. Text inside
// main, article and section elements is preferred; scripts, styles and
// images are skipped; link text is kept without the URL.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	roots := findContent(doc, nil)
	if len(roots) == 0 {
		roots = []*html.Node{doc}
	}

	var b strings.Builder
	for _, n := range roots {
		writeText(&b, n)
		b.WriteByte('\n')
	}
	return collapse(b.String()), nil
}

// findContent returns the outermost content elements in document order.
func findContent(n *html.Node, acc []*html.Node) []*html.Node {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return acc
		}
		if contentElements[n.DataAtom] {
			return append(acc, n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		acc = findContent(c, acc)
	}
	return acc
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipElements[n.DataAtom] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	} else if n.Type == html.ElementNode {
		b.WriteByte(' ')
	}
}

// collapse squeezes runs of spaces within lines and drops blank lines.
func collapse(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// charsPerToken approximates the tokenizer of the completion models.
const charsPerToken = 4

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// TrimToTokens cuts s from the end so that it fits within budget tokens,
// preferring to cut at whitespace.
func TrimToTokens(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(s) <= budget {
		return s
	}
	maxRunes := budget * charsPerToken
	runes := []rune(s)
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
