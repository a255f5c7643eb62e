package processor

import (
	"strings"

	"golang.org/x/net/html"
)

var blockLevelTags = map[string]struct{}{
	"p":          {},
	"div":        {},
	"section":    {},
	"article":    {},
	"header":     {},
	"footer":     {},
	"h1":         {},
	"h2":         {},
	"h3":         {},
	"h4":         {},
	"h5":         {},
	"h6":         {},
	"li":         {},
	"ul":         {},
	"ol":         {},
	"table":      {},
	"tr":         {},
	"blockquote": {},
	"pre":        {},
	"figure":     {},
	"figcaption": {},
}

var skippedTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"svg":      {},
}

// flattenNodes renders nodes to text with one line per block-level element.
func flattenNodes(nodes []*html.Node) string {
	acc := &textAccumulator{}
	for _, n := range nodes {
		accumulateText(n, acc)
		acc.ensureNewline()
	}
	return acc.String()
}

type textAccumulator struct {
	builder   strings.Builder
	lastRune  rune
	hasLast   bool
	lastWasNL bool
}

func (t *textAccumulator) String() string {
	return t.builder.String()
}

func (t *textAccumulator) append(value string) {
	if value == "" {
		return
	}
	t.builder.WriteString(value)
	for _, r := range value {
		t.lastRune = r
		t.hasLast = true
		t.lastWasNL = r == '\n'
	}
}

func (t *textAccumulator) ensureSpace() {
	if !t.hasLast || t.lastRune == ' ' || t.lastRune == '\n' {
		return
	}
	t.append(" ")
}

func (t *textAccumulator) ensureNewline() {
	if !t.hasLast || t.lastWasNL {
		return
	}
	t.append("\n")
}

func accumulateText(node *html.Node, acc *textAccumulator) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		text := normalizeWhitespace(node.Data)
		if text == "" {
			return
		}
		acc.ensureSpace()
		acc.append(text)
	case html.DocumentNode:
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			accumulateText(child, acc)
		}
	case html.ElementNode:
		tag := strings.ToLower(node.Data)
		if _, skip := skippedTags[tag]; skip {
			return
		}
		if tag == "br" {
			acc.ensureNewline()
			return
		}
		_, block := blockLevelTags[tag]
		if block {
			acc.ensureNewline()
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			accumulateText(child, acc)
		}
		switch {
		case tag == "td" || tag == "th":
			acc.ensureSpace()
		case block:
			acc.ensureNewline()
		}
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
