package processor

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const noiseSelectors = "script, style, noscript, template, iframe, embed, object, svg, canvas, " +
	"nav, header, footer, aside, form, button, figcaption, figure, " +
	"[role='navigation'], [role='complementary'], " +
	"[class*='share'], [class*='social'], [class*='related'], [class*='advert'], [class*='sponsor'], " +
	"[class*='comment'], [id*='comment'], .ad, [id^='ad-']"

var articleRoots = []string{"article", "main", "[role='main']", "body"}

// jsonLD reads articleBody from schema.org JSON-LD blocks.
func (e *Extractor) jsonLD(in Input) (Candidate, bool) {
	var found string
	in.Doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if body := findArticleBody(payload); body != "" {
			found = body
			return false
		}
		return true
	})
	if found == "" {
		return Candidate{}, false
	}
	text := e.filterLines(strings.Split(e.StripTagsKeepLines(found), "\n"), "\n\n")
	return Candidate{Text: text, Structured: true}, text != ""
}

func findArticleBody(v any) string {
	switch node := v.(type) {
	case map[string]any:
		if body, ok := node["articleBody"].(string); ok && strings.TrimSpace(body) != "" {
			return body
		}
		if graph, ok := node["@graph"]; ok {
			return findArticleBody(graph)
		}
	case []any:
		for _, item := range node {
			if body := findArticleBody(item); body != "" {
				return body
			}
		}
	}
	return ""
}

// StripTagsKeepLines strips markup while keeping line breaks between blocks.
func (e *Extractor) StripTagsKeepLines(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return e.StripTags(fragment)
	}
	return flattenNodes(doc.Nodes)
}

// knownContainer looks for well-known article body containers.
func (e *Extractor) knownContainer(in Input) (Candidate, bool) {
	var best Candidate
	for _, sel := range e.containers {
		found := in.Doc.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		cand := e.selectParagraphs(stripNoise(found))
		if runeLen(cand.Text) >= e.minLength {
			return cand, true
		}
		if runeLen(cand.Text) > runeLen(best.Text) {
			best = cand
		}
	}
	return best, best.Text != ""
}

// articleRoot uses the first article-like root with non-content subtrees removed.
func (e *Extractor) articleRoot(in Input) (Candidate, bool) {
	for _, sel := range articleRoots {
		found := in.Doc.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		cand := e.selectParagraphs(stripNoise(found))
		return cand, cand.Text != ""
	}
	return Candidate{}, false
}

// readability defers to go-readability's scoring and reuses paragraph selection on its output.
func (e *Extractor) readability(in Input) (Candidate, bool) {
	pageURL := in.URL
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}
	article, err := readability.FromReader(bytes.NewReader(in.Raw), pageURL)
	if err != nil {
		return Candidate{}, false
	}
	if article.Content != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
			cand := e.selectParagraphs(doc.Selection)
			if cand.Text != "" {
				cand.Structured = false
				return cand, true
			}
		}
	}
	text := e.filterLines(strings.Split(article.TextContent, "\n"), "\n")
	return Candidate{Text: text}, text != ""
}

// fullDocument flattens the whole body.
func (e *Extractor) fullDocument(in Input) (Candidate, bool) {
	root := in.Doc.Find("body").First()
	if root.Length() == 0 {
		root = in.Doc.Selection
	}
	text := e.filterLines(strings.Split(flattenNodes(root.Clone().Nodes), "\n"), "\n")
	return Candidate{Text: text}, text != ""
}

// selectParagraphs tries paragraph heuristics in order: <p> elements, then block lines.
func (e *Extractor) selectParagraphs(sel *goquery.Selection) Candidate {
	var paragraphs []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		paragraphs = append(paragraphs, p.Text())
	})
	byParagraph := Candidate{Text: e.filterLines(paragraphs, "\n\n"), Structured: true}
	if runeLen(byParagraph.Text) >= e.minLength {
		return byParagraph
	}

	byBlock := Candidate{Text: e.filterLines(strings.Split(flattenNodes(sel.Nodes), "\n"), "\n")}
	if runeLen(byBlock.Text) > runeLen(byParagraph.Text) {
		return byBlock
	}
	return byParagraph
}

func stripNoise(sel *goquery.Selection) *goquery.Selection {
	clone := sel.Clone()
	clone.Find(noiseSelectors).Remove()
	return clone
}
