package listing

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newsharvest/internal/config"
	"newsharvest/pkg/types"
)

// HTMLParser extracts listing entries with goquery selectors.
type HTMLParser struct {
	sel config.SelectorConfig
}

// NewHTMLParser builds a parser. Empty selectors disable the matching field.
func NewHTMLParser(sel config.SelectorConfig) *HTMLParser {
	if strings.TrimSpace(sel.Item) == "" {
		sel.Item = "article"
	}
	if strings.TrimSpace(sel.Link) == "" {
		sel.Link = "a[href]"
	}
	return &HTMLParser{sel: sel}
}

// Parse implements Parser. Every matched item counts as a raw entry, even when it
// lacks a usable link; the scanner relies on raw counts to detect the last page.
func (p *HTMLParser) Parse(page *types.Page) ([]types.ListingEntry, error) {
	if page == nil || len(page.Body) == 0 {
		return nil, fmt.Errorf("listing page body empty")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	items := doc.Find(p.sel.Item)
	entries := make([]types.ListingEntry, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		link := item.Find(p.sel.Link).First()
		if link.Length() == 0 && item.Is(p.sel.Link) {
			link = item
		}
		href, _ := link.Attr("href")

		entry := types.ListingEntry{
			Href:     strings.TrimSpace(href),
			Title:    p.text(item, p.sel.Title),
			Category: p.category(item),
			Source:   p.text(item, p.sel.Source),
		}
		if entry.Title == "" {
			entry.Title = squash(link.Text())
		}
		entry.Published = p.published(item)
		entries = append(entries, entry)
	})
	return entries, nil
}

func (p *HTMLParser) text(item *goquery.Selection, selector string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	found := item.Find(selector).First()
	if found.Length() == 0 {
		return ""
	}
	return squash(found.Text())
}

// category prefers a data-category attribute over the element text.
func (p *HTMLParser) category(item *goquery.Selection) string {
	if v, ok := item.Attr("data-category"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if strings.TrimSpace(p.sel.Category) == "" {
		return ""
	}
	found := item.Find(p.sel.Category).First()
	if v, ok := found.Attr("data-category"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return squash(found.Text())
}

func (p *HTMLParser) published(item *goquery.Selection) string {
	if strings.TrimSpace(p.sel.Time) == "" {
		return ""
	}
	found := item.Find(p.sel.Time).First()
	if found.Length() == 0 {
		return ""
	}
	if p.sel.TimeAttr != "" {
		if v, ok := found.Attr(p.sel.TimeAttr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return squash(found.Text())
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
