package listing

import (
	"bytes"
	"fmt"
	"strings"

	"newsharvest/internal/config"
	"newsharvest/pkg/types"
)

// Parser turns a rendered listing page into raw entries, in page order.
type Parser interface {
	Parse(page *types.Page) ([]types.ListingEntry, error)
}

// NewParser selects a parser for the configured listing format.
func NewParser(cfg config.ListingConfig) (Parser, error) {
	htmlParser := NewHTMLParser(cfg.Selectors)
	feedParser := NewFeedParser()
	switch cfg.Format {
	case "html":
		return htmlParser, nil
	case "feed":
		return feedParser, nil
	case "auto", "":
		return &AutoParser{HTML: htmlParser, Feed: feedParser}, nil
	default:
		return nil, fmt.Errorf("unsupported listing format %q", cfg.Format)
	}
}

// AutoParser sniffs each page and delegates to the feed or HTML parser.
type AutoParser struct {
	HTML Parser
	Feed Parser
}

// Parse implements Parser.
func (a *AutoParser) Parse(page *types.Page) ([]types.ListingEntry, error) {
	if page == nil {
		return nil, fmt.Errorf("listing page is nil")
	}
	if looksLikeFeed(page) {
		return a.Feed.Parse(page)
	}
	return a.HTML.Parse(page)
}

func looksLikeFeed(page *types.Page) bool {
	ct := strings.ToLower(page.ContentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "/xml") {
		return true
	}
	head := page.Body
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	if bytes.HasPrefix(head, []byte("<?xml")) {
		return !bytes.Contains(head, []byte("<html"))
	}
	return bytes.HasPrefix(head, []byte("<rss")) || bytes.HasPrefix(head, []byte("<feed"))
}
