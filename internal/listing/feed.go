package listing

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"newsharvest/pkg/types"
)

// FeedParser reads RSS, Atom and JSON feeds as listing pages.
type FeedParser struct {
	parser *gofeed.Parser
	strict *bluemonday.Policy
}

// NewFeedParser constructs a feed-backed listing parser.
func NewFeedParser() *FeedParser {
	return &FeedParser{parser: gofeed.NewParser(), strict: bluemonday.StrictPolicy()}
}

// Parse implements Parser.
func (f *FeedParser) Parse(page *types.Page) ([]types.ListingEntry, error) {
	if page == nil || len(page.Body) == 0 {
		return nil, fmt.Errorf("listing feed body empty")
	}
	feed, err := f.parser.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing feed: %w", err)
	}

	entries := make([]types.ListingEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entry := types.ListingEntry{
			Href:        strings.TrimSpace(item.Link),
			Title:       squash(item.Title),
			Published:   strings.TrimSpace(item.Published),
			Description: squash(html.UnescapeString(f.strict.Sanitize(item.Description))),
			Source:      squash(feed.Title),
		}
		if entry.Href == "" && strings.HasPrefix(item.GUID, "http") {
			entry.Href = item.GUID
		}
		if item.PublishedParsed != nil {
			entry.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.PublishedAt = *item.UpdatedParsed
		}
		if len(item.Categories) > 0 {
			entry.Category = strings.TrimSpace(item.Categories[0])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
