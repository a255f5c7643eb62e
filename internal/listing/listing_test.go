package listing

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsharvest/internal/config"
	"newsharvest/pkg/types"
)

func listingPage(body, contentType string) *types.Page {
	u, _ := url.Parse("https://news.example.com/search?q=rates")
	return &types.Page{URL: u, Body: []byte(body), ContentType: contentType}
}

const htmlListing = `<html><body>
<article data-category="Economy">
  <h2><a href="/a/1?ref=list">Rates   on hold</a></h2>
  <time datetime="2024-05-02T10:00:00Z">2 hours ago</time>
  <span class="source">Daily Ledger</span>
</article>
<article>
  <a href="https://other.example.org/b/2">Markets rally</a>
  <time>3 minutes ago</time>
  <span class="category">Markets</span>
</article>
<article><h3>No link here</h3></article>
</body></html>`

func TestHTMLParser(t *testing.T) {
	p := NewHTMLParser(config.Default().Listing.Selectors)

	entries, err := p.Parse(listingPage(htmlListing, "text/html"))
	require.NoError(t, err)
	require.Len(t, entries, 3, "entries without a link still count")

	assert.Equal(t, "/a/1?ref=list", entries[0].Href)
	assert.Equal(t, "Rates on hold", entries[0].Title)
	assert.Equal(t, "2024-05-02T10:00:00Z", entries[0].Published)
	assert.Equal(t, "Economy", entries[0].Category)
	assert.Equal(t, "Daily Ledger", entries[0].Source)

	assert.Equal(t, "https://other.example.org/b/2", entries[1].Href)
	assert.Equal(t, "Markets rally", entries[1].Title)
	assert.Equal(t, "3 minutes ago", entries[1].Published)
	assert.Equal(t, "Markets", entries[1].Category)

	assert.Empty(t, entries[2].Href)
}

func TestHTMLParser_EmptyBody(t *testing.T) {
	_, err := NewHTMLParser(config.SelectorConfig{}).Parse(listingPage("", "text/html"))
	require.Error(t, err)
}

const rssListing = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Daily Ledger</title>
<item>
  <title>Rates on hold</title>
  <link>https://news.example.com/a/1</link>
  <pubDate>Thu, 02 May 2024 10:00:00 GMT</pubDate>
  <category>Economy</category>
  <description>&lt;p&gt;The bank &lt;b&gt;held&lt;/b&gt; rates.&lt;/p&gt;</description>
</item>
<item>
  <title>Markets rally</title>
  <link>https://news.example.com/a/2</link>
</item>
</channel></rss>`

func TestFeedParser(t *testing.T) {
	entries, err := NewFeedParser().Parse(listingPage(rssListing, "application/rss+xml"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "https://news.example.com/a/1", first.Href)
	assert.Equal(t, "Rates on hold", first.Title)
	assert.Equal(t, "Economy", first.Category)
	assert.Equal(t, "Daily Ledger", first.Source)
	assert.Equal(t, "The bank held rates.", first.Description)
	assert.True(t, first.PublishedAt.Equal(time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)))

	assert.True(t, entries[1].PublishedAt.IsZero())
}

func TestAutoParser(t *testing.T) {
	p, err := NewParser(config.Default().Listing)
	require.NoError(t, err)

	fromFeed, err := p.Parse(listingPage(rssListing, "text/plain"))
	require.NoError(t, err)
	assert.Len(t, fromFeed, 2)

	fromHTML, err := p.Parse(listingPage(htmlListing, "text/html"))
	require.NoError(t, err)
	assert.Len(t, fromHTML, 3)
}

func TestNewParser_UnknownFormat(t *testing.T) {
	cfg := config.Default().Listing
	cfg.Format = "csv"
	_, err := NewParser(cfg)
	require.Error(t, err)
}
