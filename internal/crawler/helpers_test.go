package crawler

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsharvest/internal/fetcher"
	"newsharvest/internal/processor"
	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

const testTemplate = "https://news.example.com/search?q={query}&page={page}"

var testNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetrier(maxRetries int) *retry.Retrier {
	return retry.New(retry.Policy{
		MaxRetries:     maxRetries,
		BaseDelay:      time.Millisecond,
		Factor:         2,
		MaxDelay:       5 * time.Millisecond,
		JitterFraction: 0.1,
	}, retry.WithLogger(discardLogger()))
}

// fakeListing serves listing pages keyed by their 0-based page index.
type fakeListing struct {
	mu      sync.Mutex
	entries map[int][]types.ListingEntry
	errs    map[int]error
	calls   map[int]int
}

func newFakeListing() *fakeListing {
	return &fakeListing{
		entries: make(map[int][]types.ListingEntry),
		errs:    make(map[int]error),
		calls:   make(map[int]int),
	}
}

func pageIndex(u *url.URL) int {
	n, _ := strconv.Atoi(u.Query().Get("page"))
	return n
}

func (f *fakeListing) Render(_ context.Context, rawURL string) (*types.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	page := pageIndex(u)
	f.mu.Lock()
	f.calls[page]++
	err = f.errs[page]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &types.Page{URL: u, Body: []byte("<html></html>")}, nil
}

func (f *fakeListing) Parse(page *types.Page) ([]types.ListingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[pageIndex(page.URL)], nil
}

func (f *fakeListing) renderCalls(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

func newTestScanner(t *testing.T, listing *fakeListing, opts ScannerOptions) *Scanner {
	t.Helper()
	if opts.URLTemplate == "" {
		opts.URLTemplate = testTemplate
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	s, err := NewScanner(listing, listing, fastRetrier(1), opts, discardLogger())
	require.NoError(t, err)
	return s
}

func entryAt(href string, age time.Duration) types.ListingEntry {
	return types.ListingEntry{Href: href, Title: "Story " + href, PublishedAt: testNow.Add(-age)}
}

type getterFunc func(ctx context.Context, rawURL string, timeout time.Duration) (*types.Page, error)

func (f getterFunc) Get(ctx context.Context, rawURL string, timeout time.Duration) (*types.Page, error) {
	return f(ctx, rawURL, timeout)
}

var _ fetcher.Getter = getterFunc(nil)

type extractorFunc func(page *types.Page) processor.Result

func (f extractorFunc) Extract(page *types.Page) processor.Result { return f(page) }

// bodyExtractor returns the page body verbatim as high quality text.
var bodyExtractor = extractorFunc(func(page *types.Page) processor.Result {
	if len(page.Body) == 0 {
		return processor.Result{Quality: types.QualityNone}
	}
	return processor.Result{Text: string(page.Body), Quality: types.QualityHigh, Heuristic: "test"}
})
