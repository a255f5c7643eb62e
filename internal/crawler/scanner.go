package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newsharvest/internal/fetcher"
	"newsharvest/internal/listing"
	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

// ErrFirstPage is returned when page 0 of a listing cannot be loaded, which is the
// only listing failure that aborts a run.
var ErrFirstPage = errors.New("first listing page unavailable")

// ScanRequest describes one listing traversal.
type ScanRequest struct {
	Query        string
	Pages        int
	ItemsPerPage int
	Filters      types.FilterCriteria
}

// PageReport summarises one listing page.
type PageReport struct {
	Page     int
	URL      string
	Raw      int
	Accepted int
	Skipped  bool
	Err      error
}

// ScannerOptions tunes a Scanner.
type ScannerOptions struct {
	// URLTemplate supports {query}, {page} (0-based), {page1}, {offset} and {size}.
	URLTemplate     string
	PolitenessDelay time.Duration
	Location        *time.Location
	Now             func() time.Time
	OnPage          func(PageReport)
}

// Scanner walks listing pages sequentially and turns entries into candidates.
type Scanner struct {
	template   string
	renderer   fetcher.Renderer
	parser     listing.Parser
	retrier    *retry.Retrier
	politeness time.Duration
	location   *time.Location
	now        func() time.Time
	onPage     func(PageReport)
	logger     *slog.Logger
}

// NewScanner wires a scanner from its collaborators.
func NewScanner(renderer fetcher.Renderer, parser listing.Parser, retrier *retry.Retrier, opts ScannerOptions, logger *slog.Logger) (*Scanner, error) {
	if renderer == nil || parser == nil || retrier == nil {
		return nil, errors.New("scanner requires a renderer, parser and retrier")
	}
	if strings.TrimSpace(opts.URLTemplate) == "" {
		return nil, errors.New("scanner requires a url template")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		template:   opts.URLTemplate,
		renderer:   renderer,
		parser:     parser,
		retrier:    retrier,
		politeness: opts.PolitenessDelay,
		location:   opts.Location,
		now:        opts.Now,
		onPage:     opts.OnPage,
		logger:     logger,
	}, nil
}

// Scan traverses pages 0..Pages-1 in order and returns accepted candidates in
// discovery order. Each call starts from page 0 with an empty seen set.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) ([]types.CandidateItem, error) {
	return s.scan(ctx, req, nil)
}

func (s *Scanner) scan(ctx context.Context, req ScanRequest, observe func(PageReport)) ([]types.CandidateItem, error) {
	if req.Pages <= 0 || req.ItemsPerPage <= 0 {
		return nil, fmt.Errorf("scan requires positive pages and items per page (got %d, %d)", req.Pages, req.ItemsPerPage)
	}

	now := s.now()
	seen := make(seenSet)
	var items []types.CandidateItem

	for page := 0; page < req.Pages; page++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		pageURL := s.PageURL(req.Query, page, req.ItemsPerPage)
		logger := s.logger.With("page", page, "url", pageURL)
		report := PageReport{Page: page, URL: pageURL}

		entries, base, err := s.loadPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			report.Skipped, report.Err = true, err
			s.emit(report, observe)
			if page == 0 {
				return nil, fmt.Errorf("%w: %w", ErrFirstPage, err)
			}
			logger.Warn("listing page skipped", "attempts", retry.Attempts(err), "error", err)
			continue
		}

		for _, entry := range entries {
			item, reason, ok := s.accept(entry, base, page, req.Filters, now, seen)
			if !ok {
				logger.Debug("listing entry rejected", "href", entry.Href, "reason", reason)
				continue
			}
			items = append(items, item)
			report.Accepted++
		}
		report.Raw = len(entries)
		s.emit(report, observe)
		logger.Debug("listing page scanned", "raw", report.Raw, "accepted", report.Accepted)

		if len(entries) < req.ItemsPerPage {
			break
		}
		if page+1 < req.Pages {
			if err := pause(ctx, s.politeness); err != nil {
				return items, err
			}
		}
	}
	return items, nil
}

// PageURL expands the listing template for a 0-based page index.
func (s *Scanner) PageURL(query string, page, size int) string {
	return strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{page1}", strconv.Itoa(page+1),
		"{page}", strconv.Itoa(page),
		"{offset}", strconv.Itoa(page*size),
		"{size}", strconv.Itoa(size),
	).Replace(s.template)
}

func (s *Scanner) loadPage(ctx context.Context, pageURL string) ([]types.ListingEntry, *url.URL, error) {
	page, err := retry.Run(ctx, s.retrier, func(ctx context.Context, _ int) (*types.Page, error) {
		return s.renderer.Render(ctx, pageURL)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("render listing: %w", err)
	}
	entries, err := s.parser.Parse(page)
	if err != nil {
		return nil, nil, err
	}
	base := page.BaseURL()
	if base == nil {
		base, _ = url.Parse(pageURL)
	}
	return entries, base, nil
}

// accept applies normalisation, deduplication and filters, in that order.
func (s *Scanner) accept(entry types.ListingEntry, base *url.URL, page int, filters types.FilterCriteria, now time.Time, seen seenSet) (types.CandidateItem, string, bool) {
	link, err := normalizeURL(base, entry.Href)
	if err != nil {
		return types.CandidateItem{}, "invalid_url", false
	}
	if !seen.add(link) {
		return types.CandidateItem{}, "duplicate", false
	}

	published := entry.PublishedAt
	if published.IsZero() {
		published, err = parseTimestamp(entry.Published, now, s.location)
		if err != nil {
			s.logger.Debug("unparseable listing timestamp", "url", link, "raw", entry.Published, "error", err)
			return types.CandidateItem{}, "timestamp", false
		}
	}
	if !filters.WithinWindow(published, now) {
		return types.CandidateItem{}, "outside_window", false
	}
	if !filters.AllowsCategory(entry.Category) {
		return types.CandidateItem{}, "category", false
	}
	if filters.ExcludesTitle(entry.Title) {
		return types.CandidateItem{}, "excluded_keyword", false
	}

	source := entry.Source
	if source == "" {
		if u, err := url.Parse(link); err == nil {
			source = u.Hostname()
		}
	}
	return types.CandidateItem{
		URL:              link,
		Title:            entry.Title,
		SourceTag:        source,
		PublishedAt:      published,
		Category:         entry.Category,
		DiscoveredAtPage: page,
	}, "", true
}

func (s *Scanner) emit(report PageReport, observe func(PageReport)) {
	if observe != nil {
		observe(report)
	}
	if s.onPage != nil {
		s.onPage(report)
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
