package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"

	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

const defaultBrowserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

// RenderOptions configures headless listing rendering.
type RenderOptions struct {
	Timeout            time.Duration
	WaitForSelector    string
	UserAgent          string
	MaxBodyBytes       int64
	DisableHeadless    bool
	ConcurrentSessions int
	// SettleDelay is how long to wait after navigation when no selector is configured.
	SettleDelay time.Duration
}

// ChromedpRenderer renders script-driven listing pages in headless Chrome.
// At most ConcurrentSessions browsers run at once.
type ChromedpRenderer struct {
	opts     RenderOptions
	sessions chan struct{}
	logger   *slog.Logger
}

// NewChromedpRenderer constructs a renderer with bounded concurrency.
func NewChromedpRenderer(opts RenderOptions, logger *slog.Logger) *ChromedpRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultBrowserUA
	}
	return &ChromedpRenderer{
		opts:     opts,
		sessions: make(chan struct{}, opts.ConcurrentSessions),
		logger:   logger,
	}
}

// Render navigates to rawURL and returns the outer HTML of the settled DOM.
// Browser failures are reported as transient.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string) (*types.Page, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || target.Host == "" {
		return nil, retry.Permanent(fmt.Errorf("invalid render url %q", rawURL))
	}
	logger := r.logger.With("url", target.String())

	select {
	case r.sessions <- struct{}{}:
		defer func() { <-r.sessions }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	allocCtx, allocCancel := chromedp.NewExecAllocator(runCtx,
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(r.opts.UserAgent),
	)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var html, location string
	start := time.Now()
	actions := append([]chromedp.Action{chromedp.Navigate(target.String())}, r.settle()...)
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("chromedp render failed", "error", err)
		return nil, retry.Transient(fmt.Errorf("chromedp run: %w", err))
	}

	html = truncateUTF8(html, r.opts.MaxBodyBytes)
	final := target
	if u, err := url.Parse(location); err == nil && u.Host != "" {
		final = u
	}

	latency := time.Since(start)
	logger.Debug("chromedp render complete", "latency_ms", latency.Milliseconds(), "html_bytes", len(html))
	return &types.Page{
		URL:             target,
		FinalURL:        final,
		Body:            []byte(html),
		ContentType:     "text/html; charset=utf-8",
		StatusCode:      200,
		FetchedAt:       time.Now(),
		Rendered:        true,
		ResponseLatency: latency,
	}, nil
}

func (r *ChromedpRenderer) settle() []chromedp.Action {
	if sel := strings.TrimSpace(r.opts.WaitForSelector); sel != "" {
		return []chromedp.Action{
			chromedp.WaitReady(sel, chromedp.ByQuery),
			chromedp.Sleep(250 * time.Millisecond),
		}
	}
	return []chromedp.Action{chromedp.Sleep(r.opts.SettleDelay)}
}

// truncateUTF8 caps s at limit bytes without splitting a multi-byte sequence.
func truncateUTF8(s string, limit int64) string {
	if int64(len(s)) <= limit {
		return s
	}
	cut := int(limit)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
