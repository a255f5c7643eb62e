package crawler

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsharvest/internal/config"
	"newsharvest/internal/fetcher"
	"newsharvest/internal/listing"
	"newsharvest/internal/processor"
	"newsharvest/internal/retry"
	"newsharvest/internal/robots"
)

// NewFromConfig builds a fully wired harvester from configuration.
func NewFromConfig(cfg config.Config, logger *slog.Logger) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Logging, nil); err != nil {
			return nil, err
		}
	}

	retrier := retry.New(cfg.RetryPolicy(), retry.WithLogger(logger))
	tiers := config.Durations(cfg.Fetch.TimeoutTiers)

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:      cfg.Fetch.UserAgent,
		Headers:        cfg.Fetch.Headers,
		DefaultTimeout: tiers[0],
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		ProxyURL:       cfg.Fetch.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	renderer, err := buildRenderer(cfg, httpFetcher, logger)
	if err != nil {
		return nil, err
	}

	parser, err := listing.NewParser(cfg.Listing)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Listing.Location)
	if err != nil {
		return nil, fmt.Errorf("listing location: %w", err)
	}
	scanner, err := NewScanner(renderer, parser, retrier, ScannerOptions{
		URLTemplate:     cfg.Listing.URLTemplate,
		PolitenessDelay: cfg.Listing.PolitenessDelay.Duration,
		Location:        loc,
	}, logger)
	if err != nil {
		return nil, err
	}

	extractor, err := processor.NewExtractor(cfg.Extract, logger)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}

	var gate RobotsGate
	if cfg.Robots.Respect {
		gate = robots.NewAgent(cfg.Robots, httpFetcher.Client(), logger)
	}
	bodies, err := NewBodyFetcher(httpFetcher, extractor, retrier, BodyFetcherOptions{
		TimeoutTiers:  tiers,
		MinBodyLength: cfg.Fetch.MinBodyLength,
		Robots:        gate,
		Limiter:       NewDomainLimiter(cfg.Fetch.PerDomainDelay.Duration, cfg.Fetch.RateLimitPerDomain),
	}, logger)
	if err != nil {
		return nil, err
	}

	return NewHarvester(scanner, bodies, logger)
}

// RequestFromConfig builds the run inputs from the harvest section.
func RequestFromConfig(cfg config.Config) Request {
	return Request{
		Query:        cfg.Harvest.Query,
		MaxPages:     cfg.Harvest.MaxPages,
		ItemsPerPage: cfg.Harvest.ItemsPerPage,
		Filters:      cfg.Filters(),
		Concurrency:  cfg.Harvest.Concurrency,
	}
}

func buildRenderer(cfg config.Config, httpFetcher *fetcher.HTTPFetcher, logger *slog.Logger) (fetcher.Renderer, error) {
	static := fetcher.StaticRenderer{Getter: httpFetcher, Timeout: cfg.Rendering.Timeout.Duration}
	if !cfg.Rendering.Enabled {
		return static, nil
	}
	switch strings.ToLower(cfg.Rendering.Engine) {
	case "chromedp", "chrome":
		chrome := fetcher.NewChromedpRenderer(fetcher.RenderOptions{
			Timeout:            cfg.Rendering.Timeout.Duration,
			WaitForSelector:    cfg.Rendering.WaitForSelector,
			UserAgent:          cfg.Fetch.UserAgent,
			MaxBodyBytes:       cfg.Fetch.MaxBodyBytes,
			DisableHeadless:    cfg.Rendering.DisableHeadless,
			ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
		}, logger)
		return fetcher.NewComposite(chrome, static, logger), nil
	case "none", "http":
		return static, nil
	default:
		return nil, fmt.Errorf("unsupported rendering engine %q", cfg.Rendering.Engine)
	}
}
