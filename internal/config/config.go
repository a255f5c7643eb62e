package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

// Config captures everything required to wire a harvester.
type Config struct {
	Harvest   HarvestConfig   `yaml:"harvest"`
	Listing   ListingConfig   `yaml:"listing"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Retry     RetryConfig     `yaml:"retry"`
	Extract   ExtractConfig   `yaml:"extract"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rendering RenderingConfig `yaml:"rendering"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HarvestConfig holds the per-run inputs.
type HarvestConfig struct {
	Query             string   `yaml:"query"`
	HoursLimit        int      `yaml:"hours_limit"` // lookback window in hours; must be positive
	MaxPages          int      `yaml:"max_pages"`
	ItemsPerPage      int      `yaml:"items_per_page"`
	AllowedCategories []string `yaml:"allowed_categories"`
	ExcludedKeywords  []string `yaml:"excluded_keywords"`
	Concurrency       int      `yaml:"concurrency"`
}

// ListingConfig describes how listing pages are addressed and parsed.
type ListingConfig struct {
	URLTemplate     string         `yaml:"url_template"`
	Format          string         `yaml:"format"`
	PolitenessDelay Duration       `yaml:"politeness_delay"`
	Location        string         `yaml:"location"`
	Selectors       SelectorConfig `yaml:"selectors"`
}

// SelectorConfig holds goquery selectors for HTML listings.
type SelectorConfig struct {
	Item     string `yaml:"item"`
	Link     string `yaml:"link"`
	Title    string `yaml:"title"`
	Time     string `yaml:"time"`
	TimeAttr string `yaml:"time_attr"`
	Category string `yaml:"category"`
	Source   string `yaml:"source"`
}

// FetchConfig controls direct document retrieval.
type FetchConfig struct {
	UserAgent          string            `yaml:"user_agent"`
	Headers            map[string]string `yaml:"headers"`
	ProxyURL           string            `yaml:"proxy_url"`
	TimeoutTiers       []Duration        `yaml:"timeout_tiers"`
	MaxBodyBytes       int64             `yaml:"max_body_bytes"`
	MinBodyLength      int               `yaml:"min_body_length"`
	PerDomainDelay     Duration          `yaml:"per_domain_delay"`
	RateLimitPerDomain RateLimitConfig   `yaml:"rate_limit_per_domain"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RetryConfig is the shared backoff policy.
type RetryConfig struct {
	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
	Factor     float64  `yaml:"factor"`
	MaxDelay   Duration `yaml:"max_delay"`
	Jitter     float64  `yaml:"jitter"`
}

// ExtractConfig tunes content extraction.
type ExtractConfig struct {
	Containers          []string `yaml:"containers"`
	MinLength           int      `yaml:"min_length"`
	MinLineRunes        int      `yaml:"min_line_runes"`
	BoilerplatePatterns []string `yaml:"boilerplate_patterns"`
}

// RobotsConfig configures robots.txt handling for body fetches.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// RenderingConfig controls JavaScript rendering of listing pages.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Engine             string   `yaml:"engine"`
	Timeout            Duration `yaml:"timeout"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Harvest: HarvestConfig{
			HoursLimit:   24,
			MaxPages:     5,
			ItemsPerPage: 20,
			Concurrency:  5,
		},
		Listing: ListingConfig{
			Format:          "auto",
			PolitenessDelay: DurationFrom(time.Second),
			Location:        "UTC",
			Selectors: SelectorConfig{
				Item:     "article",
				Link:     "a[href]",
				Title:    "h1, h2, h3, h4",
				Time:     "time",
				TimeAttr: "datetime",
				Category: "[data-category], .category",
				Source:   ".source, [data-source]",
			},
		},
		Fetch: FetchConfig{
			UserAgent: "newsharvest-bot/1.0",
			Headers:   map[string]string{},
			TimeoutTiers: []Duration{
				DurationFrom(10 * time.Second),
				DurationFrom(20 * time.Second),
				DurationFrom(30 * time.Second),
			},
			MaxBodyBytes:  6 * 1024 * 1024,
			MinBodyLength: 200,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  DurationFrom(time.Second),
			Factor:     2,
			MaxDelay:   DurationFrom(30 * time.Second),
			Jitter:     0.1,
		},
		Extract: ExtractConfig{
			MinLength:    200,
			MinLineRunes: 8,
		},
		Robots: RobotsConfig{
			Respect:   false,
			Overrides: []string{},
			UserAgent: "newsharvest-bot/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Engine:             "chromedp",
			Timeout:            DurationFrom(15 * time.Second),
			ConcurrentSessions: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listing.URLTemplate) == "" {
		return errors.New("listing.url_template must be set")
	}
	if c.Harvest.MaxPages <= 0 {
		return fmt.Errorf("harvest.max_pages must be > 0 (got %d)", c.Harvest.MaxPages)
	}
	if c.Harvest.ItemsPerPage <= 0 {
		return fmt.Errorf("harvest.items_per_page must be > 0 (got %d)", c.Harvest.ItemsPerPage)
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0 (got %d)", c.Harvest.Concurrency)
	}
	if c.Harvest.HoursLimit <= 0 {
		return fmt.Errorf("harvest.hours_limit must be > 0 (got %d)", c.Harvest.HoursLimit)
	}
	switch c.Listing.Format {
	case "auto", "html", "feed":
	default:
		return fmt.Errorf("unsupported listing.format %q", c.Listing.Format)
	}
	if _, err := time.LoadLocation(c.Listing.Location); err != nil {
		return fmt.Errorf("listing.location: %w", err)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0 (got %d)", c.Retry.MaxRetries)
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry.factor must be >= 1 (got %g)", c.Retry.Factor)
	}
	if c.Retry.BaseDelay.Duration < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0 (got %s)", c.Retry.BaseDelay.Duration)
	}
	if c.Retry.MaxDelay.Duration <= 0 {
		return fmt.Errorf("retry.max_delay must be > 0 (got %s)", c.Retry.MaxDelay.Duration)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be within [0,1] (got %g)", c.Retry.Jitter)
	}
	if len(c.Fetch.TimeoutTiers) == 0 {
		return errors.New("fetch.timeout_tiers must include at least one value")
	}
	for i, tier := range c.Fetch.TimeoutTiers {
		if tier.Duration <= 0 {
			return fmt.Errorf("fetch.timeout_tiers[%d] must be > 0", i)
		}
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0 (got %d)", c.Fetch.MaxBodyBytes)
	}
	if c.Fetch.MinBodyLength < 0 {
		return fmt.Errorf("fetch.min_body_length must be >= 0 (got %d)", c.Fetch.MinBodyLength)
	}
	if rl := c.Fetch.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("fetch.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		return errors.New("fetch.user_agent must be set")
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.Harvest.Query = strings.TrimSpace(c.Harvest.Query)
	c.Harvest.AllowedCategories = dedupeLower(c.Harvest.AllowedCategories)
	c.Harvest.ExcludedKeywords = dedupeLower(c.Harvest.ExcludedKeywords)
	c.Listing.URLTemplate = strings.TrimSpace(c.Listing.URLTemplate)
	c.Listing.Format = strings.ToLower(strings.TrimSpace(c.Listing.Format))
	if c.Listing.Format == "" {
		c.Listing.Format = "auto"
	}
	if strings.TrimSpace(c.Listing.Location) == "" {
		c.Listing.Location = "UTC"
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	if c.Robots.UserAgent == "" {
		c.Robots.UserAgent = c.Fetch.UserAgent
	}
	c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
}

func dedupeLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// Filters builds the immutable filter criteria for a run.
func (c Config) Filters() types.FilterCriteria {
	return types.NewFilterCriteria(
		time.Duration(c.Harvest.HoursLimit)*time.Hour,
		c.Harvest.AllowedCategories,
		c.Harvest.ExcludedKeywords,
	)
}

// RetryPolicy builds the policy shared by every network-touching component.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:     c.Retry.MaxRetries,
		BaseDelay:      c.Retry.BaseDelay.Duration,
		Factor:         c.Retry.Factor,
		MaxDelay:       c.Retry.MaxDelay.Duration,
		JitterFraction: c.Retry.Jitter,
	}
}
