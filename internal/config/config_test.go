package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader(t *testing.T) {
	raw := `
harvest:
  query: " rate cuts "
  hours_limit: 12
  max_pages: 2
  items_per_page: 20
  allowed_categories: [Economy, economy, " Markets "]
  excluded_keywords: [Sponsored]
  concurrency: 4
listing:
  url_template: "https://news.example.com/search?q={query}&page={page}"
  politeness_delay: 250ms
fetch:
  timeout_tiers: [5s, 10]
retry:
  max_retries: 2
  base_delay: 0.5
`
	cfg, err := LoadFromReader(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "rate cuts", cfg.Harvest.Query)
	assert.Equal(t, []string{"economy", "markets"}, cfg.Harvest.AllowedCategories)
	assert.Equal(t, 250*time.Millisecond, cfg.Listing.PolitenessDelay.Duration)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, Durations(cfg.Fetch.TimeoutTiers))
	assert.Equal(t, "auto", cfg.Listing.Format)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 2, policy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay, "defaults survive partial overrides")

	filters := cfg.Filters()
	assert.Equal(t, 12*time.Hour, filters.TimeWindow())
	assert.True(t, filters.AllowsCategory("MARKETS"))
	assert.True(t, filters.ExcludesTitle("A sponsored post"))
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("listing:\n  url_templat: x\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Listing.URLTemplate = "https://example.com/?q={query}"
	require.NoError(t, valid.Validate())

	tests := map[string]func(*Config){
		"missing template":    func(c *Config) { c.Listing.URLTemplate = "" },
		"zero pages":          func(c *Config) { c.Harvest.MaxPages = 0 },
		"zero page size":      func(c *Config) { c.Harvest.ItemsPerPage = 0 },
		"zero concurrency":    func(c *Config) { c.Harvest.Concurrency = 0 },
		"bad format":          func(c *Config) { c.Listing.Format = "json" },
		"bad location":        func(c *Config) { c.Listing.Location = "Mars/Olympus" },
		"negative retries":    func(c *Config) { c.Retry.MaxRetries = -1 },
		"shrinking factor":    func(c *Config) { c.Retry.Factor = 0.5 },
		"no timeout tiers":    func(c *Config) { c.Fetch.TimeoutTiers = nil },
		"zero timeout tier":   func(c *Config) { c.Fetch.TimeoutTiers = []Duration{{}} },
		"jitter out of band":  func(c *Config) { c.Retry.Jitter = 2 },
		"zero hours limit":    func(c *Config) { c.Harvest.HoursLimit = 0 },
		"negative base delay": func(c *Config) { c.Retry.BaseDelay = Duration{Duration: -time.Second} },
		"uncapped max delay":  func(c *Config) { c.Retry.MaxDelay = Duration{} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			cfg.Fetch.TimeoutTiers = append([]Duration(nil), valid.Fetch.TimeoutTiers...)
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "interest rates", cfg.Harvest.Query)
	assert.True(t, cfg.Fetch.RateLimitPerDomain.Enabled())
	assert.Equal(t, []string{"advertorial", "sponsored"}, cfg.Harvest.ExcludedKeywords)
}
