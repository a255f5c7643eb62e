package robots

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"

	"newsharvest/internal/config"
)

// Agent evaluates robots.txt rules for body fetches, with a TTL cache and host overrides.
// It is safe for concurrent use by fetch workers.
type Agent struct {
	client    *http.Client
	userAgent string
	respect   bool
	logger    *slog.Logger

	rules     *cache.Cache
	overrides map[string]struct{}
}

// NewAgent constructs a robots agent from configuration.
func NewAgent(cfg config.RobotsConfig, client *http.Client, logger *slog.Logger) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		overrides[host] = struct{}{}
	}

	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		respect:   cfg.Respect,
		logger:    logger,
		rules:     cache.New(ttl, 2*ttl),
		overrides: overrides,
	}
}

// Allowed reports whether the target URL may be fetched.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if !a.respect {
		return true
	}

	host := strings.ToLower(target.Hostname())
	if _, ok := a.overrides[host]; ok {
		return true
	}

	data, err := a.load(ctx, target)
	if err != nil {
		// Fail open.
		a.logger.Debug("robots unavailable", "host", host, "error", err)
		return true
	}

	group := data.FindGroup(a.userAgent)
	if group == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (a *Agent) load(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(target.Scheme + "://" + target.Host)
	if cached, ok := a.rules.Get(key); ok {
		return cached.(*robotstxt.RobotsData), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// 4xx means allow-all and 5xx disallow-all, both decided by robotstxt.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	a.rules.SetDefault(key, data)
	return data, nil
}

// Purge evicts cached robots rules for a scheme://host origin.
func (a *Agent) Purge(origin string) {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return
	}
	a.rules.Delete(strings.TrimSuffix(origin, "/"))
}
