package crawler

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"newsharvest/internal/config"
)

// DomainLimiter enforces per-domain politeness for body fetches, combining a minimum
// delay between requests with an optional token bucket. Safe for concurrent use.
type DomainLimiter struct {
	delay time.Duration
	rate  config.RateLimitConfig

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter returns nil when neither a delay nor a rate limit is configured.
func NewDomainLimiter(delay time.Duration, rateCfg config.RateLimitConfig) *DomainLimiter {
	if delay <= 0 && !rateCfg.Enabled() {
		return nil
	}
	return &DomainLimiter{
		delay:    delay,
		rate:     rateCfg,
		last:     make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until politeness constraints for the target host are satisfied.
func (d *DomainLimiter) Wait(ctx context.Context, target *url.URL) error {
	if d == nil || target == nil || target.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(target.Hostname())

	d.mu.Lock()
	var sleep time.Duration
	now := time.Now()
	if d.delay > 0 {
		// Reserve the next slot so concurrent workers on one host queue up.
		next := now
		if last, ok := d.last[host]; ok && last.Add(d.delay).After(now) {
			next = last.Add(d.delay)
		}
		d.last[host] = next
		sleep = next.Sub(now)
	}
	var limiter *rate.Limiter
	if d.rate.Enabled() {
		limiter = d.ensureLimiterLocked(host)
	}
	d.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func (d *DomainLimiter) ensureLimiterLocked(host string) *rate.Limiter {
	if limiter, ok := d.limiters[host]; ok {
		return limiter
	}
	interval := d.rate.Window.Duration / time.Duration(d.rate.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), d.rate.Requests)
	d.limiters[host] = limiter
	return limiter
}
