package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
	"unicode/utf8"

	"newsharvest/internal/fetcher"
	"newsharvest/internal/processor"
	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

var (
	errThinContent = errors.New("extracted body below minimum length")
	errDisallowed  = retry.Permanent(errors.New("disallowed by robots.txt"))
)

// ContentExtractor pulls readable text out of a fetched page.
type ContentExtractor interface {
	Extract(page *types.Page) processor.Result
}

// RobotsGate reports whether a URL may be fetched.
type RobotsGate interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// BodyFetcherOptions tunes a BodyFetcher. Robots and Limiter are optional.
type BodyFetcherOptions struct {
	TimeoutTiers  []time.Duration
	MinBodyLength int
	Robots        RobotsGate
	Limiter       *DomainLimiter
}

// BodyFetcher retrieves and extracts one candidate's body under the shared retry policy.
// Fetch never fails: every outcome is folded into the returned record.
type BodyFetcher struct {
	getter    fetcher.Getter
	extractor ContentExtractor
	retrier   *retry.Retrier
	tiers     []time.Duration
	minBody   int
	robots    RobotsGate
	limiter   *DomainLimiter
	logger    *slog.Logger
}

// NewBodyFetcher wires a body fetcher from its collaborators.
func NewBodyFetcher(getter fetcher.Getter, extractor ContentExtractor, retrier *retry.Retrier, opts BodyFetcherOptions, logger *slog.Logger) (*BodyFetcher, error) {
	if getter == nil || extractor == nil || retrier == nil {
		return nil, errors.New("body fetcher requires a getter, extractor and retrier")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BodyFetcher{
		getter:    getter,
		extractor: extractor,
		retrier:   retrier,
		tiers:     append([]time.Duration(nil), opts.TimeoutTiers...),
		minBody:   opts.MinBodyLength,
		robots:    opts.Robots,
		limiter:   opts.Limiter,
		logger:    logger,
	}, nil
}

// Fetch produces the HarvestRecord for item.
func (b *BodyFetcher) Fetch(ctx context.Context, item types.CandidateItem) (rec types.HarvestRecord) {
	logger := b.logger.With("url", item.URL)
	calls := 0

	defer func() {
		if r := recover(); r != nil {
			logger.Error("body fetch panicked", "panic", r)
			rec = failedRecord(item, calls, fmt.Errorf("panic: %v", r))
		}
	}()

	target, err := url.Parse(item.URL)
	if err != nil || !target.IsAbs() {
		return failedRecord(item, 0, fmt.Errorf("invalid candidate url %q", item.URL))
	}
	if b.robots != nil && !b.robots.Allowed(ctx, target) {
		logger.Debug("blocked by robots")
		return failedRecord(item, 0, errDisallowed)
	}

	var best processor.Result
	res, err := retry.Run(ctx, b.retrier, func(ctx context.Context, attempt int) (processor.Result, error) {
		if err := b.limiter.Wait(ctx, target); err != nil {
			return processor.Result{}, fmt.Errorf("domain limiter: %w", err)
		}
		calls++
		page, err := b.getter.Get(ctx, item.URL, b.timeoutFor(attempt))
		if err != nil {
			return processor.Result{}, err
		}
		res := b.extractor.Extract(page)
		if utf8.RuneCountInString(res.Text) > utf8.RuneCountInString(best.Text) {
			best = res
		}
		if res.Quality == types.QualityNone || utf8.RuneCountInString(res.Text) < b.minBody {
			return res, retry.Transient(errThinContent)
		}
		return res, nil
	})

	rec = types.HarvestRecord{CandidateItem: item, FetchAttempts: calls}
	switch {
	case err == nil:
		rec.Body, rec.Quality, rec.BodyStatus = res.Text, res.Quality, types.BodyOK
	case errors.Is(err, errThinContent):
		rec.Body, rec.Quality, rec.BodyStatus = best.Text, best.Quality, types.BodyEmptyFallback
		if rec.Quality == "" {
			rec.Quality = types.QualityNone
		}
		logger.Debug("body below minimum length", "attempts", calls, "runes", utf8.RuneCountInString(best.Text))
	default:
		logger.Warn("body fetch failed", "attempts", calls, "error", err)
		rec = failedRecord(item, calls, err)
	}
	return rec
}

// timeoutFor picks the timeout tier for a 0-based attempt; later attempts reuse the last tier.
func (b *BodyFetcher) timeoutFor(attempt int) time.Duration {
	if len(b.tiers) == 0 {
		return 0
	}
	if attempt >= len(b.tiers) {
		attempt = len(b.tiers) - 1
	}
	return b.tiers[attempt]
}

func failedRecord(item types.CandidateItem, attempts int, err error) types.HarvestRecord {
	return types.HarvestRecord{
		CandidateItem: item,
		BodyStatus:    types.BodyFailed,
		Quality:       types.QualityNone,
		FetchAttempts: attempts,
		LastError:     err.Error(),
	}
}
