package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"newsharvest/pkg/types"
)

// RecordFetcher turns one candidate into its terminal record without failing.
type RecordFetcher interface {
	Fetch(ctx context.Context, item types.CandidateItem) types.HarvestRecord
}

// Request holds the inputs of one harvest run.
type Request struct {
	Query        string
	MaxPages     int
	ItemsPerPage int
	Filters      types.FilterCriteria
	Concurrency  int
}

// Stats summarises a run.
type Stats struct {
	PagesScanned  int           `json:"pages_scanned"`
	PagesSkipped  int           `json:"pages_skipped"`
	Candidates    int           `json:"candidates"`
	OK            int           `json:"ok"`
	EmptyFallback int           `json:"empty_fallback"`
	Failed        int           `json:"failed"`
	Duration      time.Duration `json:"duration"`
}

// Result is the output of Harvest. Records are sorted newest first.
type Result struct {
	RunID   string                `json:"run_id"`
	Records []types.HarvestRecord `json:"records"`
	Stats   Stats                 `json:"stats"`
}

// Harvester scans listings sequentially, then fetches bodies on a bounded worker pool.
type Harvester struct {
	scanner *Scanner
	bodies  RecordFetcher
	logger  *slog.Logger
}

// NewHarvester wires a harvester.
func NewHarvester(scanner *Scanner, bodies RecordFetcher, logger *slog.Logger) (*Harvester, error) {
	if scanner == nil || bodies == nil {
		return nil, errors.New("harvester requires a scanner and a record fetcher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{scanner: scanner, bodies: bodies, logger: logger}, nil
}

// Harvest runs one complete harvest. It returns one record per accepted candidate; the
// only run-level failures are ErrFirstPage and cancellation of ctx during the listing phase.
func (h *Harvester) Harvest(ctx context.Context, req Request) (Result, error) {
	if req.Concurrency <= 0 {
		return Result{}, fmt.Errorf("harvest concurrency must be > 0 (got %d)", req.Concurrency)
	}

	runID := uuid.NewString()
	logger := h.logger.With("run_id", runID, "query", req.Query)
	start := time.Now()
	res := Result{RunID: runID}

	candidates, err := h.scanner.scan(ctx, ScanRequest{
		Query:        req.Query,
		Pages:        req.MaxPages,
		ItemsPerPage: req.ItemsPerPage,
		Filters:      req.Filters,
	}, func(r PageReport) {
		if r.Skipped {
			res.Stats.PagesSkipped++
		} else {
			res.Stats.PagesScanned++
		}
	})
	if err != nil {
		logger.Error("listing scan aborted", "error", err)
		res.Stats.Duration = time.Since(start)
		return res, err
	}
	res.Stats.Candidates = len(candidates)
	logger.Info("listing scan complete",
		"candidates", len(candidates),
		"pages_scanned", res.Stats.PagesScanned,
		"pages_skipped", res.Stats.PagesSkipped)

	res.Records = h.fetchAll(ctx, candidates, req.Concurrency)
	sortRecords(res.Records)

	for _, rec := range res.Records {
		switch rec.BodyStatus {
		case types.BodyOK:
			res.Stats.OK++
		case types.BodyEmptyFallback:
			res.Stats.EmptyFallback++
		default:
			res.Stats.Failed++
		}
	}
	res.Stats.Duration = time.Since(start)
	logger.Info("harvest complete",
		"records", len(res.Records),
		"ok", res.Stats.OK,
		"empty_fallback", res.Stats.EmptyFallback,
		"failed", res.Stats.Failed,
		"duration_ms", res.Stats.Duration.Milliseconds())
	return res, nil
}

// fetchAll fans candidates out over the pool. Each job owns exactly one slot of the
// result slice, so no locking is needed.
func (h *Harvester) fetchAll(ctx context.Context, candidates []types.CandidateItem, concurrency int) []types.HarvestRecord {
	records := make([]types.HarvestRecord, len(candidates))
	if len(candidates) == 0 {
		return records
	}

	pool, err := NewWorkerPool(ctx, min(concurrency, len(candidates)), len(candidates))
	if err != nil {
		for i, item := range candidates {
			records[i] = failedRecord(item, 0, err)
		}
		return records
	}
	for i, item := range candidates {
		i, item := i, item
		if err := pool.Submit(ctx, func(ctx context.Context) {
			records[i] = h.bodies.Fetch(ctx, item)
		}); err != nil {
			records[i] = failedRecord(item, 0, fmt.Errorf("not scheduled: %w", err))
		}
	}
	pool.Close()
	return records
}

// sortRecords orders newest first; equal timestamps keep discovery order.
func sortRecords(records []types.HarvestRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PublishedAt.After(records[j].PublishedAt)
	})
}
