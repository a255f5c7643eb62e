package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

// peakFetcher records the highest number of concurrent Fetch calls.
type peakFetcher struct {
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (p *peakFetcher) Fetch(_ context.Context, item types.CandidateItem) types.HarvestRecord {
	p.calls.Add(1)
	n := p.inflight.Add(1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(3 * time.Millisecond)
	p.inflight.Add(-1)
	return types.HarvestRecord{CandidateItem: item, Body: "body", BodyStatus: types.BodyOK, Quality: types.QualityHigh, FetchAttempts: 1}
}

func scenarioListing() *fakeListing {
	listing := newFakeListing()
	for i := 0; i < 20; i++ {
		age := time.Duration((i*37)%20) * time.Minute
		if i == 2 || i == 9 {
			age = 25 * time.Hour
		}
		listing.entries[0] = append(listing.entries[0], entryAt(fmt.Sprintf("/a/%d", i), age))
	}
	for i := 0; i < 5; i++ {
		listing.entries[1] = append(listing.entries[1], entryAt(fmt.Sprintf("/b/%d", i), time.Duration(i)*time.Minute+30*time.Second))
	}
	return listing
}

func TestHarvester_Scenario(t *testing.T) {
	bodies := &peakFetcher{}
	h, err := NewHarvester(newTestScanner(t, scenarioListing(), ScannerOptions{}), bodies, discardLogger())
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), Request{
		Query:        "rates",
		MaxPages:     2,
		ItemsPerPage: 20,
		Filters:      types.NewFilterCriteria(24*time.Hour, nil, nil),
		Concurrency:  5,
	})
	require.NoError(t, err)

	require.Len(t, res.Records, 23)
	assert.Equal(t, int32(23), bodies.calls.Load())
	assert.LessOrEqual(t, bodies.peak.Load(), int32(5))
	assert.True(t, sort.SliceIsSorted(res.Records, func(i, j int) bool {
		return res.Records[i].PublishedAt.After(res.Records[j].PublishedAt)
	}))

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Stats.PagesScanned)
	assert.Zero(t, res.Stats.PagesSkipped)
	assert.Equal(t, 23, res.Stats.Candidates)
	assert.Equal(t, 23, res.Stats.OK)
}

func TestHarvester_TotalOutputWithFailures(t *testing.T) {
	listing := newFakeListing()
	for i := 0; i < 6; i++ {
		listing.entries[0] = append(listing.entries[0], entryAt(fmt.Sprintf("/a/%d", i), time.Duration(i)*time.Minute))
	}

	bodies, err := NewBodyFetcher(getterFunc(func(_ context.Context, rawURL string, _ time.Duration) (*types.Page, error) {
		switch {
		case strings.HasSuffix(rawURL, "/a/1"), strings.HasSuffix(rawURL, "/a/4"):
			return nil, &retry.StatusError{StatusCode: 500, URL: rawURL}
		case strings.HasSuffix(rawURL, "/a/2"):
			return nil, &retry.StatusError{StatusCode: 404, URL: rawURL}
		case strings.HasSuffix(rawURL, "/a/3"):
			panic("getter exploded")
		}
		return pageWith(longBody), nil
	}), bodyExtractor, fastRetrier(2), BodyFetcherOptions{MinBodyLength: 50}, discardLogger())
	require.NoError(t, err)

	h, err := NewHarvester(newTestScanner(t, listing, ScannerOptions{}), bodies, discardLogger())
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), Request{MaxPages: 1, ItemsPerPage: 10, Concurrency: 3})
	require.NoError(t, err)

	require.Len(t, res.Records, 6)
	assert.Equal(t, 2, res.Stats.OK)
	assert.Equal(t, 4, res.Stats.Failed)
	for _, rec := range res.Records {
		if rec.BodyStatus == types.BodyFailed {
			assert.NotEmpty(t, rec.LastError, rec.URL)
		}
		if strings.HasSuffix(rec.URL, "/a/2") {
			assert.Equal(t, 1, rec.FetchAttempts)
		}
		if strings.HasSuffix(rec.URL, "/a/1") {
			assert.Equal(t, 3, rec.FetchAttempts)
		}
	}
}

func TestHarvester_FirstPageFailure(t *testing.T) {
	listing := newFakeListing()
	listing.errs[0] = retry.Transient(errors.New("browser unavailable"))
	bodies := &peakFetcher{}

	h, err := NewHarvester(newTestScanner(t, listing, ScannerOptions{}), bodies, discardLogger())
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), Request{MaxPages: 3, ItemsPerPage: 10, Concurrency: 2})
	require.ErrorIs(t, err, ErrFirstPage)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Stats.PagesSkipped)
	assert.Zero(t, bodies.calls.Load())
}

func TestHarvester_EmptyListing(t *testing.T) {
	h, err := NewHarvester(newTestScanner(t, newFakeListing(), ScannerOptions{}), &peakFetcher{}, discardLogger())
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), Request{MaxPages: 2, ItemsPerPage: 10, Concurrency: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Stats.PagesScanned)
}

func TestHarvester_RejectsZeroConcurrency(t *testing.T) {
	h, err := NewHarvester(newTestScanner(t, newFakeListing(), ScannerOptions{}), &peakFetcher{}, discardLogger())
	require.NoError(t, err)

	_, err = h.Harvest(context.Background(), Request{MaxPages: 1, ItemsPerPage: 1})
	assert.Error(t, err)
}

func TestSortRecords_Stable(t *testing.T) {
	same := testNow.Add(-time.Hour)
	records := []types.HarvestRecord{
		{CandidateItem: types.CandidateItem{URL: "first", PublishedAt: same}},
		{CandidateItem: types.CandidateItem{URL: "older", PublishedAt: same.Add(-time.Hour)}},
		{CandidateItem: types.CandidateItem{URL: "second", PublishedAt: same}},
		{CandidateItem: types.CandidateItem{URL: "newest", PublishedAt: testNow}},
		{CandidateItem: types.CandidateItem{URL: "third", PublishedAt: same}},
	}

	sortRecords(records)

	var got []string
	for _, r := range records {
		got = append(got, r.URL)
	}
	assert.Equal(t, []string{"newest", "first", "second", "third", "older"}, got)
}
