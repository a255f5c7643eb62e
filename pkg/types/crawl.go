package types

import (
	"net/http"
	"net/url"
	"time"
)

// Page represents a fetched or rendered document.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	ContentType     string
	StatusCode      int
	Headers         http.Header
	FetchedAt       time.Time
	Rendered        bool
	ResponseLatency time.Duration
}

// BaseURL returns the URL relative links on the page resolve against.
func (p *Page) BaseURL() *url.URL {
	if p == nil {
		return nil
	}
	if p.FinalURL != nil {
		return p.FinalURL
	}
	return p.URL
}

// ListingEntry is a raw entry parsed from a listing page, before normalisation and filtering.
type ListingEntry struct {
	Href        string
	Title       string
	Published   string
	PublishedAt time.Time
	Category    string
	Source      string
	Description string
}

// CandidateItem is a discovered reference to content prior to body fetch.
type CandidateItem struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	SourceTag        string    `json:"source_tag,omitempty"`
	PublishedAt      time.Time `json:"published_at"`
	Category         string    `json:"category,omitempty"`
	DiscoveredAtPage int       `json:"discovered_at_page"`
}

// BodyStatus describes how a body fetch ended.
type BodyStatus string

const (
	BodyOK            BodyStatus = "ok"
	BodyEmptyFallback BodyStatus = "empty_fallback"
	BodyFailed        BodyStatus = "failed"
)

// Quality is a coarse confidence tag on extracted text.
type Quality string

const (
	QualityNone Quality = "none"
	QualityLow  Quality = "low"
	QualityHigh Quality = "high"
)

// HarvestRecord is the terminal artefact for one candidate.
type HarvestRecord struct {
	CandidateItem
	Body          string     `json:"body"`
	BodyStatus    BodyStatus `json:"body_status"`
	Quality       Quality    `json:"quality"`
	FetchAttempts int        `json:"fetch_attempts"`
	LastError     string     `json:"last_error,omitempty"`
}
