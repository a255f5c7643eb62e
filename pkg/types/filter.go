package types

import (
	"strings"
	"time"
)

// FilterCriteria decides which listing entries survive discovery.
// The zero value accepts everything.
type FilterCriteria struct {
	timeWindow time.Duration
	categories map[string]struct{}
	keywords   []string
}

// NewFilterCriteria builds criteria from caller input. A non-positive window disables
// the time filter and an empty category list allows every category.
func NewFilterCriteria(window time.Duration, allowedCategories, excludedKeywords []string) FilterCriteria {
	f := FilterCriteria{timeWindow: window}
	for _, c := range allowedCategories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if f.categories == nil {
			f.categories = make(map[string]struct{}, len(allowedCategories))
		}
		f.categories[c] = struct{}{}
	}
	for _, k := range excludedKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	return f
}

// TimeWindow returns the configured lookback window.
func (f FilterCriteria) TimeWindow() time.Duration {
	return f.timeWindow
}

// WithinWindow reports whether published is no older than now minus the window.
func (f FilterCriteria) WithinWindow(published, now time.Time) bool {
	if f.timeWindow <= 0 {
		return true
	}
	return !published.Before(now.Add(-f.timeWindow))
}

// AllowsCategory reports whether category passes the allow-list.
func (f FilterCriteria) AllowsCategory(category string) bool {
	if len(f.categories) == 0 {
		return true
	}
	_, ok := f.categories[strings.ToLower(strings.TrimSpace(category))]
	return ok
}

// ExcludesTitle reports whether title contains any excluded keyword, ignoring case.
func (f FilterCriteria) ExcludesTitle(title string) bool {
	if len(f.keywords) == 0 {
		return false
	}
	lower := strings.ToLower(title)
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
