package crawler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	errNoTimestamp = errors.New("no timestamp")

	relativeAgo = regexp.MustCompile(`(?i)^(\d+|an?|one)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?)\s+ago$`)
	relativeKo  = regexp.MustCompile(`^(\d+)\s*(초|분|시간|일|주)\s*전$`)
)

// Dotted portal layouts, tried before dateparse which reads them ambiguously.
var portalLayouts = []string{
	"2006.01.02. 15:04",
	"2006.01.02 15:04",
	"2006.01.02.",
	"2006. 1. 2. 15:04",
	"2006-01-02 15:04",
}

var relativeUnits = map[string]time.Duration{
	"se": time.Second, "초": time.Second,
	"mi": time.Minute, "분": time.Minute,
	"ho": time.Hour, "hr": time.Hour, "시간": time.Hour,
	"da": 24 * time.Hour, "일": 24 * time.Hour,
	"we": 7 * 24 * time.Hour, "주": 7 * 24 * time.Hour,
}

// parseTimestamp turns a listing timestamp into an absolute time. Relative forms are
// resolved against now; absolute forms without a zone are read in loc.
func parseTimestamp(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errNoTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, ok := parseRelative(raw, now); ok {
		return t, nil
	}
	for _, layout := range portalLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	if t, err := dateparse.ParseIn(raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

func parseRelative(raw string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(raw)
	switch lower {
	case "just now", "now", "방금", "방금 전":
		return now, true
	case "yesterday", "어제":
		return now.Add(-24 * time.Hour), true
	}

	var count, unit string
	if m := relativeAgo.FindStringSubmatch(lower); m != nil {
		count, unit = m[1], unitKey(m[2])
	} else if m := relativeKo.FindStringSubmatch(raw); m != nil {
		count, unit = m[1], m[2]
	} else {
		return time.Time{}, false
	}

	n := 1
	if v, err := strconv.Atoi(count); err == nil {
		n = v
	}
	step, ok := relativeUnits[unit]
	if !ok {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n) * step), true
}

// unitKey shortens an English unit to the prefix used in relativeUnits.
func unitKey(unit string) string {
	if strings.HasPrefix(unit, "hr") {
		return "hr"
	}
	return unit[:2]
}
