package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errUnsupportedScheme = errors.New("unsupported scheme")

// normalizeURL resolves href against base and reduces it to the form used for
// deduplication and fetching: absolute http(s), lowercase scheme and host, default
// port dropped, no credentials, query or fragment.
func normalizeURL(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errors.New("empty href")
	}
	var (
		u   *url.URL
		err error
	)
	if base != nil {
		u, err = base.Parse(href)
	} else {
		u, err = url.Parse(href)
	}
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w %q", errUnsupportedScheme, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("href %q has no host", href)
	}
	if port := u.Port(); port != "" && port != defaultPortForScheme(scheme) {
		host = host + ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path, nil
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// seenSet records normalized URLs for one run. It is only touched by the
// sequential listing phase and needs no locking.
type seenSet map[string]struct{}

// add reports whether key was new.
func (s seenSet) add(key string) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}
