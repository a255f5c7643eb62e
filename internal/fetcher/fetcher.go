package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

// Getter retrieves a document directly, bounded by a per-call timeout.
type Getter interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (*types.Page, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent      string
	Headers        map[string]string
	DefaultTimeout time.Duration
	MaxBodyBytes   int64
	ProxyURL       string
}

// HTTPFetcher implements Getter via the Go http.Client.
type HTTPFetcher struct {
	client         *http.Client
	userAgent      string
	extraHeaders   map[string]string
	maxBodyBytes   int64
	defaultTimeout time.Duration
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		// Decoding is done in readBody so brotli is supported as well.
		DisableCompression: true,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		// Timeouts are applied per call through the request context.
		client:         &http.Client{Transport: transport},
		userAgent:      opts.UserAgent,
		extraHeaders:   headers,
		maxBodyBytes:   opts.MaxBodyBytes,
		defaultTimeout: opts.DefaultTimeout,
	}, nil
}

// Get downloads a single URL. Non-2xx responses come back as *retry.StatusError.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string, timeout time.Duration) (*types.Page, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || target.Host == "" {
		return nil, retry.Permanent(fmt.Errorf("invalid url %q", rawURL))
	}
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}

	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	for k, v := range f.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, URL: target.String()}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &types.Page{
		URL:             target,
		FinalURL:        finalURL,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header.Clone(),
		FetchedAt:       time.Now(),
		ResponseLatency: time.Since(start),
	}, nil
}

// readBody decodes and size-limits the response payload, closing the body.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	reader, err := decoder(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	defer reader.Close()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, retry.Permanent(fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes))
	}
	return body, nil
}

// decoder wraps r according to a Content-Encoding header value.
func decoder(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		return gz, nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "deflate":
		return flate.NewReader(r), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt fetches).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}
