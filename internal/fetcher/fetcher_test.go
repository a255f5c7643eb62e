package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsharvest/internal/retry"
	"newsharvest/pkg/types"
)

func newFetcher(t *testing.T, opts Options) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher(opts)
	require.NoError(t, err)
	return f
}

func TestHTTPFetcher_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "harvest-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Probe"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body>ok</body></html>")
	}))
	defer srv.Close()

	f := newFetcher(t, Options{UserAgent: "harvest-test", Headers: map[string]string{"X-Probe": "yes"}})
	page, err := f.Get(context.Background(), srv.URL+"/a/1", time.Second)
	require.NoError(t, err)

	assert.Equal(t, "<html><body>ok</body></html>", string(page.Body))
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "/a/1", page.BaseURL().Path)
	assert.False(t, page.Rendered)
}

func TestHTTPFetcher_Decoding(t *testing.T) {
	var gz, br bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte("gzip body"))
	require.NoError(t, gw.Close())
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte("brotli body"))
	require.NoError(t, bw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(gz.Bytes())
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			_, _ = w.Write(br.Bytes())
		}
	}))
	defer srv.Close()

	f := newFetcher(t, Options{})
	for path, want := range map[string]string{"/gzip": "gzip body", "/br": "brotli body"} {
		page, err := f.Get(context.Background(), srv.URL+path, time.Second)
		require.NoError(t, err, path)
		assert.Equal(t, want, string(page.Body))
	}
}

func TestHTTPFetcher_ErrorClasses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/unavailable":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/huge":
			_, _ = io.WriteString(w, strings.Repeat("x", 2048))
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
	}))
	defer srv.Close()

	f := newFetcher(t, Options{MaxBodyBytes: 1024})
	tests := map[string]struct {
		path    string
		timeout time.Duration
		want    retry.Class
	}{
		"not found":   {path: "/missing", timeout: time.Second, want: retry.NonRetryable},
		"unavailable": {path: "/unavailable", timeout: time.Second, want: retry.Retryable},
		"too large":   {path: "/huge", timeout: time.Second, want: retry.NonRetryable},
		"timeout":     {path: "/slow", timeout: 50 * time.Millisecond, want: retry.Retryable},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.Get(context.Background(), srv.URL+tc.path, tc.timeout)
			require.Error(t, err)
			assert.Equal(t, tc.want, retry.Classify(err))
		})
	}

	_, err := f.Get(context.Background(), srv.URL+"/missing", time.Second)
	var statusErr *retry.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestHTTPFetcher_ConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newFetcher(t, Options{}).Get(context.Background(), addr, time.Second)
	require.Error(t, err)
	assert.Equal(t, retry.Retryable, retry.Classify(err))
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	_, err := newFetcher(t, Options{}).Get(context.Background(), "not a url", time.Second)
	require.Error(t, err)
	assert.Equal(t, retry.NonRetryable, retry.Classify(err))
}

func TestComposite(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	okPage := &types.Page{Body: []byte("fallback")}
	failing := RendererFunc(func(context.Context, string) (*types.Page, error) {
		return nil, retry.Transient(errors.New("browser crashed"))
	})
	fallback := RendererFunc(func(context.Context, string) (*types.Page, error) {
		return okPage, nil
	})

	page, err := NewComposite(failing, fallback, logger).Render(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Same(t, okPage, page)

	_, err = NewComposite(failing, nil, logger).Render(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Equal(t, retry.Retryable, retry.Classify(err))

	page, err = NewComposite(nil, fallback, logger).Render(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Same(t, okPage, page)
}

func TestStaticRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<rss></rss>")
	}))
	defer srv.Close()

	page, err := StaticRenderer{Getter: newFetcher(t, Options{}), Timeout: time.Second}.Render(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<rss></rss>", string(page.Body))
}

func TestChromedpRenderer_InvalidURL(t *testing.T) {
	r := NewChromedpRenderer(RenderOptions{}, nil)
	_, err := r.Render(context.Background(), "::not-a-url")
	require.Error(t, err)
	assert.Equal(t, retry.NonRetryable, retry.Classify(err))

	assert.Len(t, r.settle(), 1)
	assert.Len(t, NewChromedpRenderer(RenderOptions{WaitForSelector: "#list"}, nil).settle(), 2)
}

func TestTruncateUTF8(t *testing.T) {
	tests := map[string]struct {
		in    string
		limit int64
		want  string
	}{
		"under limit":        {in: "abc", limit: 5, want: "abc"},
		"ascii cut":          {in: "abcdef", limit: 4, want: "abcd"},
		"cut inside rune":    {in: "ab한국", limit: 4, want: "ab"},
		"cut on boundary":    {in: "ab한국", limit: 5, want: "ab한"},
		"zero limit":         {in: "한", limit: 0, want: ""},
		"leading multi-byte": {in: "한국", limit: 2, want: ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := truncateUTF8(tc.in, tc.limit)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
