package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"newsharvest/pkg/types"
)

// Renderer produces the DOM of a (possibly script-driven) listing page.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (*types.Page, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, rawURL string) (*types.Page, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, rawURL string) (*types.Page, error) {
	return f(ctx, rawURL)
}

// StaticRenderer renders by plain HTTP retrieval, for listings that need no script execution.
type StaticRenderer struct {
	Getter  Getter
	Timeout time.Duration
}

// Render implements Renderer.
func (s StaticRenderer) Render(ctx context.Context, rawURL string) (*types.Page, error) {
	if s.Getter == nil {
		return nil, errors.New("static renderer has no getter")
	}
	return s.Getter.Get(ctx, rawURL, s.Timeout)
}

// Composite tries the primary renderer and falls back to the secondary on failure.
type Composite struct {
	primary  Renderer
	fallback Renderer
	logger   *slog.Logger
}

// NewComposite builds a composite renderer. A nil primary renders with the fallback only.
func NewComposite(primary, fallback Renderer, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{primary: primary, fallback: fallback, logger: logger}
}

// Render delegates to the primary renderer, then the fallback.
func (c *Composite) Render(ctx context.Context, rawURL string) (*types.Page, error) {
	if c.primary != nil {
		page, err := c.primary.Render(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		if c.fallback == nil || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("renderer failed, falling back to HTTP fetch", "url", rawURL, "error", err)
	}
	if c.fallback == nil {
		return nil, errors.New("no renderer configured")
	}
	return c.fallback.Render(ctx, rawURL)
}
