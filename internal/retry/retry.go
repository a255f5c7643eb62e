package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retrier runs operations under a Policy. It is safe for concurrent use.
type Retrier struct {
	policy   Policy
	classify Classifier
	logger   *slog.Logger
}

// Option customises a Retrier.
type Option func(*Retrier)

// WithClassifier replaces the default classifier.
func WithClassifier(c Classifier) Option {
	return func(r *Retrier) {
		if c != nil {
			r.classify = c
		}
	}
}

// WithLogger sets the logger used for attempt diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retrier) {
		if l != nil {
			r.logger = l
		}
	}
}

// New constructs a Retrier.
func New(policy Policy, opts ...Option) *Retrier {
	r := &Retrier{
		policy:   policy,
		classify: Classify,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy the retrier applies.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do invokes op until it succeeds, fails with a non-retryable error, or the retry budget
// is spent. op receives the 0-based attempt number. Any returned error is an *AttemptsError.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	_, err := Run(ctx, r, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return err
}

// Run is the value-returning form of Retrier.Do.
func Run[T any](ctx context.Context, r *Retrier, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := r.policy.MaxAttempts()

	for attempt := 0; ; attempt++ {
		value, err := op(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("operation succeeded after retry", "attempts", attempt+1)
			}
			return value, nil
		}

		decision := r.policy.Decide(r.classify, err, attempt)
		if !decision.Retryable {
			r.logger.Debug("operation failed with non-retryable error", "attempt", attempt+1, "error", err)
			return zero, &AttemptsError{Attempts: attempt + 1, Err: err}
		}
		if attempt+1 >= maxAttempts {
			r.logger.Warn("operation failed permanently", "attempts", attempt+1, "error", err)
			return zero, &AttemptsError{Attempts: attempt + 1, Exhausted: true, Err: err}
		}

		r.logger.Debug("retry backoff wait",
			"attempt", attempt+1,
			"retry_delay_ms", decision.Delay.Milliseconds(),
			"error", err)

		if err := sleep(ctx, decision.Delay); err != nil {
			return zero, &AttemptsError{
				Attempts: attempt + 1,
				Err:      fmt.Errorf("retry cancelled: %w", err),
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
