package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes exponential backoff with jitter.
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	Factor         float64
	MaxDelay       time.Duration
	JitterFraction float64
}

// Decision is the outcome of classifying one failed attempt.
type Decision struct {
	Retryable bool
	Delay     time.Duration
	Attempt   int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		Factor:         2,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.1,
	}
}

// MaxAttempts is the total number of invocations the policy allows.
func (p Policy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns min(base * factor^attempt, max) without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay <= 0 {
		return 0
	}
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Decide classifies err for the given 0-based attempt. Retryable decisions carry the
// backoff delay plus up to JitterFraction of random jitter.
func (p Policy) Decide(classify Classifier, err error, attempt int) Decision {
	if classify == nil {
		classify = Classify
	}
	d := Decision{Attempt: attempt}
	if classify(err) != Retryable {
		return d
	}
	d.Retryable = true
	d.Delay = p.Backoff(attempt)
	if p.JitterFraction > 0 && d.Delay > 0 {
		d.Delay += time.Duration(rand.Float64() * p.JitterFraction * float64(d.Delay))
	}
	return d
}
