package retry

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

type markedError struct {
	err   error
	class Class
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

// Transient marks err as retryable regardless of its underlying type.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, class: Retryable}
}

// Permanent marks err as non-retryable regardless of its underlying type.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, class: NonRetryable}
}

// AttemptsError wraps the final error of a retried operation with the number of
// invocations it took.
type AttemptsError struct {
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *AttemptsError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("attempt %d: %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// Attempts extracts the attempt count carried by err, or 0 when err carries none.
func Attempts(err error) int {
	var ae *AttemptsError
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	return 0
}
