package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Class is the retry classification of an error.
type Class int

const (
	NonRetryable Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "non_retryable"
}

// Classifier maps an error to a retry class.
type Classifier func(error) Class

// Classify is the default classifier. Unknown errors are non-retryable.
func Classify(err error) Class {
	if err == nil {
		return NonRetryable
	}

	// Explicit marks win over everything underneath them.
	var marked *markedError
	if errors.As(err, &marked) {
		return marked.class
	}

	if errors.Is(err, context.Canceled) {
		return NonRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(statusErr.StatusCode)
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return Retryable
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return Retryable
	}

	return NonRetryable
}

// ClassifyStatus classifies an HTTP status code.
func ClassifyStatus(status int) Class {
	switch {
	case status >= 500 && status <= 599:
		return Retryable
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return Retryable
	default:
		return NonRetryable
	}
}
