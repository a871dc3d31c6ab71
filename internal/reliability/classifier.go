package reliability

import (
	"context"
	"errors"
	"time"
)

// StatusError carries the HTTP status behind a failed backend call so
// the retry policy can classify it.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// IsRetryableHTTPStatus reports whether a backend HTTP status is worth
// retrying. Rate limits and server-side failures are transient; any
// other status is a request fault that will not heal on its own.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableSynthesisError reports whether a failed synthesis attempt
// is worth repeating. Cancellation and request faults are final;
// everything else (worker hiccups, network errors, rate limits) is
// treated as transient.
func IsRetryableSynthesisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableHTTPStatus(se.Status)
	}
	return true
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
