package fetcher

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the username does not resolve to an account.
var ErrNotFound = errors.New("account not found")

// TransientError is a failure that may succeed on a later attempt:
// network errors, timeouts and 5xx responses after retries ran out.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: platform returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitedError is returned when the platform kept answering 429.
type RateLimitedError struct {
	Op         string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Op)
}

// ResponseError is a non-retryable unexpected response (4xx other than
// 404/429, or a body that does not decode).
type ResponseError struct {
	Op     string
	Status int
	Err    error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: bad response (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Kind classifies err for metrics labels.
func Kind(err error) string {
	var te *TransientError
	var rl *RateLimitedError
	var re *ResponseError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &te):
		return "transient"
	case errors.As(err, &re):
		return "response"
	default:
		return "other"
	}
}
