package submit

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned without touching the downstream while the
// breaker is open. Fail-fast and retryable on a later cycle.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ValidationError is a permanent 4xx rejection from the downstream claims
// API. Never retried; the job goes to manual exception handling.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("downstream rejected claim (%d): %s", e.StatusCode, e.Message)
}

// ServerError is a 5xx response. Transient; retried with backoff and counted
// toward the breaker's failure window.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("downstream server error (%d): %s", e.StatusCode, e.Message)
}

// MalformedAcceptError is a 2xx response whose body carried no usable
// reference. The downstream likely recorded the submission, so the claim is
// never re-posted and the breaker does not count the response as a failure.
type MalformedAcceptError struct {
	StatusCode int
	Body       string
}

func (e *MalformedAcceptError) Error() string {
	return fmt.Sprintf("downstream accepted (%d) without a usable reference: %s", e.StatusCode, e.Body)
}

// RateLimitedError is a 429. The downstream is healthy but throttling, so it
// does not count toward the breaker; RetryAfter overrides the computed
// backoff before the next attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("downstream rate limited, retry after %s", e.RetryAfter)
}

// Permanent reports whether err must not be retried.
func Permanent(err error) bool {
	var ve *ValidationError
	var ma *MalformedAcceptError
	return errors.As(err, &ve) || errors.As(err, &ma)
}
