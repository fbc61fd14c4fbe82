package upstream

import "errors"

// Failure kinds surfaced by upstream fetchers. Callers classify with
// errors.Is; the concrete provider error wraps one of these.
var (
	// ErrRateLimited means the provider signaled quota exhaustion. The
	// caller must back off before the next attempt on that symbol.
	ErrRateLimited = errors.New("upstream: rate limited")

	// ErrUnavailable covers transient provider failures (5xx, connection
	// refused). Retryable at the caller's discretion.
	ErrUnavailable = errors.New("upstream: unavailable")

	// ErrTimeout means the request exceeded its deadline.
	ErrTimeout = errors.New("upstream: timeout")

	// ErrUnauthorized means the credential was rejected. Not retryable;
	// escalates to process health.
	ErrUnauthorized = errors.New("upstream: unauthorized")
)
