package rate

import "errors"

var (
	// ErrRateLimited signals that the caller exhausted its attempt
	// budget for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
