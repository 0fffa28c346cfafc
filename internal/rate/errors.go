package rate

import "errors"

var (
	// ErrRateLimited is returned by callers that turn a denied Decision into an error.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter read/write failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
