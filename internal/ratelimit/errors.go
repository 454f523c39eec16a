package ratelimit

import "errors"

var (
	ErrNotConfigured  = errors.New("rate_limiter_not_configured")
	ErrEmptyKey       = errors.New("rate_limiter_empty_key")
	ErrInvalidLimit   = errors.New("rate_limiter_invalid_limit")
	ErrInvalidReply   = errors.New("rate_limiter_invalid_reply")
	ErrInvalidLockTTL = errors.New("lock_invalid_ttl")
)
