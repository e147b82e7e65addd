package ratelimiter

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
	ErrInvalidTokens = errors.New("invalid token count")
)
