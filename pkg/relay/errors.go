package relay

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid relay configuration")
	ErrNoAPIKey      = errors.New("relay upstream API key is not configured")
)

// Error codes written in the response envelope besides the media kinds.
const (
	CodeNoAPIKey = "NO_API_KEY"
)
