package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/docker/go-units"

	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/media"
	"github.com/dmitrymomot/mediakit/pkg/ratelimiter"
)

const (
	DefaultMaxBodySize int64 = 70 * units.MiB
	DefaultTimeout           = 60 * time.Second

	// multipartMemory is kept in memory while parsing; larger parts spill to disk.
	multipartMemory = 8 * units.MiB
	// maxUpstreamResponse caps how much of the upstream reply is read.
	maxUpstreamResponse = 1 * units.MiB
)

// Config describes the upstream image host the relay forwards to.
type Config struct {
	UpstreamURL string
	// APIKey stays on the server. When empty every upload answers NO_API_KEY.
	APIKey string
	// MaxBodySize bounds the incoming request, base64 overhead included.
	MaxBodySize int64
	// Timeout bounds the upstream round trip.
	Timeout time.Duration
}

// Option configures the Handler.
type Option func(*Handler)

func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) {
		if c != nil {
			h.client = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithObserver records every forwarded upload as a relay upload.
func WithObserver(o media.Observer) Option {
	return func(h *Handler) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithRateLimit limits uploads per client IP. Refusals answer 429 RATE_LIMIT.
func WithRateLimit(l *ratelimiter.Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

func defaults(h *Handler) {
	h.logger = logger.Discard()
	h.client = &http.Client{}
	if h.cfg.MaxBodySize <= 0 {
		h.cfg.MaxBodySize = DefaultMaxBodySize
	}
	if h.cfg.Timeout <= 0 {
		h.cfg.Timeout = DefaultTimeout
	}
}
