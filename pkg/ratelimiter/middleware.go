package ratelimiter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/mediakit/pkg/clientip"
)

// KeyFunc picks the bucket for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByClientIP keys on the address stored by clientip.Middleware, falling
// back to RemoteAddr.
func ByClientIP(r *http.Request) string {
	if ip := clientip.FromContext(r.Context()); ip != "" {
		return ip
	}
	return clientip.FromRequest(r, false)
}

// DenyFunc writes the refusal. Retry-After and X-RateLimit-* are already set.
type DenyFunc func(w http.ResponseWriter, r *http.Request, d Decision)

// Middleware enforces l per key. A nil deny answers a plain 429.
func Middleware(l *Limiter, key KeyFunc, deny DenyFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request, _ Decision) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Allow(k)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				secs := int((d.RetryAfter(l.now()) + time.Second - 1) / time.Second)
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
				deny(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
