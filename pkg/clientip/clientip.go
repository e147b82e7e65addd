// Package clientip resolves the caller address of an HTTP request and
// carries it in the request context.
package clientip

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/dmitrymomot/mediakit/pkg/logger"
)

// proxyHeaders are consulted in order when proxy headers are trusted.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// FromRequest returns the normalized client IP. Proxy headers are only read
// when trustProxy is set; otherwise RemoteAddr is authoritative.
func FromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			v := r.Header.Get(h)
			if v == "" {
				continue
			}
			// X-Forwarded-For lists the original client first.
			for candidate := range strings.SplitSeq(v, ",") {
				if ip := normalize(candidate); ip != "" {
					return ip
				}
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalize(r.RemoteAddr)
	}
	return normalize(host)
}

func normalize(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

type ctxKey struct{}

func WithContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ip)
}

func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKey{}).(string)
	return ip
}

// Middleware stores the client IP in the request context.
func Middleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithContext(r.Context(), FromRequest(r, trustProxy))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerExtractor adds "client_ip" to records logged with a request context.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		ip := FromContext(ctx)
		if ip == "" {
			return slog.Attr{}, false
		}
		return slog.String("client_ip", ip), true
	}
}
