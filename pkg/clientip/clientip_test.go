package clientip_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/mediakit/pkg/clientip"
	"github.com/dmitrymomot/mediakit/pkg/logger"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.0.2.10:5123", nil, false, "192.0.2.10"},
		{"remote without port", "192.0.2.10", nil, false, "192.0.2.10"},
		{"headers ignored when untrusted", "192.0.2.10:5123", map[string]string{"X-Forwarded-For": "203.0.113.7"}, false, "192.0.2.10"},
		{"cloudflare first", "10.0.0.1:80", map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Forwarded-For": "203.0.113.2"}, true, "203.0.113.1"},
		{"first valid forwarded", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "garbage, 203.0.113.7, 10.0.0.2"}, true, "203.0.113.7"},
		{"real ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "2001:db8::1"}, true, "2001:db8::1"},
		{"invalid headers fall back", "10.0.0.1:80", map[string]string{"X-Real-IP": "nope"}, true, "10.0.0.1"},
		{"unparseable remote", "not-an-ip", nil, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/upload", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.FromRequest(r, tt.trustProxy))
		})
	}
}

func TestMiddlewareAndExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithContextExtractors(clientip.LoggerExtractor()))

	var seen string
	h := clientip.Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = clientip.FromContext(r.Context())
		log.InfoContext(r.Context(), "upload")
	}))

	r := httptest.NewRequest(http.MethodPost, "/upload", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "203.0.113.9", seen)
	assert.Contains(t, buf.String(), `"client_ip":"203.0.113.9"`)

	buf.Reset()
	log.InfoContext(context.Background(), "no request")
	assert.NotContains(t, buf.String(), "client_ip")
}
