package requestid_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/requestid"
)

func serve(t *testing.T, header string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var seen string
	handler := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	if header != "" {
		req.Header.Set(requestid.Header, header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return seen, rec
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates an ID when none is sent", func(t *testing.T) {
		t.Parallel()
		id, rec := serve(t, "")
		assert.Len(t, id, 36)
		assert.Equal(t, id, rec.Header().Get(requestid.Header))
	})

	t.Run("reuses well-formed IDs", func(t *testing.T) {
		t.Parallel()
		for _, valid := range []string{"abc123", "ABC-123_xyz", "550e8400-e29b-41d4-a716-446655440000"} {
			id, rec := serve(t, valid)
			assert.Equal(t, valid, id)
			assert.Equal(t, valid, rec.Header().Get(requestid.Header))
		}
	})

	t.Run("replaces malformed IDs", func(t *testing.T) {
		t.Parallel()
		for _, invalid := range []string{"test@request#id", "a b", "a/b", "<script>", strings.Repeat("a", 129)} {
			id, rec := serve(t, invalid)
			assert.NotEqual(t, invalid, id)
			assert.Equal(t, id, rec.Header().Get(requestid.Header))
		}
	})
}

func TestSetHeader(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	requestid.SetHeader(context.Background(), h)
	assert.Empty(t, h.Get(requestid.Header))

	requestid.SetHeader(requestid.WithContext(context.Background(), "req-1"), h)
	assert.Equal(t, "req-1", h.Get(requestid.Header))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf), logger.WithContextExtractors(requestid.LoggerExtractor()))

	log.InfoContext(requestid.WithContext(context.Background(), "req-42"), "upload completed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])

	assert.Empty(t, requestid.FromContext(context.Background()))
}
