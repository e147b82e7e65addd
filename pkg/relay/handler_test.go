package relay_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mediakit/pkg/media"
	"github.com/dmitrymomot/mediakit/pkg/ratelimiter"
	"github.com/dmitrymomot/mediakit/pkg/relay"
	"github.com/dmitrymomot/mediakit/pkg/requestid"
)

const pngBytes = "\x89PNG\r\n\x1a\nfake"

// upstream records the last form it received and answers with status and body.
type upstream struct {
	mu     sync.Mutex
	fields map[string]string
	header http.Header
	calls  int
}

func (u *upstream) server(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		u.mu.Lock()
		u.calls++
		u.header = r.Header.Clone()
		u.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			u.fields[k] = v[0]
		}
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type formPart struct {
	name, filename, value string
}

func multipartRequest(t *testing.T, parts ...formPart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename != "" {
			fw, err := mw.CreateFormFile(p.name, p.filename)
			require.NoError(t, err)
			_, err = fw.Write([]byte(p.value))
			require.NoError(t, err)
			continue
		}
		require.NoError(t, mw.WriteField(p.name, p.value))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(t *testing.T, h *relay.Handler, req *http.Request) (int, media.RelayResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	var body media.RelayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), rec.Body.String())
	return rec.Code, body
}

func newHandler(t *testing.T, upstreamURL string, opts ...relay.Option) *relay.Handler {
	t.Helper()
	h, err := relay.New(relay.Config{UpstreamURL: upstreamURL, APIKey: "secret"}, opts...)
	require.NoError(t, err)
	return h
}

const okBody = `{"status_code":200,"status_txt":"OK","image":{"id_encoded":"abc","display_url":"https://img.example.com/abc.png","thumb":{"url":"https://img.example.com/abc.th.png"},"width":10,"height":20}}`

func TestUploadFilePart(t *testing.T) {
	t.Parallel()

	up := &upstream{}
	srv := up.server(t, http.StatusOK, okBody)
	h := newHandler(t, srv.URL)

	req := multipartRequest(t,
		formPart{name: "image", filename: "photo.png", value: pngBytes},
		formPart{name: "name", value: "photo_1700000000000_abc123"},
	)
	req = req.WithContext(requestid.WithContext(req.Context(), "req-42"))

	status, body := serve(t, h, req)

	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)
	require.NotNil(t, body.Data)
	assert.Nil(t, body.Error)
	assert.Equal(t, "https://img.example.com/abc.png", body.Data.DisplayURL)
	assert.Equal(t, "https://img.example.com/abc.th.png", body.Data.ThumbnailURL)
	assert.Equal(t, 10, body.Data.Width)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "secret", up.fields["key"])
	assert.Equal(t, "upload", up.fields["action"])
	assert.Equal(t, "json", up.fields["format"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(pngBytes)), up.fields["source"])
	assert.Equal(t, "photo_1700000000000_abc123", up.fields["name"])
	assert.Equal(t, "req-42", up.header.Get(requestid.Header))
}

func TestUploadBase64Field(t *testing.T) {
	t.Parallel()

	encoded := base64.StdEncoding.EncodeToString([]byte(pngBytes))
	for name, value := range map[string]string{
		"plain":    encoded,
		"data uri": "data:image/png;base64," + encoded,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			up := &upstream{}
			h := newHandler(t, up.server(t, http.StatusOK, okBody).URL)

			status, body := serve(t, h, multipartRequest(t, formPart{name: "image", value: value}))

			require.Equal(t, http.StatusOK, status)
			assert.True(t, body.Success)
			up.mu.Lock()
			assert.Equal(t, encoded, up.fields["source"])
			_, hasName := up.fields["name"]
			up.mu.Unlock()
			assert.False(t, hasName)
		})
	}
}

func TestUploadInputErrors(t *testing.T) {
	t.Parallel()

	up := &upstream{}
	srv := up.server(t, http.StatusOK, okBody)

	t.Run("no api key", func(t *testing.T) {
		t.Parallel()
		h, err := relay.New(relay.Config{UpstreamURL: srv.URL})
		require.NoError(t, err)
		assert.ErrorIs(t, h.Ready(context.Background()), relay.ErrNoAPIKey)

		status, body := serve(t, h, multipartRequest(t, formPart{name: "image", filename: "a.png", value: pngBytes}))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.False(t, body.Success)
		require.NotNil(t, body.Error)
		assert.Equal(t, relay.CodeNoAPIKey, body.Error.Code)
	})

	t.Run("no file", func(t *testing.T) {
		t.Parallel()
		status, body := serve(t, newHandler(t, srv.URL), multipartRequest(t, formPart{name: "name", value: "x"}))
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, "NO_FILE", body.Error.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"image":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		status, body := serve(t, newHandler(t, srv.URL), req)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "NO_FILE", body.Error.Code)
	})

	t.Run("invalid base64", func(t *testing.T) {
		t.Parallel()
		status, body := serve(t, newHandler(t, srv.URL), multipartRequest(t, formPart{name: "image", value: "not base64!"}))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		t.Parallel()
		h, err := relay.New(relay.Config{UpstreamURL: srv.URL, APIKey: "secret", MaxBodySize: 1024})
		require.NoError(t, err)
		status, body := serve(t, h, multipartRequest(t, formPart{name: "image", filename: "big.png", value: strings.Repeat("x", 8192)}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, status)
		assert.Equal(t, "FILE_TOO_LARGE", body.Error.Code)
	})

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Zero(t, up.calls, "invalid input never reaches the upstream host")
}

func TestUploadUpstreamFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", http.StatusBadRequest, `{"status_code":401,"error":{"message":"Invalid API key","code":100}}`, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"too large", http.StatusRequestEntityTooLarge, `{"error":{"message":"too big"}}`, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"rate limited", http.StatusOK, `{"status":429,"status_txt":"Too Many Requests"}`, http.StatusTooManyRequests, "RATE_LIMIT"},
		{"bad request", http.StatusBadRequest, `{"status_code":400,"error":{"message":"bad"}}`, http.StatusBadGateway, "UPLOAD_FAILED"},
		{"no url", http.StatusOK, `{"status_code":200,"status_txt":"OK","image":{"id":"x"}}`, http.StatusBadGateway, "NO_URL"},
		{"malformed", http.StatusOK, `<html>`, http.StatusBadGateway, "UPLOAD_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			up := &upstream{}
			h := newHandler(t, up.server(t, tt.status, tt.body).URL)

			status, body := serve(t, h, multipartRequest(t, formPart{name: "image", filename: "a.png", value: pngBytes}))

			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, body.Success)
			assert.Nil(t, body.Data)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestUploadUpstreamTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	h, err := relay.New(relay.Config{UpstreamURL: srv.URL, APIKey: "secret", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	status, body := serve(t, h, multipartRequest(t, formPart{name: "image", filename: "a.png", value: pngBytes}))
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "TIMEOUT", body.Error.Code)
}

func TestUploadRecordsObserver(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	up := &upstream{}
	h := newHandler(t, up.server(t, http.StatusOK, okBody).URL, relay.WithObserver(obs))

	status, _ := serve(t, h, multipartRequest(t, formPart{name: "image", filename: "a.png", value: pngBytes}))
	require.Equal(t, http.StatusOK, status)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.sizes, 1)
	assert.Equal(t, int64(len(pngBytes)), obs.sizes[0])
}

func TestRoutesRejectOtherMethods(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newHandler(t, "https://upstream.example.com/upload").Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := relay.New(relay.Config{})
	assert.ErrorIs(t, err, relay.ErrInvalidConfig)

	_, err = relay.New(relay.Config{UpstreamURL: "not a url"})
	assert.ErrorIs(t, err, relay.ErrInvalidConfig)
}

type recordingObserver struct {
	mu    sync.Mutex
	sizes []int64
}

func (o *recordingObserver) RecordUpload(_ media.Provider, _ time.Duration, size int64, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sizes = append(o.sizes, size)
}

func (o *recordingObserver) RecordDelete(media.Provider, time.Duration, error) {}

func (o *recordingObserver) RecordList(media.Provider, time.Duration, error) {}

func TestUploadRateLimited(t *testing.T) {
	t.Parallel()

	l, err := ratelimiter.New(ratelimiter.Config{Burst: 1, Rate: 1, Interval: time.Hour}, ratelimiter.WithoutSweep())
	require.NoError(t, err)

	up := &upstream{}
	h := newHandler(t, up.server(t, http.StatusOK, okBody).URL, relay.WithRateLimit(l))

	status, _ := serve(t, h, multipartRequest(t, formPart{name: "image", filename: "a.png", value: pngBytes}))
	require.Equal(t, http.StatusOK, status)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, multipartRequest(t, formPart{name: "image", filename: "a.png", value: pngBytes}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body media.RelayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "RATE_LIMIT", body.Error.Code)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, 1, up.calls)
}
