package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mediakit/pkg/config"
	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/media"
)

func testServer(t *testing.T, environ map[string]string) *httptest.Server {
	t.Helper()
	var cfg config.App
	require.NoError(t, config.Parse(&cfg, environ))

	h, cleanup, err := newRouter(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRouterWithoutAPIKey(t *testing.T) {
	t.Parallel()

	srv := testServer(t, map[string]string{})

	status, _ := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)

	status, body := get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "upstream_api_key")

	resp, err := http.Post(srv.URL+"/upload", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var env media.RelayResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "NO_API_KEY", env.Error.Code)
}

func TestRouterMetrics(t *testing.T) {
	t.Parallel()

	srv := testServer(t, map[string]string{"RELAY_UPSTREAM_API_KEY": "secret", "RELAY_RATE_LIMIT_PER_MINUTE": "0"})

	status, _ := get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)

	status, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
}
