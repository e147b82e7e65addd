package config_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mediakit/pkg/config"
	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/media"
)

func parseApp(t *testing.T, environ map[string]string) config.App {
	t.Helper()
	var cfg config.App
	require.NoError(t, config.Parse(&cfg, environ))
	return cfg
}

func TestAppDefaults(t *testing.T) {
	t.Parallel()

	cfg := parseApp(t, map[string]string{})

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "media", cfg.Media.DefaultFolder)
	assert.Equal(t, "storage", cfg.Media.DefaultProvider)
	assert.Equal(t, 60*time.Second, cfg.Media.RequestTimeout)
	assert.Zero(t, cfg.Media.MaxFileSize)
	assert.Equal(t, int64(8<<20), cfg.S3.ChunkSize.Int64())
	assert.Equal(t, time.Hour, cfg.S3.PresignTTL)
	assert.Equal(t, int64(70<<20), cfg.Relay.MaxBodySize.Int64())
}

func TestAppFromEnvironment(t *testing.T) {
	t.Parallel()

	cfg := parseApp(t, map[string]string{
		"APP_ENV":                  "production",
		"HTTP_ADDR":                "127.0.0.1:9000",
		"MEDIA_MAX_FILE_SIZE":      "20MiB",
		"MEDIA_ALLOWED_MIME_TYPES": "image/png,image/jpeg",
		"MEDIA_ALLOWED_EXTENSIONS": "png,jpg",
		"S3_BUCKET":                "assets",
		"S3_FORCE_PATH_STYLE":      "true",
		"S3_CHUNK_SIZE":            "16MiB",
	})

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Media.AllowedMIMETypes)
	assert.True(t, cfg.S3.ForcePathStyle)
	assert.Equal(t, int64(16<<20), cfg.S3.ChunkSize.Int64())

	p, err := cfg.Media.Policy()
	require.NoError(t, err)
	assert.Equal(t, int64(20<<20), p.MaxSize)
	assert.Equal(t, []string{"png", "jpg"}, p.AllowedExtensions)
}

func TestAppRejectsBadSize(t *testing.T) {
	t.Parallel()

	var cfg config.App
	err := config.Parse(&cfg, map[string]string{"MEDIA_MAX_FILE_SIZE": "huge"})
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestMediaPolicyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_size: 2MiB\nallowed_extensions: [png]\n"), 0o600))

	p, err := config.Media{PolicyFile: path}.Policy()
	require.NoError(t, err)
	assert.Equal(t, int64(2<<20), p.MaxSize)
	assert.Equal(t, []string{"png"}, p.AllowedExtensions)
	assert.Equal(t, media.DefaultPolicy().AllowedMIMETypes, p.AllowedMIMETypes)

	p, err = config.Media{PolicyFile: path, MaxFileSize: 1024}.Policy()
	require.NoError(t, err)
	assert.Equal(t, int64(1024), p.MaxSize, "env overrides the file")

	_, err = config.Media{PolicyFile: filepath.Join(t.TempDir(), "missing.yaml")}.Policy()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAppUploader(t *testing.T) {
	t.Parallel()

	cfg := parseApp(t, map[string]string{
		"RELAY_URL":              "https://relay.example.com/upload",
		"LEGACY_HOST_URL":        "https://legacy.example.com/upload",
		"LEGACY_HOST_API_KEY":    "key",
		"MEDIA_DEFAULT_PROVIDER": "relay",
	})

	adapters, err := cfg.Adapters(context.Background(), logger.Discard())
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, media.ProviderLegacy, adapters[0].Provider())
	assert.Equal(t, media.ProviderRelay, adapters[1].Provider())

	u, err := cfg.Uploader(context.Background(), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, media.DefaultMaxSize, u.Policy().MaxSize)

	_, err = u.Upload(context.Background(), media.Request{Filename: "a.exe", MIMEType: "image/png", Body: []byte("x")})
	assert.ErrorIs(t, err, media.ErrValidation)
}

func TestAppUploaderErrors(t *testing.T) {
	t.Parallel()

	_, err := parseApp(t, map[string]string{"MEDIA_DEFAULT_PROVIDER": "ftp"}).Uploader(context.Background(), logger.Discard())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = parseApp(t, map[string]string{"MEDIA_DEFAULT_PROVIDER": "legacy"}).Uploader(context.Background(), logger.Discard())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = parseApp(t, map[string]string{"RELAY_URL": "::bad"}).Uploader(context.Background(), logger.Discard())
	assert.ErrorIs(t, err, media.ErrInvalidConfig)
}

func TestAppLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := config.App{Env: "production", ServiceName: "mediarelay", LogLevel: "warn"}.Logger(logger.WithOutput(&buf))

	log.Info("dropped")
	log.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"service":"mediarelay"`)
}
