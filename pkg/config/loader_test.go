package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mediakit/pkg/config"
)

type cachedConfig struct {
	Value string `env:"MEDIAKIT_TEST_CACHED" envDefault:"default"`
}

type requiredConfig struct {
	Value string `env:"MEDIAKIT_TEST_REQUIRED,required"`
}

type fileConfig struct {
	Name  string   `env:"MEDIAKIT_TEST_FILE_NAME"`
	Types []string `env:"MEDIAKIT_TEST_FILE_TYPES" envSeparator:","`
}

func TestLoadCachesPerType(t *testing.T) {
	t.Setenv("MEDIAKIT_TEST_CACHED", "first")
	config.ResetCache()

	var cfg cachedConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "first", cfg.Value)

	t.Setenv("MEDIAKIT_TEST_CACHED", "second")
	var again cachedConfig
	require.NoError(t, config.Load(&again))
	assert.Equal(t, "first", again.Value, "cached value expected")

	config.ResetCache()
	require.NoError(t, config.Load(&again))
	assert.Equal(t, "second", again.Value)
}

func TestLoadErrors(t *testing.T) {
	config.ResetCache()

	assert.ErrorIs(t, config.Load[cachedConfig](nil), config.ErrNilPointer)

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	assert.Panics(t, func() { config.MustLoad(&cfg) })
}

func TestParseUsesOnlyTheGivenMap(t *testing.T) {
	t.Setenv("MEDIAKIT_TEST_CACHED", "from-process")

	var cfg cachedConfig
	require.NoError(t, config.Parse(&cfg, map[string]string{}))
	assert.Equal(t, "default", cfg.Value)

	require.NoError(t, config.Parse(&cfg, map[string]string{"MEDIAKIT_TEST_CACHED": "from-map"}))
	assert.Equal(t, "from-map", cfg.Value)
}

func TestLoadEnvFile(t *testing.T) {
	config.ResetCache()
	path := filepath.Join(t.TempDir(), ".env.test")
	require.NoError(t, os.WriteFile(path, []byte("MEDIAKIT_TEST_FILE_NAME=\"from file\"\nMEDIAKIT_TEST_FILE_TYPES=png,jpg\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("MEDIAKIT_TEST_FILE_NAME")
		os.Unsetenv("MEDIAKIT_TEST_FILE_TYPES")
	})

	require.NoError(t, config.LoadEnvFile(path))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "from file", cfg.Name)
	assert.Equal(t, []string{"png", "jpg"}, cfg.Types)

	err := config.LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, config.ErrLoadEnvFile)
}

func TestByteSize(t *testing.T) {
	t.Parallel()

	var b config.ByteSize
	require.NoError(t, b.UnmarshalText([]byte("8MiB")))
	assert.Equal(t, int64(8<<20), b.Int64())
	assert.Equal(t, "8MiB", b.String())

	require.NoError(t, b.UnmarshalText([]byte("1024")))
	assert.Equal(t, int64(1024), b.Int64())

	assert.Error(t, b.UnmarshalText([]byte("lots")))
}
