package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cacheEntry holds one parsed configuration type.
type cacheEntry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cache      sync.Map // reflect.Type -> *cacheEntry
	dotenvOnce sync.Once
)

// Load parses environment variables into v. The first call for a type
// reads ./.env if present; later calls for the same type return the cached
// copy, including a cached parse error.
//
//	var cfg config.App
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	// A missing .env is fine.
	dotenvOnce.Do(func() { _ = godotenv.Load() })

	key := reflect.TypeFor[T]()
	raw, _ := cache.LoadOrStore(key, &cacheEntry{})
	entry := raw.(*cacheEntry)
	entry.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			entry.err = errors.Join(ErrParsingConfig, err)
			return
		}
		entry.value = parsed
	})
	if entry.err != nil {
		return entry.err
	}
	*v = entry.value.(T)
	return nil
}

// MustLoad is Load that panics on failure. Use it in main only.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration %s: %v", reflect.TypeFor[T](), err))
	}
}

// Parse fills v from environ without touching the process environment,
// .env files or the cache.
func Parse[T any](v *T, environ map[string]string) error {
	if v == nil {
		return ErrNilPointer
	}
	if err := env.ParseWithOptions(v, env.Options{Environment: environ}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// LoadEnvFile reads variables from the given files into the process
// environment. Variables already set win. It disables the implicit ./.env
// read, so call it before the first Load.
func LoadEnvFile(paths ...string) error {
	dotenvOnce.Do(func() {})
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrLoadEnvFile, err)
	}
	return nil
}

// ResetCache forgets every loaded type so the next Load parses again.
func ResetCache() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
}
