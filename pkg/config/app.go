package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/mediakit/pkg/httpserver"
	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/media"
)

// App is the full process configuration shared by the binaries.
type App struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"mediakit"`

	HTTP   httpserver.Config
	Media  Media
	Legacy Legacy
	Relay  Relay
	S3     S3
}

// Media holds the orchestrator settings.
type Media struct {
	// MaxFileSize overrides the policy ceiling; zero keeps the policy value.
	MaxFileSize       ByteSize      `env:"MEDIA_MAX_FILE_SIZE"`
	AllowedMIMETypes  []string      `env:"MEDIA_ALLOWED_MIME_TYPES" envSeparator:","`
	AllowedExtensions []string      `env:"MEDIA_ALLOWED_EXTENSIONS" envSeparator:","`
	PolicyFile        string        `env:"MEDIA_POLICY_FILE"`
	DefaultFolder     string        `env:"MEDIA_DEFAULT_FOLDER" envDefault:"media"`
	DefaultProvider   string        `env:"MEDIA_DEFAULT_PROVIDER" envDefault:"storage"`
	RequestTimeout    time.Duration `env:"MEDIA_REQUEST_TIMEOUT" envDefault:"60s"`
}

// Legacy configures the direct image host. Empty URL disables it.
type Legacy struct {
	URL    string `env:"LEGACY_HOST_URL"`
	APIKey string `env:"LEGACY_HOST_API_KEY"`
}

// Relay configures both sides of the relay: URL is what clients call,
// the upstream fields are only read by the relay server.
type Relay struct {
	URL            string   `env:"RELAY_URL"`
	UpstreamURL    string   `env:"RELAY_UPSTREAM_URL" envDefault:"https://api.imgbb.com/1/upload"`
	UpstreamAPIKey string   `env:"RELAY_UPSTREAM_API_KEY"`
	MaxBodySize    ByteSize `env:"RELAY_MAX_BODY_SIZE" envDefault:"70MiB"`
	// RateLimitPerMinute is uploads per client per minute; zero disables limiting.
	RateLimitPerMinute int  `env:"RELAY_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	RateLimitBurst     int  `env:"RELAY_RATE_LIMIT_BURST" envDefault:"10"`
	TrustProxyHeaders  bool `env:"RELAY_TRUST_PROXY_HEADERS"`
}

// S3 configures the object-storage adapter. Empty bucket disables it.
type S3 struct {
	Bucket         string        `env:"S3_BUCKET"`
	Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKeyID    string        `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string        `env:"S3_SECRET_KEY"`
	Endpoint       string        `env:"S3_ENDPOINT"`
	BaseURL        string        `env:"S3_BASE_URL"`
	ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE"`
	ChunkSize      ByteSize      `env:"S3_CHUNK_SIZE" envDefault:"8MiB"`
	PresignTTL     time.Duration `env:"S3_PRESIGN_TTL" envDefault:"1h"`
}

// Logger builds the process logger from APP_ENV, SERVICE_NAME and LOG_LEVEL.
func (c App) Logger(opts ...logger.Option) *slog.Logger {
	base := []logger.Option{
		logger.WithEnvironment(c.Env, c.ServiceName),
		logger.WithLevelName(c.LogLevel),
	}
	return logger.New(append(base, opts...)...)
}

// Policy reads MEDIA_POLICY_FILE when set and applies the env overrides on top.
func (m Media) Policy() (media.Policy, error) {
	p := media.DefaultPolicy()
	if m.PolicyFile != "" {
		f, err := os.Open(m.PolicyFile)
		if err != nil {
			return media.Policy{}, fmt.Errorf("%w: policy file: %v", ErrInvalidConfig, err)
		}
		defer f.Close()
		if p, err = media.LoadPolicy(f); err != nil {
			return media.Policy{}, err
		}
	}
	if m.MaxFileSize > 0 {
		p.MaxSize = m.MaxFileSize.Int64()
	}
	if len(m.AllowedMIMETypes) > 0 {
		p.AllowedMIMETypes = m.AllowedMIMETypes
	}
	if len(m.AllowedExtensions) > 0 {
		p.AllowedExtensions = m.AllowedExtensions
	}
	return p, nil
}

// Adapters creates one adapter per configured provider.
func (c App) Adapters(ctx context.Context, log *slog.Logger) ([]media.Adapter, error) {
	httpOpts := []media.HTTPOption{media.WithHTTPLogger(log)}
	if c.Media.RequestTimeout > 0 {
		httpOpts = append(httpOpts, media.WithRequestTimeout(c.Media.RequestTimeout))
	}

	var adapters []media.Adapter
	if c.Legacy.URL != "" {
		a, err := media.NewLegacyAdapter(media.LegacyConfig{Endpoint: c.Legacy.URL, APIKey: c.Legacy.APIKey}, httpOpts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if c.Relay.URL != "" {
		a, err := media.NewRelayAdapter(c.Relay.URL, httpOpts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if c.S3.Bucket != "" {
		a, err := media.NewS3Adapter(ctx, media.S3Config{
			Bucket:         c.S3.Bucket,
			Region:         c.S3.Region,
			AccessKeyID:    c.S3.AccessKeyID,
			SecretKey:      c.S3.SecretKey,
			Endpoint:       c.S3.Endpoint,
			BaseURL:        c.S3.BaseURL,
			ForcePathStyle: c.S3.ForcePathStyle,
			ChunkSize:      c.S3.ChunkSize.Int64(),
			PresignTTL:     c.S3.PresignTTL,
		}, media.WithS3Logger(log))
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// Uploader wires policy, adapters and defaults into a media.Uploader.
// extra options are applied last and may register more adapters.
func (c App) Uploader(ctx context.Context, log *slog.Logger, extra ...media.Option) (*media.Uploader, error) {
	provider, ok := media.ParseProvider(c.Media.DefaultProvider)
	if !ok {
		return nil, fmt.Errorf("%w: unknown default provider %q", ErrInvalidConfig, c.Media.DefaultProvider)
	}
	if provider == media.ProviderLegacy {
		return nil, errors.Join(ErrInvalidConfig, errors.New("the legacy host cannot be the default provider"))
	}

	policy, err := c.Media.Policy()
	if err != nil {
		return nil, err
	}
	adapters, err := c.Adapters(ctx, log)
	if err != nil {
		return nil, err
	}

	opts := []media.Option{
		media.WithPolicy(policy),
		media.WithLogger(log),
		media.WithDefaultFolder(c.Media.DefaultFolder),
		media.WithDefaultProvider(provider),
	}
	for _, a := range adapters {
		opts = append(opts, media.WithAdapter(a))
	}
	return media.New(append(opts, extra...)...), nil
}
