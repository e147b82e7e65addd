package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/dmitrymomot/mediakit/pkg/logger"
)

// LegacyConfig configures the direct-upload image host.
type LegacyConfig struct {
	Endpoint string // e.g. https://api.imgbb.com/1/upload
	APIKey   string
}

// LegacyAdapter posts files straight to the legacy image host with a client-side key.
// It exists so previously uploaded references keep working; prefer the other providers
// for new uploads. It is safe for concurrent use.
type LegacyAdapter struct {
	endpoint string
	apiKey   string
	opts     *httpOptions
}

// NewLegacyAdapter creates the legacy host adapter.
func NewLegacyAdapter(cfg LegacyConfig, opts ...HTTPOption) (*LegacyAdapter, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: legacy host endpoint and API key are required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("%w: legacy host endpoint: %v", ErrInvalidConfig, err)
	}
	return &LegacyAdapter{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		opts:     buildHTTPOptions(opts),
	}, nil
}

func (a *LegacyAdapter) Provider() Provider { return ProviderLegacy }

// Send uploads the payload in a single multipart request.
// Every host-side failure is reported as KindUploadFailed.
func (a *LegacyAdapter) Send(ctx context.Context, p Payload) (*Result, error) {
	target, err := url.Parse(a.endpoint)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Provider: ProviderLegacy, Message: "invalid endpoint", Err: err}
	}
	q := target.Query()
	q.Set("key", a.apiKey)
	target.RawQuery = q.Encode()

	body, contentType, err := encodeForm(
		formField{name: "image", filename: p.Name, value: p.Body},
		formField{name: "name", value: []byte(baseName(p.Name))},
	)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Provider: ProviderLegacy, Message: "failed to encode form", Err: err}
	}

	status, data, err := postForm(ctx, a.opts, ProviderLegacy, target.String(), body, contentType)
	if err != nil {
		a.opts.logger.WarnContext(ctx, "legacy upload request failed",
			logger.Path(p.Path), logger.Error(err))
		return nil, err
	}

	img, err := ParseHostResponse(ProviderLegacy, status, data)
	if err != nil {
		e := Normalize(ProviderLegacy, err)
		if e.Kind != KindNoURL {
			cp := *e
			cp.Kind = KindUploadFailed
			if cp.RawCode == "" {
				cp.RawCode = strconv.Itoa(status)
			}
			e = &cp
		}
		a.opts.logger.WarnContext(ctx, "legacy host rejected upload",
			logger.Path(p.Path), slog.Int("status", status), logger.Error(e))
		return nil, e
	}

	res := Succeeded(Result{
		Provider:     ProviderLegacy,
		RemoteID:     img.ID,
		URL:          img.DisplayURL,
		ThumbnailURL: img.ThumbnailURL,
		MediumURL:    img.MediumURL,
		DeleteURL:    img.DeleteURL,
		Path:         p.Path,
		Size:         p.Size,
		MIMEType:     p.MIMEType,
		Width:        img.Width,
		Height:       img.Height,
	})
	if img.Size > 0 {
		res.Size = img.Size
	}
	return &res, nil
}

// baseName strips the extension from a generated filename.
func baseName(name string) string {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}
