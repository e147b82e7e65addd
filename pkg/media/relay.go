package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/dmitrymomot/mediakit/pkg/logger"
)

// RelayField is the multipart field carrying the image, shared with the relay endpoint.
const RelayField = "image"

// RelayAdapter sends files through the first-party relay endpoint so the host
// API key stays server-side. It is safe for concurrent use.
type RelayAdapter struct {
	endpoint string
	opts     *httpOptions
}

// NewRelayAdapter creates an adapter posting to the relay endpoint URL.
func NewRelayAdapter(endpoint string, opts ...HTTPOption) (*RelayAdapter, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: relay endpoint is required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("%w: relay endpoint: %v", ErrInvalidConfig, err)
	}
	return &RelayAdapter{endpoint: endpoint, opts: buildHTTPOptions(opts)}, nil
}

func (a *RelayAdapter) Provider() Provider { return ProviderRelay }

// Send base64-encodes the payload into the relay's single image field.
func (a *RelayAdapter) Send(ctx context.Context, p Payload) (*Result, error) {
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(p.Body)))
	base64.StdEncoding.Encode(encoded, p.Body)

	body, contentType, err := encodeForm(
		formField{name: RelayField, value: encoded},
		formField{name: "name", value: []byte(p.Name)},
	)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Provider: ProviderRelay, Message: "failed to encode form", Err: err}
	}

	status, data, err := postForm(ctx, a.opts, ProviderRelay, a.endpoint, body, contentType)
	if err != nil {
		a.opts.logger.WarnContext(ctx, "relay request failed", logger.Path(p.Path), logger.Error(err))
		return nil, err
	}

	img, err := decodeRelayResponse(status, data)
	if err != nil {
		a.opts.logger.WarnContext(ctx, "relay upload failed", logger.Path(p.Path), slog.Int("status", status), logger.Error(err))
		return nil, err
	}

	res := Succeeded(Result{
		Provider:     ProviderRelay,
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
	if img.MIMEType != "" {
		res.MIMEType = img.MIMEType
	}
	return &res, nil
}

// decodeRelayResponse reads the relay envelope. A relay running in pass-through
// mode returns the upstream body instead, which is decoded with ParseHostResponse.
func decodeRelayResponse(status int, data []byte) (*HostImage, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		kind := KindFromStatus(status)
		if kind == "" {
			kind = KindUploadFailed
		}
		return nil, &Error{Kind: kind, Provider: ProviderRelay, Message: "malformed relay response", RawCode: strconv.Itoa(status), Err: err}
	}

	raw, hasSuccess := probe["success"]
	if !hasSuccess || !isJSONBool(raw) {
		return ParseHostResponse(ProviderRelay, status, data)
	}

	var env RelayResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &Error{Kind: KindUploadFailed, Provider: ProviderRelay, Message: "malformed relay envelope", Err: err}
	}

	if !env.Success || status >= 300 {
		e := &Error{Kind: KindFromStatus(status), Provider: ProviderRelay, Message: "relay rejected the upload"}
		if e.Kind == "" {
			e.Kind = KindUploadFailed
		}
		if env.Error != nil {
			if k := KindFromCode(env.Error.Code); k != "" {
				e.Kind = k
			}
			e.RawCode = env.Error.Code
			if env.Error.Message != "" {
				e.Message = env.Error.Message
			}
		}
		return nil, e
	}

	if env.Data == nil {
		return nil, newError(KindNoURL, ProviderRelay, "relay reported success without image data")
	}
	img := *env.Data
	if img.DisplayURL == "" {
		img.DisplayURL = firstNonEmpty(img.URL, img.MediumURL, img.ThumbnailURL)
	}
	if img.DisplayURL == "" {
		return nil, newError(KindNoURL, ProviderRelay, "relay reported success but no image URL could be resolved")
	}
	return &img, nil
}

func isJSONBool(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return bytes.Equal(raw, []byte("true")) || bytes.Equal(raw, []byte("false"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
