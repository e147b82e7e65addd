package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/requestid"
)

// DefaultRequestTimeout bounds a whole legacy or relay request.
const DefaultRequestTimeout = 60 * time.Second

// maxResponseBytes caps how much of a host response is read.
const maxResponseBytes = 1 << 20

const userAgent = "mediakit/1.0"

// newHTTPClient mirrors the pooled client used for outbound hosts.
// The per-request deadline comes from the context, not from Client.Timeout.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// HTTPOption configures the HTTP-based adapters.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func buildHTTPOptions(opts []HTTPOption) *httpOptions {
	o := &httpOptions{
		timeout: DefaultRequestTimeout,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = newHTTPClient()
	}
	return o
}

// WithHTTPClient sets a custom HTTP client. Useful for proxies or testing.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(o *httpOptions) {
		if client != nil {
			o.client = client
		}
	}
}

// WithRequestTimeout overrides the 60 second bound on the entire request.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHTTPLogger sets the adapter logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(o *httpOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// formField is a single multipart field; file fields carry a filename.
type formField struct {
	name     string
	filename string
	value    []byte
}

func encodeForm(fields ...formField) (*bytes.Buffer, string, error) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for _, f := range fields {
		var (
			part io.Writer
			err  error
		)
		if f.filename != "" {
			part, err = w.CreateFormFile(f.name, f.filename)
		} else {
			part, err = w.CreateFormField(f.name)
		}
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// postForm performs one bounded multipart POST and returns status and body.
// Deadline and cancellation are reported as normalized errors.
func postForm(ctx context.Context, o *httpOptions, provider Provider, target string, body io.Reader, contentType string) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, body)
	if err != nil {
		return 0, nil, &Error{Kind: KindInternal, Provider: provider, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	requestid.SetHeader(ctx, req.Header)

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, nil, &Error{
				Kind:     KindTimeout,
				Provider: provider,
				Message:  fmt.Sprintf("request exceeded %s", o.timeout),
				Err:      err,
			}
		}
		return 0, nil, Normalize(provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		// The host may already hold the object at this point; nothing reconciles it.
		return resp.StatusCode, nil, Normalize(provider, err)
	}
	return resp.StatusCode, data, nil
}
