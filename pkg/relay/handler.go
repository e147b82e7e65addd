package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/media"
	"github.com/dmitrymomot/mediakit/pkg/ratelimiter"
	"github.com/dmitrymomot/mediakit/pkg/requestid"
)

// Handler accepts browser uploads and re-posts them to the upstream host
// with the server-held API key. It is safe for concurrent use.
type Handler struct {
	cfg      Config
	client   *http.Client
	logger   *slog.Logger
	observer media.Observer
	limiter  *ratelimiter.Limiter
}

// New validates cfg and returns a Handler.
func New(cfg Config, opts ...Option) (*Handler, error) {
	if cfg.UpstreamURL == "" {
		return nil, fmt.Errorf("%w: upstream URL is required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(cfg.UpstreamURL); err != nil {
		return nil, fmt.Errorf("%w: upstream URL: %v", ErrInvalidConfig, err)
	}

	h := &Handler{cfg: cfg}
	defaults(h)
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes mounts POST /upload.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.limiter != nil {
		r.Use(ratelimiter.Middleware(h.limiter, ratelimiter.ByClientIP, h.rateLimited))
	}
	r.Post("/upload", h.Upload)
	return r
}

func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, d ratelimiter.Decision) {
	h.logger.InfoContext(r.Context(), "relay upload throttled", slog.Time("reset_at", d.ResetAt))
	h.record(0, 0, media.ErrRateLimit)
	fail(w, http.StatusTooManyRequests, string(media.KindRateLimit), "too many uploads, retry later")
}

// Ready reports whether uploads can be forwarded.
func (h *Handler) Ready(context.Context) error {
	if h.cfg.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// Upload handles one multipart upload with the file in field "image" and
// an optional "name". The image may be a file part or base64 text.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	if h.cfg.APIKey == "" {
		h.logger.ErrorContext(ctx, "relay upload rejected", logger.Error(ErrNoAPIKey))
		fail(w, http.StatusInternalServerError, CodeNoAPIKey, "image host is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	source, size, err := readImage(r)
	if err != nil {
		h.rejectInput(ctx, w, err)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))

	img, err := h.forward(ctx, source, name)
	h.record(time.Since(start), size, err)
	if err != nil {
		if ctx.Err() != nil {
			h.logger.InfoContext(ctx, "relay upload abandoned by client", logger.Error(err))
			return
		}
		e := media.Normalize(media.ProviderRelay, err)
		h.logger.WarnContext(ctx, "relay upload failed",
			logger.Kind(e.Kind),
			slog.String("raw_code", e.RawCode),
			logger.Error(e),
		)
		fail(w, statusFor(e.Kind), string(e.Kind), e.Message)
		return
	}

	h.logger.InfoContext(ctx, "relay upload completed",
		slog.String("id", img.ID),
		logger.Size(size),
		logger.Duration(time.Since(start)),
	)
	render(w, http.StatusOK, media.RelayResponse{Success: true, Data: img})
}

// input errors carry their own status.
type inputError struct {
	status int
	kind   media.ErrorKind
	msg    string
}

func (e *inputError) Error() string { return e.msg }

// readImage returns the upload as base64 text and its decoded size.
func readImage(r *http.Request) (string, int64, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", 0, &inputError{http.StatusRequestEntityTooLarge, media.KindFileTooLarge,
				fmt.Sprintf("request exceeds %d bytes", tooLarge.Limit)}
		}
		return "", 0, &inputError{http.StatusBadRequest, media.KindNoFile, "expected a multipart form with an image field"}
	}

	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", 0, &inputError{http.StatusBadRequest, media.KindNoFile, "failed to read the image part"}
		}
		if len(data) == 0 {
			return "", 0, &inputError{http.StatusBadRequest, media.KindNoFile, "image part is empty"}
		}
		return base64.StdEncoding.EncodeToString(data), int64(len(data)), nil
	}

	text := stripDataURI(strings.TrimSpace(r.FormValue("image")))
	if text == "" {
		return "", 0, &inputError{http.StatusBadRequest, media.KindNoFile, "no image attached"}
	}
	n, err := decodedLen(text)
	if err != nil {
		return "", 0, &inputError{http.StatusBadRequest, media.KindValidation, "image is not valid base64"}
	}
	return text, n, nil
}

// stripDataURI drops a "data:image/png;base64," prefix.
func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return ""
}

func decodedLen(s string) (int64, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (h *Handler) rejectInput(ctx context.Context, w http.ResponseWriter, err error) {
	var in *inputError
	if !errors.As(err, &in) {
		in = &inputError{http.StatusBadRequest, media.KindNoFile, err.Error()}
	}
	h.logger.InfoContext(ctx, "relay upload rejected", logger.Kind(in.kind), logger.Error(err))
	fail(w, in.status, string(in.kind), in.msg)
}

// forward posts the image to the upstream host and parses its reply.
func (h *Handler) forward(ctx context.Context, source, name string) (*media.HostImage, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fields := [][2]string{
		{"key", h.cfg.APIKey},
		{"action", "upload"},
		{"format", "json"},
		{"source", source},
	}
	if name != "" {
		fields = append(fields, [2]string{"name", name})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, h.cfg.UpstreamURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	requestid.SetHeader(ctx, req.Header)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &media.Error{
				Kind:    media.KindTimeout,
				Message: fmt.Sprintf("image host did not answer within %s", h.cfg.Timeout),
				Err:     err,
			}
		}
		return nil, &media.Error{Kind: media.KindUploadFailed, Message: "image host is unreachable", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponse))
	if err != nil {
		return nil, &media.Error{Kind: media.KindUploadFailed, Message: "failed to read the image host response", Err: err}
	}
	return media.ParseHostResponse(media.ProviderRelay, resp.StatusCode, data)
}

func (h *Handler) record(d time.Duration, size int64, err error) {
	if h.observer == nil {
		return
	}
	if err != nil {
		size = 0
	}
	h.observer.RecordUpload(media.ProviderRelay, d, size, err)
}

// statusFor maps a normalized upstream failure to the relay's own status.
func statusFor(k media.ErrorKind) int {
	switch k {
	case media.KindUnauthorized:
		return http.StatusUnauthorized
	case media.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case media.KindRateLimit:
		return http.StatusTooManyRequests
	case media.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
