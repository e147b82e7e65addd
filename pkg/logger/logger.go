package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents logger output format.
type Format string

const (
	// FormatJSON outputs structured logs for log aggregation.
	FormatJSON Format = "json"
	// FormatText outputs human-readable logs for local runs and the CLI.
	FormatText Format = "text"
)

// Option configures logger creation.
type Option func(*config)

type config struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithLevelName parses names such as "debug" or "WARN".
// Panics for unknown names so a bad LOG_LEVEL stops startup.
func WithLevelName(name string) Option {
	if name == "" {
		return func(*config) {}
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		panic(fmt.Errorf("invalid log level %q: %w", name, err))
	}
	return WithLevel(l)
}

// WithFormat sets output format. Panics for unknown formats.
func WithFormat(f Format) Option {
	switch f {
	case FormatJSON, FormatText:
	default:
		panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
	}
	return func(c *config) { c.format = f }
}

// WithOutput sets the destination, ignoring nil writers.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

// WithContextExtractors registers functions that add attributes from the
// record's context, such as the request ID.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies presets: production and staging log JSON at info,
// anything else logs text at debug. Both tag records with service and env.
func WithEnvironment(env, service string) Option {
	return func(c *config) {
		switch strings.ToLower(env) {
		case "production", "prod", "staging", "stage":
			c.level = slog.LevelInfo
			c.format = FormatJSON
		default:
			env = "development"
			c.level = slog.LevelDebug
			c.format = FormatText
		}
		if service != "" {
			c.attrs = append(c.attrs, slog.String("service", service))
		}
		c.attrs = append(c.attrs, slog.String("env", strings.ToLower(env)))
	}
}

// New creates a *slog.Logger. Defaults to JSON at info level on stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.level}
	var h slog.Handler
	if cfg.format == FormatText {
		h = slog.NewTextHandler(cfg.output, handlerOpts)
	} else {
		h = slog.NewJSONHandler(cfg.output, handlerOpts)
	}
	if len(cfg.attrs) > 0 {
		h = h.WithAttrs(cfg.attrs)
	}
	if len(cfg.extractors) > 0 {
		h = &contextHandler{next: h, extractors: cfg.extractors}
	}
	return slog.New(h)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ContextExtractor pulls one attribute out of a context.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// contextHandler adds extracted attributes on every Handle call.
type contextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}
