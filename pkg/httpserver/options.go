package httpserver

import (
	"log/slog"
	"time"
)

// Option configures the Server.
type Option func(*options)

type options struct {
	addr              string
	readTimeout       time.Duration
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
}

// WithAddr sets the listen address. Port 0 picks a free port.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("WithAddr: addr cannot be empty")
	}
	return func(o *options) { o.addr = addr }
}

func WithReadTimeout(d time.Duration) Option {
	mustPositive("WithReadTimeout", d)
	return func(o *options) { o.readTimeout = d }
}

func WithReadHeaderTimeout(d time.Duration) Option {
	mustPositive("WithReadHeaderTimeout", d)
	return func(o *options) { o.readHeaderTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	mustPositive("WithWriteTimeout", d)
	return func(o *options) { o.writeTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	mustPositive("WithIdleTimeout", d)
	return func(o *options) { o.idleTimeout = d }
}

// WithShutdownTimeout bounds how long in-flight requests may finish.
func WithShutdownTimeout(d time.Duration) Option {
	mustPositive("WithShutdownTimeout", d)
	return func(o *options) { o.shutdownTimeout = d }
}

// WithLogger sets the lifecycle logger. Nil keeps the discarding default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func mustPositive(name string, d time.Duration) {
	if d <= 0 {
		panic(name + ": duration must be > 0")
	}
}
