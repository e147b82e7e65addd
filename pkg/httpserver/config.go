package httpserver

import "time"

// Config is loaded from the environment by pkg/config.
type Config struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"60s"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	// WriteTimeout covers the upstream round trip of a relayed upload.
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"90s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// NewFromConfig creates a Server from cfg. Zero values keep the defaults;
// opts are applied after the config.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	all := make([]Option, 0, 6+len(opts))
	if cfg.Addr != "" {
		all = append(all, WithAddr(cfg.Addr))
	}
	if cfg.ReadTimeout > 0 {
		all = append(all, WithReadTimeout(cfg.ReadTimeout))
	}
	if cfg.ReadHeaderTimeout > 0 {
		all = append(all, WithReadHeaderTimeout(cfg.ReadHeaderTimeout))
	}
	if cfg.WriteTimeout > 0 {
		all = append(all, WithWriteTimeout(cfg.WriteTimeout))
	}
	if cfg.IdleTimeout > 0 {
		all = append(all, WithIdleTimeout(cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout > 0 {
		all = append(all, WithShutdownTimeout(cfg.ShutdownTimeout))
	}
	return New(append(all, opts...)...)
}
