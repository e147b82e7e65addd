// Command mediarelay serves the relay upload endpoint that keeps the image
// host API key on the server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/mediakit/pkg/clientip"
	"github.com/dmitrymomot/mediakit/pkg/config"
	"github.com/dmitrymomot/mediakit/pkg/httpserver"
	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/media"
	"github.com/dmitrymomot/mediakit/pkg/ratelimiter"
	"github.com/dmitrymomot/mediakit/pkg/relay"
	"github.com/dmitrymomot/mediakit/pkg/requestid"
)

func main() {
	var cfg config.App
	config.MustLoad(&cfg)

	log := cfg.Logger(logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()))
	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("mediarelay stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, log *slog.Logger) error {
	r, cleanup, err := newRouter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))
	return srv.Run(ctx, r)
}

// newRouter wires the relay handler, probes and metrics. cleanup releases
// background resources once the server has stopped.
func newRouter(ctx context.Context, cfg config.App, log *slog.Logger) (http.Handler, func(), error) {
	cleanup := func() {}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	observer, err := media.NewPrometheusObserver("mediarelay", reg)
	if err != nil {
		return nil, nil, err
	}

	opts := []relay.Option{
		relay.WithLogger(log.With(logger.Component("relay"))),
		relay.WithObserver(observer),
	}
	if cfg.Relay.RateLimitPerMinute > 0 {
		limiter, err := ratelimiter.New(ratelimiter.Config{
			Burst:    max(cfg.Relay.RateLimitBurst, 1),
			Rate:     cfg.Relay.RateLimitPerMinute,
			Interval: time.Minute,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup = limiter.Close
		opts = append(opts, relay.WithRateLimit(limiter))
	}

	h, err := relay.New(relay.Config{
		UpstreamURL: cfg.Relay.UpstreamURL,
		APIKey:      cfg.Relay.UpstreamAPIKey,
		MaxBodySize: cfg.Relay.MaxBodySize.Int64(),
		Timeout:     cfg.Media.RequestTimeout,
	}, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if h.Ready(ctx) != nil {
		log.WarnContext(ctx, "RELAY_UPSTREAM_API_KEY is empty, uploads will answer NO_API_KEY")
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.Middleware(cfg.Relay.TrustProxyHeaders), middleware.Recoverer)
	r.Get("/healthz", httpserver.Health(log))
	r.Get("/readyz", httpserver.Health(log, httpserver.Check{Name: "upstream_api_key", Fn: h.Ready}))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", h.Routes())
	return r, cleanup, nil
}
