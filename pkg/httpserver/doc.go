// Package httpserver runs an http.Handler with configured timeouts, signal
// aware graceful shutdown and a JSON health endpoint.
//
// Run listens first and then serves, so Addr reports the bound address even
// when the configured one uses port 0. Ready is closed once the listener is
// open. Run returns when the context is canceled, when SIGINT or SIGTERM
// arrives, or when Shutdown is called.
//
// # Usage
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.Health(log, httpserver.Check{Name: "upstream", Fn: ping}))
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// # Errors
//
// Listen and serve failures are joined with ErrStart, shutdown failures with
// ErrShutdown. A second Run on the same Server returns ErrAlreadyRunning.
package httpserver
