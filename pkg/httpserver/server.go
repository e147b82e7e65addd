package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/mediakit/pkg/logger"
)

// Server serves one handler at a time and shuts down gracefully.
type Server struct {
	opts  options
	ready chan struct{}

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
	once sync.Once
}

// New returns a Server listening on :8080 unless configured otherwise.
func New(opts ...Option) *Server {
	o := options{
		addr:            ":8080",
		shutdownTimeout: 10 * time.Second,
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{opts: o, ready: make(chan struct{})}
}

// Ready is closed once the listener is open.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or "" before Ready.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Run listens and serves handler until ctx is canceled, a termination
// signal arrives or Shutdown is called. A nil handler serves 404s.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       s.opts.readTimeout,
		ReadHeaderTimeout: s.opts.readHeaderTimeout,
		WriteTimeout:      s.opts.writeTimeout,
		IdleTimeout:       s.opts.idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.opts.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.opts.logger.InfoContext(ctx, "http server started", slog.String("addr", ln.Addr().String()))
	close(s.ready)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-sigCtx.Done():
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.opts.logger.ErrorContext(ctx, "http server shutdown", logger.Error(err))
		}
		serveErr = <-errCh
	case serveErr = <-errCh:
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, serveErr)
	}
	s.opts.logger.InfoContext(ctx, "http server stopped")
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the shutdown timeout. Repeated calls and calls before Run are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	var err error
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(ctx)
	})
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrShutdown, err)
	}
	return nil
}
