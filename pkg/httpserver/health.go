package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/mediakit/pkg/logger"
)

// Check is a named readiness dependency.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// HealthStatus is the JSON body written by Health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

const checkTimeout = 5 * time.Second

// Health returns a probe handler. Without checks it reports liveness.
// With checks it runs each in order and answers 503 if any fails.
func Health(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		body := HealthStatus{Status: "ok"}
		code := http.StatusOK

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			body.Checks = make(map[string]string, len(checks))
			for _, c := range checks {
				if err := c.Fn(ctx); err != nil {
					log.ErrorContext(ctx, "readiness check failed", logger.Component(c.Name), logger.Error(err))
					body.Checks[c.Name] = err.Error()
					body.Status = "unavailable"
					code = http.StatusServiceUnavailable
					continue
				}
				body.Checks[c.Name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
