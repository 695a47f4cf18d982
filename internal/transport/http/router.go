package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	claimhandler "claimgate/internal/claim/handler"
	"claimgate/internal/platform/metrics"
	producthandler "claimgate/internal/product/handler"
	"claimgate/pkg/platform/httputil"
	"claimgate/pkg/platform/middleware/auth"
	"claimgate/pkg/platform/middleware/device"
	"claimgate/pkg/platform/middleware/request"
	"claimgate/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the handlers and cross-cutting pieces the router mounts.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Sessions auth.SessionValidator
	Claim    *claimhandler.Handler
	Product  *producthandler.Handler
	Health   map[string]HealthCheck
}

// NewRouter wires all public endpoints under /api/v1 plus health and metrics.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recover(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(requesttime.Middleware)
	r.Use(device.Middleware)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Get("/healthz", healthHandler(d.Health))

	r.Route("/api/v1", func(r chi.Router) {
		d.Claim.RegisterPublic(r)
		d.Product.Register(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(d.Sessions, d.Logger))
			d.Claim.Register(r)
		})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
	}
}
