// Package httptransport assembles the public HTTP surface: domain handlers,
// health endpoints, and the Prometheus scrape target.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"complyd/internal/platform/eventbus"
	"complyd/pkg/platform/httputil"
)

// HealthChecker is the slice of the bus the health endpoints need.
type HealthChecker interface {
	HealthCheck(ctx context.Context) eventbus.Health
	Stats() eventbus.Stats
}

// Registrar mounts a domain handler's routes onto the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires every public endpoint. Domain handlers carry their own
// middleware chains; only the operational endpoints live here, unauthenticated
// so orchestrators can probe without credentials.
func NewRouter(bus HealthChecker, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealthz(bus))
	r.Get("/readyz", handleReadyz(bus))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

// handleHealthz reports broker connectivity. Degraded still serves traffic,
// so only a fully unhealthy bus returns 503.
func handleHealthz(bus HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := bus.HealthCheck(r.Context())
		status := http.StatusOK
		if health.Status == eventbus.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, health)
	}
}

// handleReadyz is the cheap liveness companion: in-memory state only, no
// network round-trip, safe for aggressive probe intervals.
func handleReadyz(bus HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := bus.Stats()
		status := http.StatusOK
		if !stats.Connected {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, stats)
	}
}
