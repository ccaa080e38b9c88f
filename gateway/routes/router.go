package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ratevault/gateway/middleware"
)

// Options configures the gateway handler stack.
type Options struct {
	Engine    VaultEngine
	Logger    *slog.Logger
	RateLimit middleware.RateLimit
}

// NewHandler assembles the gateway router: vault operations under /vault,
// plus liveness and metrics endpoints.
func NewHandler(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(opts.Logger))
	r.Use(middleware.NewRateLimiter(opts.RateLimit).Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/vault", func(sub chi.Router) {
		newVaultRoutes(opts.Engine).mount(sub)
	})
	return r
}
