package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kesspos/kesspos/internal/observability"
	"github.com/kesspos/kesspos/internal/platform/httpx"
	"github.com/kesspos/kesspos/internal/pos"
)

// RouterConfig collects the dependencies mounted on the daemon router.
type RouterConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Handler *pos.Handler
}

// NewRouter assembles the daemon's HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  cfg.Logger,
		Config:  cfg.Config,
		Metrics: cfg.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	r.Route("/api", cfg.Handler.MountRoutes)

	return r
}
