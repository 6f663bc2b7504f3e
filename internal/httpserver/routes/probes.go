package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/mw"
	"github.com/MrSnakeDoc/balmgr/internal/metrics"
)

func init() { Register("probes", registerProbes) }

func registerProbes(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))
	r.Get("/readyz", handlers.Readyz(d))

	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Method("GET", "/metrics", metrics.Handler(d.Gatherer))
	guarded.Get("/infra", handlers.Infra(d))
}
