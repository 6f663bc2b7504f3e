package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/mw"
)

func init() { Register("api", registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api", func(api chi.Router) {
		api.Get("/endpoints", handlers.Endpoints(d))
		api.Get("/endpoints/{endpoint}/clusters", handlers.Clusters(d))
		api.Get("/endpoints/{endpoint}/clusters/{cluster}", handlers.Cluster(d))
		api.Get("/endpoints/{endpoint}/changes", handlers.Changes(d))
		api.Get("/compliance", handlers.Compliance(d))

		// Mutations are restricted to the allow-list.
		api.Group(func(m chi.Router) {
			m.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
			m.Post("/reload", handlers.Reload(d))
			m.Post("/endpoints/{endpoint}/clusters/{cluster}/routes/{route}", handlers.EditRoute(d))
			m.Post("/endpoints/{endpoint}/clusters/{cluster}/lbsets/{lbset}", handlers.EditLBSet(d))
		})
	})
}
