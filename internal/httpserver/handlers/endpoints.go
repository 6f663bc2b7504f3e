package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
	"github.com/MrSnakeDoc/balmgr/internal/scheduler"
)

// Endpoints lists every configured balancer-manager and its poll state.
func Endpoints(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Fleet.Statuses())
	}
}

// SourceHeader marks responses served from published snapshots rather
// than the live model.
const SourceHeader = "X-Balmgr-Source"

// Clusters returns the live model of one endpoint. Until its first poll
// succeeds, the clusters published to Redis by an earlier run are served.
func Clusters(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := poller(w, r, d)
		if !ok {
			return
		}
		view := p.Client().Model().View()
		if !view.Timestamp.IsZero() || d.Snapshots == nil {
			writeJSON(w, http.StatusOK, view)
			return
		}

		clusters, err := d.Snapshots.GetClusters(r.Context(), p.Name())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.Header().Set(SourceHeader, "snapshot")
		writeJSON(w, http.StatusOK, domain.View{Clusters: clusters})
	}
}

// Cluster returns one cluster of one endpoint, with the same snapshot
// fallback as Clusters.
func Cluster(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := poller(w, r, d)
		if !ok {
			return
		}
		name := chi.URLParam(r, "cluster")
		view := p.Client().Model().View()

		if view.Timestamp.IsZero() && d.Snapshots != nil {
			c, err := d.Snapshots.GetCluster(r.Context(), p.Name(), name)
			var nf *domain.NotFoundError
			switch {
			case errors.As(err, &nf):
				writeError(w, http.StatusNotFound, err)
			case err != nil:
				writeError(w, http.StatusServiceUnavailable, err)
			default:
				w.Header().Set(SourceHeader, "snapshot")
				writeJSON(w, http.StatusOK, c)
			}
			return
		}

		for _, c := range view.Clusters {
			if c.Name == name {
				writeJSON(w, http.StatusOK, c)
				return
			}
		}
		writeError(w, http.StatusNotFound, &domain.NotFoundError{Kind: "cluster", Name: name})
	}
}

// poller resolves the {endpoint} URL parameter, answering 404 itself.
func poller(w http.ResponseWriter, r *http.Request, d deps.Deps) (*scheduler.Poller, bool) {
	name := chi.URLParam(r, "endpoint")
	p, ok := d.Fleet.Poller(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("endpoint not found: %s", name))
		return nil, false
	}
	return p, true
}

// Changes returns the reconcile journal of one endpoint, newest first.
func Changes(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := poller(w, r, d)
		if !ok {
			return
		}
		if d.Index == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("change journal disabled"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"endpoint":     p.Name(),
			"last_publish": d.Index.GetLastPublish(p.Name()),
			"changes":      d.Index.Changes(p.Name()),
		})
	}
}
