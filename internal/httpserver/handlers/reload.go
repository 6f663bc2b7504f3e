package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
)

type reloadResponse struct {
	Triggered []string `json:"triggered"`
}

// Reload asks every poller to fetch its page now. Triggers are coalesced,
// so repeated calls never queue more than one poll per endpoint.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Fleet.Trigger()

		resp := reloadResponse{Triggered: []string{}}
		for _, p := range d.Fleet.Pollers() {
			resp.Triggered = append(resp.Triggered, p.Name())
		}
		d.Logger.Info("manual reload triggered via endpoint",
			logger.String("remote_ip", r.RemoteAddr),
			logger.Int("endpoints", len(resp.Triggered)))

		writeJSON(w, http.StatusAccepted, resp)
	}
}
