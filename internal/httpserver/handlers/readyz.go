package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready   bool     `json:"ready"`
	Pending []string `json:"pending,omitempty"`
}

// Readyz is ready once every endpoint has been polled successfully.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{Ready: d.Fleet.Ready()}
		if !resp.Ready {
			for _, s := range d.Fleet.Statuses() {
				if s.LastSuccess.IsZero() {
					resp.Pending = append(resp.Pending, s.Endpoint)
				}
			}
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
