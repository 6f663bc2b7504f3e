package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/balmgr/internal/compliance"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
)

type complianceResponse struct {
	Compliant bool                          `json:"compliant"`
	Endpoints map[string]*compliance.Report `json:"endpoints"`
}

// Compliance returns the last report of every endpoint that has a profile.
// Endpoints not yet scored are listed with a null report.
func Compliance(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := complianceResponse{Compliant: true, Endpoints: map[string]*compliance.Report{}}
		configured := false

		for _, p := range d.Fleet.Pollers() {
			if p.Profile() == nil {
				continue
			}
			configured = true

			report, ok := p.Report()
			if !ok {
				resp.Compliant = false
				resp.Endpoints[p.Name()] = nil
				continue
			}
			resp.Compliant = resp.Compliant && report.Compliant
			resp.Endpoints[p.Name()] = &report
		}

		if !configured {
			writeError(w, http.StatusNotFound, errors.New("no compliance profile configured"))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
