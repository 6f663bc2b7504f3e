package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
	Count  *int   `json:"count,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra summarises the health of the poll fleet, the Redis publisher and
// the change journal.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"endpoints": checkEndpoints(d),
			"redis":     checkRedis(r.Context(), d),
			"journal":   checkJournal(d),
		}
		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if ep, ok := components["endpoints"]; ok && !ep.OK {
		return "critical"
	}
	if rc, ok := components["redis"]; ok && !rc.OK && rc.Mode != "disabled" {
		return "degraded"
	}
	return "nominal"
}

func checkEndpoints(d deps.Deps) componentStatus {
	healthy := 0
	statuses := d.Fleet.Statuses()
	for _, s := range statuses {
		if s.LastError == "" && !s.LastSuccess.IsZero() {
			healthy++
		}
	}

	st := componentStatus{OK: len(statuses) > 0 && healthy == len(statuses), Count: &healthy}
	switch {
	case len(statuses) == 0:
		st.Error = "no endpoint configured"
	case healthy == 0:
		st.Error = "no endpoint reachable"
	case healthy < len(statuses):
		st.Mode = "partial"
		st.Impact = "some endpoints serve stale models"
	}
	return st
}

func checkJournal(d deps.Deps) componentStatus {
	if d.Index == nil {
		return componentStatus{OK: false, Mode: "disabled", Impact: "change-journal-disabled"}
	}
	n := d.Index.Count()
	return componentStatus{OK: true, Mode: "memory", Count: &n}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{OK: false, Mode: "disabled", Impact: "cluster-publishing-disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "cluster-publishing-failing",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
