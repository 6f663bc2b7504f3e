package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
)

const maxEditBody = 64 << 10

type editBody struct {
	Statuses   map[string]bool `json:"statuses"`
	Factor     *float64        `json:"factor,omitempty"`
	LBSet      *int            `json:"lbset,omitempty"`
	RouteRedir *string         `json:"route_redir,omitempty"`
	Force      bool            `json:"force"`
}

func decodeEdit(w http.ResponseWriter, r *http.Request) (editBody, map[domain.StatusName]bool, error) {
	var body editBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEditBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return body, nil, fmt.Errorf("invalid request body: %w", err)
	}

	statuses := make(map[domain.StatusName]bool, len(body.Statuses))
	for raw, v := range body.Statuses {
		name, err := domain.ParseStatusName(raw)
		if err != nil {
			return body, nil, err
		}
		statuses[name] = v
	}
	return body, statuses, nil
}

// EditRoute changes the statuses and settings of one route and returns the
// route as the balancer-manager reports it afterwards.
func EditRoute(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := poller(w, r, d)
		if !ok {
			return
		}
		body, statuses, err := decodeEdit(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		req := balancer.EditRequest{
			Cluster:    chi.URLParam(r, "cluster"),
			Route:      chi.URLParam(r, "route"),
			Statuses:   statuses,
			Factor:     body.Factor,
			LBSet:      body.LBSet,
			RouteRedir: body.RouteRedir,
			Force:      body.Force,
		}
		if err := p.Edit(r.Context(), req); err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		var view domain.RouteView
		bm := p.Client().Model()
		bm.RLocked(func() {
			var route *domain.Route
			if route, err = bm.Route(req.Cluster, req.Route); err == nil {
				view = route.View()
			}
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// EditLBSet applies one status change to every route of an lbset.
func EditLBSet(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := poller(w, r, d)
		if !ok {
			return
		}
		lbset, err := strconv.Atoi(chi.URLParam(r, "lbset"))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid lbset: %w", err))
			return
		}
		body, statuses, err := decodeEdit(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if body.Factor != nil || body.LBSet != nil || body.RouteRedir != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("lbset edits only change statuses"))
			return
		}

		cluster := chi.URLParam(r, "cluster")
		if err := p.EditLBSet(r.Context(), cluster, lbset, balancer.FanOut{Statuses: statuses, Force: body.Force}); err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		for _, c := range p.Client().Model().View().Clusters {
			if c.Name == cluster {
				writeJSON(w, http.StatusOK, c)
				return
			}
		}
		writeError(w, http.StatusNotFound, &domain.NotFoundError{Kind: "cluster", Name: cluster})
	}
}
