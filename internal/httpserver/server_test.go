package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/compliance"
	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
	"github.com/MrSnakeDoc/balmgr/internal/index"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
	"github.com/MrSnakeDoc/balmgr/internal/metrics"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
	"github.com/MrSnakeDoc/balmgr/internal/scheduler"
	"github.com/MrSnakeDoc/balmgr/internal/testutil/fakebm"
)

type testEnv struct {
	handler http.Handler
	deps    deps.Deps
	fleet   *scheduler.Fleet
	front   *fakebm.Server
	legacy  *fakebm.Server
}

func newTestEnv(t *testing.T, profile compliance.Profile, cidrs ...string) *testEnv {
	t.Helper()

	front := fakebm.New("2.4.41",
		fakebm.NewCluster("app", fakebm.NewRoute("a1", 0), fakebm.NewRoute("a2", 0), fakebm.NewRoute("a3", 1)),
		fakebm.NewCluster("solo", fakebm.NewRoute("s1", 0)),
	)
	t.Cleanup(front.Close)
	legacy := fakebm.New("2.2.15", fakebm.NewCluster("old", fakebm.NewRoute("o1", 0), fakebm.NewRoute("o2", 0)))
	t.Cleanup(legacy.Close)

	m := metrics.New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	idx := index.NewMemoryIndex(10)
	var pollers []*scheduler.Poller
	for name, srv := range map[string]*fakebm.Server{"front": front, "legacy": legacy} {
		c, err := balancer.New(srv.URL(), balancer.WithDoer(srv.Client()), balancer.WithName(name))
		require.NoError(t, err)
		opts := scheduler.PollerOptions{}
		if name == "front" {
			opts.Profile = profile
		}
		pollers = append(pollers, scheduler.NewPoller(c, idx, m, nil, opts))
	}
	fleet, err := scheduler.NewFleet(nil, pollers...)
	require.NoError(t, err)

	d := deps.Deps{
		Logger:       logger.NewNop(),
		StartTime:    time.Now(),
		Version:      "test",
		AllowedCIDRS: cidrs,
		Fleet:        fleet,
		Gatherer:     reg,
		Index:        idx,
	}
	return &testEnv{
		handler: NewRouter(d.Logger, d, 5*time.Second),
		deps:    d,
		fleet:   fleet,
		front:   front,
		legacy:  legacy,
	}
}

// withSnapshots rebuilds the router with a snapshot reader.
func (e *testEnv) withSnapshots(r deps.SnapshotReader) {
	e.deps.Snapshots = r
	e.handler = NewRouter(e.deps.Logger, e.deps, 5*time.Second)
}

type snapshotReader struct {
	clusters map[string][]domain.ClusterView
	err      error
}

func (s *snapshotReader) GetCluster(_ context.Context, endpoint, name string) (*domain.ClusterView, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.clusters[endpoint] {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, &domain.NotFoundError{Kind: "cluster", Name: name}
}

func (s *snapshotReader) GetClusters(_ context.Context, endpoint string) ([]domain.ClusterView, error) {
	return s.clusters[endpoint], s.err
}

func (e *testEnv) poll(t *testing.T) {
	t.Helper()
	for _, p := range e.fleet.Pollers() {
		require.NoError(t, p.Poll(context.Background()))
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, decode[map[string]any](t, rec)["endpoints"])

	rec = env.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.ElementsMatch(t, []string{"front", "legacy"}, decode[map[string]any](t, rec)["pending"])

	env.poll(t)
	rec = env.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `balmgr_polls_total{endpoint="front",result="ok"} 1`)

	rec = env.do(http.MethodGet, "/infra", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nominal", decode[map[string]any](t, rec)["mode"])
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.poll(t)

	rec := env.do(http.MethodGet, "/api/endpoints", "")
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := decode[[]scheduler.Status](t, rec)
	require.Len(t, statuses, 2)
	require.Equal(t, "front", statuses[0].Endpoint)
	require.Equal(t, "2.4.41", statuses[0].HTTPDVersion)
	require.Equal(t, "2.2.15", statuses[1].HTTPDVersion)

	rec = env.do(http.MethodGet, "/api/endpoints/front/clusters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[domain.View](t, rec)
	require.Len(t, view.Clusters, 2)

	rec = env.do(http.MethodGet, "/api/endpoints/front/clusters/app", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cluster := decode[domain.ClusterView](t, rec)
	require.Equal(t, 3, cluster.EligibleRouteCount)

	rec = env.do(http.MethodGet, "/api/endpoints/front/clusters/ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decode[map[string]any](t, rec)["kind"])

	rec = env.do(http.MethodGet, "/api/endpoints/nowhere/clusters", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	env.poll(t)
	env.front.RemoveCluster("solo")
	env.poll(t)

	rec := env.do(http.MethodGet, "/api/endpoints/front/changes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Endpoint string             `json:"endpoint"`
		Changes  []reconcile.Result `json:"changes"`
	}](t, rec)
	require.Equal(t, "front", resp.Endpoint)
	require.Len(t, resp.Changes, 2)
	require.Equal(t, []string{"solo"}, resp.Changes[0].RemovedClusters)
	require.ElementsMatch(t, []string{"app", "solo"}, resp.Changes[1].AddedClusters)

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/endpoints/nowhere/changes", "").Code)

	rec = env.do(http.MethodGet, "/infra", "")
	require.Equal(t, http.StatusOK, rec.Code)
	infra := decode[struct {
		Components map[string]struct {
			OK    bool `json:"ok"`
			Count *int `json:"count"`
		} `json:"components"`
	}](t, rec)
	journal := infra.Components["journal"]
	require.True(t, journal.OK)
	require.NotNil(t, journal.Count)
	require.Equal(t, 3, *journal.Count) // front: added, removed; legacy: added
}

func TestClustersServedFromSnapshotBeforeFirstPoll(t *testing.T) {
	env := newTestEnv(t, nil)
	env.withSnapshots(&snapshotReader{clusters: map[string][]domain.ClusterView{
		"front": {{Name: "stale"}},
	}})

	rec := env.do(http.MethodGet, "/api/endpoints/front/clusters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "snapshot", rec.Header().Get("X-Balmgr-Source"))
	view := decode[domain.View](t, rec)
	require.Len(t, view.Clusters, 1)
	require.Equal(t, "stale", view.Clusters[0].Name)

	rec = env.do(http.MethodGet, "/api/endpoints/front/clusters/stale", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "snapshot", rec.Header().Get("X-Balmgr-Source"))
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/endpoints/front/clusters/app", "").Code)

	// Once polled, the live model wins.
	env.poll(t)
	rec = env.do(http.MethodGet, "/api/endpoints/front/clusters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-Balmgr-Source"))
	require.Len(t, decode[domain.View](t, rec).Clusters, 2)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/endpoints/front/clusters/app", "").Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/endpoints/front/clusters/stale", "").Code)
}

func TestClustersSnapshotFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.withSnapshots(&snapshotReader{err: errors.New("redis down")})

	require.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/endpoints/front/clusters", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/endpoints/front/clusters/app", "").Code)
}

func TestEditRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	env.poll(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"disable", "/api/endpoints/front/clusters/app/routes/a1", `{"statuses":{"disabled":true}}`, http.StatusOK},
		{"factor and lbset", "/api/endpoints/front/clusters/app/routes/a2", `{"factor":2.5,"lbset":0}`, http.StatusOK},
		{"last eligible", "/api/endpoints/front/clusters/solo/routes/s1", `{"statuses":{"disabled":true}}`, http.StatusConflict},
		{"forced", "/api/endpoints/front/clusters/solo/routes/s1", `{"statuses":{"disabled":true},"force":true}`, http.StatusOK},
		{"unknown route", "/api/endpoints/front/clusters/app/routes/ghost", `{"statuses":{"disabled":true}}`, http.StatusNotFound},
		{"unknown status", "/api/endpoints/front/clusters/app/routes/a1", `{"statuses":{"sleepy":true}}`, http.StatusBadRequest},
		{"unknown field", "/api/endpoints/front/clusters/app/routes/a1", `{"status":{"disabled":true}}`, http.StatusBadRequest},
		{"legacy immutable", "/api/endpoints/legacy/clusters/old/routes/o1", `{"statuses":{"draining_mode":true}}`, http.StatusUnprocessableEntity},
		{"legacy disable", "/api/endpoints/legacy/clusters/old/routes/o1", `{"statuses":{"disabled":true}}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	require.True(t, env.front.Status("app", "a1", domain.StatusDisabled))
	require.True(t, env.front.Status("solo", "s1", domain.StatusDisabled))
	require.True(t, env.legacy.Status("old", "o1", domain.StatusDisabled))
}

func TestEditRouteResponse(t *testing.T) {
	env := newTestEnv(t, nil)
	env.poll(t)

	rec := env.do(http.MethodPost, "/api/endpoints/front/clusters/app/routes/a1", `{"statuses":{"draining_mode":true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	route := decode[domain.RouteView](t, rec)
	require.True(t, route.Statuses[domain.StatusDrainingMode])
	require.False(t, route.AcceptingRequests)
}

func TestEditLBSet(t *testing.T) {
	env := newTestEnv(t, nil)
	env.poll(t)

	rec := env.do(http.MethodPost, "/api/endpoints/front/clusters/app/lbsets/1", `{"statuses":{"hot_standby":true}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, env.front.Status("app", "a3", domain.StatusHotStandby))

	rec = env.do(http.MethodPost, "/api/endpoints/front/clusters/app/lbsets/7", `{"statuses":{"disabled":true}}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/endpoints/front/clusters/app/lbsets/x", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/endpoints/front/clusters/app/lbsets/0", `{"factor":3}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompliance(t *testing.T) {
	env := newTestEnv(t, nil)
	env.poll(t)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/compliance", "").Code)

	env = newTestEnv(t, compliance.Profile{"app": {"a1": {domain.StatusDisabled}}})
	env.poll(t)

	rec := env.do(http.MethodGet, "/api/compliance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Compliant bool                          `json:"compliant"`
		Endpoints map[string]*compliance.Report `json:"endpoints"`
	}](t, rec)
	require.False(t, resp.Compliant)
	require.Contains(t, resp.Endpoints, "front")
	require.NotContains(t, resp.Endpoints, "legacy")
	require.Len(t, resp.Endpoints["front"].NonCompliant(), 1)
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.ElementsMatch(t, []any{"front", "legacy"}, decode[map[string]any](t, rec)["triggered"])
}

func TestMutationsRestrictedToAllowList(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	env := newTestEnv(t, nil, "10.0.0.0/8")
	env.poll(t)

	require.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/reload", "").Code)
	require.Equal(t, http.StatusForbidden,
		env.do(http.MethodPost, "/api/endpoints/front/clusters/app/routes/a1", `{"statuses":{"disabled":true}}`).Code)
	require.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/metrics", "").Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/endpoints", "").Code)
	require.False(t, env.front.Status("app", "a1", domain.StatusDisabled))
}
