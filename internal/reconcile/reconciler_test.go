package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
)

var v2441 = domain.Version{Major: 2, Minor: 4, Patch: 41}

type routeSpec struct {
	name   string
	lbset  int
	factor float64
	on     []domain.StatusName
}

// snapshot builds a detached model the way the page builder does.
func snapshot(ts time.Time, clusters map[string][]routeSpec) *domain.BalancerManager {
	bm := domain.NewBalancerManager()
	bm.Timestamp = ts
	bm.HTTPDVersion = v2441

	priority := 0
	for name, routes := range clusters {
		c := domain.NewCluster(name)
		c.Method = "byrequests"
		c.LastSeen = ts
		for _, rs := range routes {
			r := &domain.Route{
				Name:     rs.name,
				Worker:   "http://" + rs.name + ":8080",
				LBSet:    rs.lbset,
				Factor:   rs.factor,
				Priority: priority,
				Nonce:    uuid.New(),
				LastSeen: ts,
			}
			on := make(map[domain.StatusName]bool)
			for _, s := range rs.on {
				on[s] = true
			}
			for _, spec := range domain.StatusesFor(v2441) {
				r.SetStatus(domain.Status{Name: spec.Name, Value: on[spec.Name], Mutable: spec.Mutable, FormCode: spec.FormCode})
			}
			c.AddRoute(r)
			priority++
		}
		bm.AddCluster(c)
	}
	return bm
}

func TestReconciler_AdoptsNewEntities(t *testing.T) {
	live := domain.NewBalancerManager()
	rc := NewReconciler(logger.NewNop())
	t0 := time.Now()

	res := rc.Apply(live, snapshot(t0, map[string][]routeSpec{
		"A": {{name: "a1", factor: 1, on: []domain.StatusName{domain.StatusOK}}},
		"B": {{name: "b1", factor: 1, on: []domain.StatusName{domain.StatusOK}}},
	}))

	if len(res.AddedClusters) != 2 || len(res.AddedRoutes) != 2 {
		t.Errorf("Apply() added %v / %v", res.AddedClusters, res.AddedRoutes)
	}
	if !live.Timestamp.Equal(t0) {
		t.Errorf("Timestamp = %v, want %v", live.Timestamp, t0)
	}
	r, err := live.Route("A", "a1")
	if err != nil {
		t.Fatalf("Route(A, a1) error = %v", err)
	}
	if r.Cluster() == nil || r.Cluster().Name != "A" {
		t.Error("adopted route is not attached to its live cluster")
	}
}

func TestReconciler_IdempotentAndIdentityPreserving(t *testing.T) {
	live := domain.NewBalancerManager()
	rc := NewReconciler(logger.NewNop())
	t0 := time.Now()
	spec := map[string][]routeSpec{
		"A": {
			{name: "a1", factor: 1, on: []domain.StatusName{domain.StatusOK}},
			{name: "a2", factor: 2, lbset: 1, on: []domain.StatusName{domain.StatusOK, domain.StatusDisabled}},
		},
	}

	rc.Apply(live, snapshot(t0, spec))
	cluster, _ := live.Cluster("A")
	route, _ := live.Route("A", "a2")
	before := route.View()

	res := rc.Apply(live, snapshot(t0.Add(time.Second), spec))

	if res.Changed() {
		t.Errorf("second identical Apply() reported changes: %+v", res)
	}
	if got, _ := live.Cluster("A"); got != cluster {
		t.Error("cluster identity changed across reconcile")
	}
	if got, _ := live.Route("A", "a2"); got != route {
		t.Error("route identity changed across reconcile")
	}

	after := route.View()
	if after.Factor != before.Factor || after.LBSet != before.LBSet || after.Statuses[domain.StatusDisabled] != before.Statuses[domain.StatusDisabled] {
		t.Errorf("field values changed: before %+v, after %+v", before, after)
	}
	if !after.LastSeen.After(before.LastSeen) {
		t.Error("LastSeen did not advance")
	}
}

func TestReconciler_OverwritesFieldsInPlace(t *testing.T) {
	live := domain.NewBalancerManager()
	rc := NewReconciler(logger.NewNop())
	t0 := time.Now()

	rc.Apply(live, snapshot(t0, map[string][]routeSpec{
		"A": {{name: "a1", factor: 1, on: []domain.StatusName{domain.StatusOK}}},
	}))
	route, _ := live.Route("A", "a1")

	rc.Apply(live, snapshot(t0.Add(time.Second), map[string][]routeSpec{
		"A": {{name: "a1", factor: 3, on: []domain.StatusName{domain.StatusOK, domain.StatusDrainingMode}}},
	}))

	if route.Factor != 3 || !route.Is(domain.StatusDrainingMode) {
		t.Errorf("route not updated in place: factor %v, draining %v", route.Factor, route.Is(domain.StatusDrainingMode))
	}
}

func TestReconciler_GarbageCollectsVanishedCluster(t *testing.T) {
	live := domain.NewBalancerManager()
	rc := NewReconciler(logger.NewNop())
	t0 := time.Now()

	rc.Apply(live, snapshot(t0, map[string][]routeSpec{
		"A": {{name: "a1", on: []domain.StatusName{domain.StatusOK}}},
		"B": {{name: "b1", on: []domain.StatusName{domain.StatusOK}}},
	}))
	res := rc.Apply(live, snapshot(t0.Add(time.Second), map[string][]routeSpec{
		"A": {{name: "a1", on: []domain.StatusName{domain.StatusOK}}},
	}))

	if len(live.Clusters) != 1 {
		t.Fatalf("Expected 1 cluster after GC, got %d", len(live.Clusters))
	}
	if _, err := live.Cluster("A"); err != nil {
		t.Errorf("Cluster A was incorrectly removed: %v", err)
	}

	_, err := live.Cluster("B")
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Cluster(B) error = %v, want NotFoundError", err)
	}
	if len(res.RemovedClusters) != 1 || res.RemovedClusters[0] != "B" {
		t.Errorf("RemovedClusters = %v, want [B]", res.RemovedClusters)
	}
}

func TestReconciler_GarbageCollectsVanishedRoute(t *testing.T) {
	live := domain.NewBalancerManager()
	rc := NewReconciler(logger.NewNop())
	t0 := time.Now()

	rc.Apply(live, snapshot(t0, map[string][]routeSpec{
		"A": {{name: "a1", on: []domain.StatusName{domain.StatusOK}}, {name: "a2", on: []domain.StatusName{domain.StatusOK}}},
	}))
	res := rc.Apply(live, snapshot(t0.Add(time.Second), map[string][]routeSpec{
		"A": {{name: "a1", on: []domain.StatusName{domain.StatusOK}}},
	}))

	if _, err := live.Route("A", "a2"); err == nil {
		t.Error("route a2 was not removed")
	}
	if len(res.RemovedRoutes) != 1 || res.RemovedRoutes[0] != (RouteRef{Cluster: "A", Route: "a2"}) {
		t.Errorf("RemovedRoutes = %v", res.RemovedRoutes)
	}
}

func TestReconciler_MonotonicTimestamps(t *testing.T) {
	live := domain.NewBalancerManager()
	rc := NewReconciler(logger.NewNop())
	t0 := time.Now()
	spec := map[string][]routeSpec{
		"A": {{name: "a1", on: []domain.StatusName{domain.StatusOK}}},
	}

	rc.Apply(live, snapshot(t0, spec))
	// Same extraction time, and then one from the past.
	res := rc.Apply(live, snapshot(t0, spec))
	if !res.Timestamp.After(t0) {
		t.Errorf("Timestamp = %v, want strictly after %v", res.Timestamp, t0)
	}
	res2 := rc.Apply(live, snapshot(t0.Add(-time.Minute), spec))
	if !res2.Timestamp.After(res.Timestamp) {
		t.Errorf("Timestamp = %v, want strictly after %v", res2.Timestamp, res.Timestamp)
	}

	// Entities seen by the out-of-order snapshot survive.
	if _, err := live.Route("A", "a1"); err != nil {
		t.Errorf("route collected after clock skew: %v", err)
	}
}

func TestGarbageCollector_Collect(t *testing.T) {
	now := time.Now()
	bm := snapshot(now, map[string][]routeSpec{
		"fresh": {{name: "f1"}, {name: "f2"}},
		"stale": {{name: "s1"}},
	})
	stale, _ := bm.Cluster("stale")
	stale.LastSeen = now.Add(-time.Minute)
	f2, _ := bm.Route("fresh", "f2")
	f2.LastSeen = now.Add(-time.Minute)

	res := NewGarbageCollector(logger.NewNop()).Collect(bm, now)

	if len(res.RemovedClusters) != 1 || len(res.RemovedRoutes) != 1 {
		t.Errorf("Collect() = %+v", res)
	}
	if _, err := bm.Route("fresh", "f1"); err != nil {
		t.Error("fresh route was incorrectly removed")
	}
	if f2.Cluster() != nil {
		t.Error("collected route still points at its cluster")
	}
}

func TestResult_Merge(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	a := Result{Timestamp: t1, AddedClusters: []string{"app"}, AddedRoutes: []RouteRef{{Cluster: "app", Route: "a1"}}}
	b := Result{Timestamp: t0, RemovedClusters: []string{"old"}, RemovedRoutes: []RouteRef{{Cluster: "old", Route: "o1"}}}

	got := a.Merge(b)
	if !got.Timestamp.Equal(t1) {
		t.Errorf("Merge() timestamp = %v, want the later %v", got.Timestamp, t1)
	}
	if len(got.AddedClusters) != 1 || len(got.RemovedClusters) != 1 || got.RemovedClusters[0] != "old" {
		t.Errorf("Merge() clusters = %v / %v", got.AddedClusters, got.RemovedClusters)
	}
	if len(got.AddedRoutes) != 1 || len(got.RemovedRoutes) != 1 {
		t.Errorf("Merge() routes = %v / %v", got.AddedRoutes, got.RemovedRoutes)
	}

	// Merging must not alias the receiver's slices.
	got.AddedClusters[0] = "changed"
	if a.AddedClusters[0] != "app" {
		t.Error("Merge() aliased the receiver")
	}

	if (Result{}).Merge(Result{}).Changed() {
		t.Error("merging empty results should stay unchanged")
	}
}
