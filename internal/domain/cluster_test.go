package domain

import (
	"errors"
	"testing"
)

var testVersion = Version{Major: 2, Minor: 4, Patch: 41}

// newTestRoute builds a route carrying every status of testVersion, with the
// listed statuses set to true.
func newTestRoute(name string, lbset, priority int, on ...StatusName) *Route {
	r := &Route{Name: name, Worker: "http://" + name + ":8080", LBSet: lbset, Priority: priority}
	enabled := make(map[StatusName]bool, len(on))
	for _, n := range on {
		enabled[n] = true
	}
	for _, spec := range StatusesFor(testVersion) {
		r.SetStatus(Status{Name: spec.Name, Value: enabled[spec.Name], Mutable: spec.Mutable, FormCode: spec.FormCode})
	}
	return r
}

func newTestCluster(routes ...*Route) *Cluster {
	c := NewCluster("web")
	for _, r := range routes {
		c.AddRoute(r)
	}
	return c
}

func TestActiveLBSet(t *testing.T) {
	tests := []struct {
		name       string
		routes     []*Route
		wantSet    int
		wantActive bool
	}{
		{
			name: "lowest set with ok route",
			routes: []*Route{
				newTestRoute("a", 1, 0, StatusOK),
				newTestRoute("b", 0, 1, StatusOK),
			},
			wantSet:    0,
			wantActive: true,
		},
		{
			name: "skips set without ok route",
			routes: []*Route{
				newTestRoute("a", 0, 0, StatusError),
				newTestRoute("b", 1, 1, StatusOK),
			},
			wantSet:    1,
			wantActive: true,
		},
		{
			name: "no ok route anywhere",
			routes: []*Route{
				newTestRoute("a", 0, 0, StatusError),
			},
			wantActive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCluster(tt.routes...)
			got, ok := c.ActiveLBSet()
			if ok != tt.wantActive {
				t.Fatalf("ActiveLBSet() ok = %v, want %v", ok, tt.wantActive)
			}
			if ok && got != tt.wantSet {
				t.Errorf("ActiveLBSet() = %d, want %d", got, tt.wantSet)
			}
		})
	}
}

func TestLBSetsOrdering(t *testing.T) {
	c := newTestCluster(
		newTestRoute("c", 2, 0, StatusOK),
		newTestRoute("b", 0, 2, StatusOK),
		newTestRoute("a", 0, 1, StatusOK),
	)

	sets := c.LBSets()
	if len(sets) != 2 {
		t.Fatalf("LBSets() returned %d sets, want 2", len(sets))
	}
	if sets[0].Number != 0 || sets[1].Number != 2 {
		t.Errorf("LBSets() order = [%d %d], want [0 2]", sets[0].Number, sets[1].Number)
	}
	if sets[0].Routes[0].Name != "a" || sets[0].Routes[1].Name != "b" {
		t.Errorf("routes in set 0 not ordered by priority: %s, %s", sets[0].Routes[0].Name, sets[0].Routes[1].Name)
	}

	if _, err := c.LBSet(7); err == nil {
		t.Error("LBSet(7) should fail")
	} else {
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Kind != "lbset" {
			t.Errorf("LBSet(7) error = %v, want lbset NotFoundError", err)
		}
	}
}

func TestStandby(t *testing.T) {
	allStandby := newTestCluster(
		newTestRoute("a", 0, 0, StatusOK, StatusHotStandby),
		newTestRoute("b", 0, 1, StatusOK, StatusHotStandby),
		newTestRoute("c", 1, 2, StatusOK),
	)
	if !allStandby.Standby() {
		t.Error("Standby() = false, want true when every ok route of the active set is standby")
	}

	mixed := newTestCluster(
		newTestRoute("a", 0, 0, StatusOK, StatusHotStandby),
		newTestRoute("b", 0, 1, StatusOK),
	)
	if mixed.Standby() {
		t.Error("Standby() = true, want false with a regular ok route in the active set")
	}

	none := newTestCluster(newTestRoute("a", 0, 0, StatusError))
	if none.Standby() {
		t.Error("Standby() = true, want false without an active lbset")
	}
}

func TestEligibleRouteCount(t *testing.T) {
	c := newTestCluster(
		newTestRoute("ok", 0, 0, StatusOK),
		newTestRoute("err", 0, 1, StatusError),
		newTestRoute("dis", 0, 2, StatusDisabled),
		newTestRoute("drn", 0, 3, StatusOK, StatusDrainingMode),
		newTestRoute("stby", 1, 4, StatusOK, StatusHotStandby),
	)
	if got := c.EligibleRouteCount(); got != 2 {
		t.Errorf("EligibleRouteCount() = %d, want 2", got)
	}
}

func TestAcceptingRequests(t *testing.T) {
	primary := newTestRoute("primary", 0, 0, StatusOK)
	standby := newTestRoute("standby", 0, 1, StatusOK, StatusHotStandby)
	backup := newTestRoute("backup", 1, 2, StatusOK)
	drained := newTestRoute("drained", 0, 3, StatusOK, StatusDrainingMode)
	_ = newTestCluster(primary, standby, backup, drained)

	tests := []struct {
		route *Route
		want  bool
	}{
		{primary, true},
		{standby, false},
		{backup, false},
		{drained, false},
	}
	for _, tt := range tests {
		t.Run(tt.route.Name, func(t *testing.T) {
			if got := tt.route.AcceptingRequests(); got != tt.want {
				t.Errorf("AcceptingRequests() = %v, want %v", got, tt.want)
			}
		})
	}

	// Once the only regular route fails the standby takes over.
	first := newTestRoute("first", 0, 0, StatusOK)
	spare := newTestRoute("spare", 0, 1, StatusOK, StatusHotStandby)
	newTestCluster(first, spare)
	first.SetStatus(Status{Name: StatusOK, Value: false})
	first.SetStatus(Status{Name: StatusError, Value: true})
	if !spare.AcceptingRequests() {
		t.Error("standby should accept requests when it is the only ok route of the active set")
	}
}

func TestAcceptingRequestsOnlyInActiveLBSet(t *testing.T) {
	c := newTestCluster(
		newTestRoute("a", 0, 0, StatusOK),
		newTestRoute("b", 1, 1, StatusOK),
		newTestRoute("c", 2, 2, StatusOK, StatusHotStandby),
		newTestRoute("d", 3, 3, StatusError),
	)
	active, ok := c.ActiveLBSet()
	if !ok {
		t.Fatal("expected an active lbset")
	}
	for _, r := range c.Routes {
		if r.LBSet != active && r.AcceptingRequests() {
			t.Errorf("route %s in lbset %d accepts requests, active lbset is %d", r.Name, r.LBSet, active)
		}
	}
}

func TestRouteKeyFallsBackToWorker(t *testing.T) {
	c := NewCluster("web")
	r := &Route{Worker: "http://10.0.0.1:8080"}
	c.AddRoute(r)

	got, err := c.Route("http://10.0.0.1:8080")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if got != r || got.Cluster() != c {
		t.Error("route not attached under its worker URL")
	}
}

func TestBalancerManagerLookup(t *testing.T) {
	bm := NewBalancerManager()
	bm.AddCluster(newTestCluster(newTestRoute("a", 0, 0, StatusOK)))

	if _, err := bm.Route("web", "a"); err != nil {
		t.Fatalf("Route(web, a) error = %v", err)
	}

	_, err := bm.Cluster("missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "cluster" {
		t.Errorf("Cluster(missing) error = %v, want cluster NotFoundError", err)
	}

	_, err = bm.Route("web", "missing")
	if !errors.As(err, &nf) || nf.Kind != "route" {
		t.Errorf("Route(web, missing) error = %v, want route NotFoundError", err)
	}
}

func TestViewCopiesDerivedFields(t *testing.T) {
	bm := NewBalancerManager()
	bm.HTTPDVersion = testVersion
	bm.AddCluster(newTestCluster(
		newTestRoute("a", 0, 0, StatusOK),
		newTestRoute("b", 1, 1, StatusOK),
	))

	v := bm.View()
	if v.HTTPDVersion != "2.4.41" {
		t.Errorf("View().HTTPDVersion = %q", v.HTTPDVersion)
	}
	if len(v.Clusters) != 1 {
		t.Fatalf("View() clusters = %d, want 1", len(v.Clusters))
	}
	cv := v.Clusters[0]
	if cv.ActiveLBSet == nil || *cv.ActiveLBSet != 0 {
		t.Errorf("ActiveLBSet = %v, want 0", cv.ActiveLBSet)
	}
	if cv.EligibleRouteCount != 2 {
		t.Errorf("EligibleRouteCount = %d, want 2", cv.EligibleRouteCount)
	}
	if !cv.Routes[0].AcceptingRequests || cv.Routes[1].AcceptingRequests {
		t.Error("AcceptingRequests not projected correctly")
	}
}
