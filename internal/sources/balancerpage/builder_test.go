package balancerpage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

func TestParseCurrentPage(t *testing.T) {
	bm, err := Parse(openFixture(t, "apache-2.4.41.html"), extractedAt)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !bm.Timestamp.Equal(extractedAt) {
		t.Errorf("Timestamp = %v, want %v", bm.Timestamp, extractedAt)
	}
	if want := time.Date(2020, time.August, 12, 19, 46, 17, 0, time.UTC); !bm.BuildDate.Equal(want) {
		t.Errorf("BuildDate = %v, want %v", bm.BuildDate, want)
	}

	app, err := bm.Cluster("app")
	if err != nil {
		t.Fatalf("Cluster(app) error = %v", err)
	}
	if app.MaxMembers != 3 || app.MaxMembersUsed != 3 {
		t.Errorf("MaxMembers = %d [%d], want 3 [3]", app.MaxMembers, app.MaxMembersUsed)
	}
	if app.StickySession == nil || *app.StickySession != "JSESSIONID | jsessionid" {
		t.Errorf("StickySession = %v", app.StickySession)
	}
	if app.Timeout != 30*time.Second || app.FailoverAttempts != 2 {
		t.Errorf("Timeout = %v, FailoverAttempts = %d", app.Timeout, app.FailoverAttempts)
	}
	if app.DisableFailover || !app.Active || app.Method != "byrequests" {
		t.Errorf("cluster flags = %+v", app)
	}
	if !app.LastSeen.Equal(extractedAt) {
		t.Errorf("cluster LastSeen = %v", app.LastSeen)
	}

	app1, err := app.Route("app1")
	if err != nil {
		t.Fatalf("Route(app1) error = %v", err)
	}
	if app1.To != 5100 || app1.From != 12_000_000 {
		t.Errorf("bandwidth = %d/%d, want 5100/12000000", app1.To, app1.From)
	}
	if app1.Busy == nil || *app1.Busy != 2 || app1.Load == nil || *app1.Load != 17 {
		t.Errorf("busy/load = %v/%v", app1.Busy, app1.Load)
	}
	if app1.Nonce != uuid.MustParse("5f0b1c2a-9d3e-4f8a-b6c7-1e2d3f4a5b6c") {
		t.Errorf("Nonce = %v", app1.Nonce)
	}
	if app1.Cluster() != app {
		t.Error("route back-pointer not set")
	}
	if !app1.AcceptingRequests() {
		t.Error("app1 should accept requests")
	}

	app2, _ := app.Route("app2")
	if app2.Factor != 2.5 || app2.RouteRedir != "app1" {
		t.Errorf("app2 factor/redirect = %v/%q", app2.Factor, app2.RouteRedir)
	}
	if app2.Priority <= app1.Priority {
		t.Error("priority does not follow page order")
	}

	disabled, ok := app2.Status(domain.StatusDisabled)
	if !ok || !disabled.Value || !disabled.Mutable || disabled.FormCode != "D" {
		t.Errorf("disabled status = %+v", disabled)
	}
	if _, ok := app2.Status(domain.StatusHotSpare); ok {
		t.Error("hot_spare must be absent before 2.4.34")
	}

	if app.EligibleRouteCount() != 2 {
		t.Errorf("EligibleRouteCount() = %d, want 2", app.EligibleRouteCount())
	}

	api, _ := bm.Cluster("api")
	if api.StickySession != nil || !api.DisableFailover || api.Active {
		t.Errorf("api cluster = %+v", api)
	}
	worker, err := api.Route("http://10.0.1.21:9000")
	if err != nil {
		t.Fatalf("unnamed route not keyed by worker: %v", err)
	}
	if !worker.Is(domain.StatusError) || !worker.Is(domain.StatusIgnoreErrors) || worker.Is(domain.StatusOK) {
		t.Errorf("api worker statuses = %v", worker.Statuses)
	}
	if worker.To != 1_200_000_000 || worker.From != 500_000_000_000 {
		t.Errorf("api bandwidth = %d/%d", worker.To, worker.From)
	}
	if _, ok := api.ActiveLBSet(); ok {
		t.Error("api has no ok route and should have no active lbset")
	}
}

func TestParseHealthCheckPage(t *testing.T) {
	bm, err := Parse(openFixture(t, "apache-2.4.39-hcheck.html"), extractedAt)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	r, err := bm.Route("web", "web1")
	if err != nil {
		t.Fatalf("Route(web, web1) error = %v", err)
	}
	if r.HealthCheck == nil || r.HealthCheck.URI != "/healthz" || r.HealthCheck.Method != "GET" {
		t.Errorf("HealthCheck = %+v", r.HealthCheck)
	}
	if want := time.Date(2019, time.April, 3, 9, 12, 44, 0, time.UTC); !bm.BuildDate.Equal(want) {
		t.Errorf("BuildDate = %v, want %v", bm.BuildDate, want)
	}

	spare, _ := bm.Route("web", "web2")
	s, ok := spare.Status(domain.StatusHotSpare)
	if !ok || !s.Value || s.FormCode != "R" {
		t.Errorf("hot_spare = %+v, %v", s, ok)
	}
}

func TestParseLegacyPage(t *testing.T) {
	bm, err := Parse(openFixture(t, "apache-2.2.15.html"), extractedAt)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	c, _ := bm.Cluster("legacy")
	if !c.Active || c.MaxMembers != 0 {
		t.Errorf("legacy cluster = %+v", c)
	}
	if c.StickySession == nil || *c.StickySession != "ROUTEID" {
		t.Errorf("StickySession = %v", c.StickySession)
	}

	old1, _ := c.Route("old1")
	if old1.Busy != nil || old1.Load != nil {
		t.Error("busy/load must be absent on 2.2")
	}
	if old1.To != 1_300_000 {
		t.Errorf("To = %d, want 1300000", old1.To)
	}

	old2, _ := c.Route("old2")
	dis, ok := old2.Status(domain.StatusDisabled)
	if !ok || !dis.Value || dis.FormCode != domain.LegacyDisableCode {
		t.Errorf("disabled = %+v", dis)
	}

	old3, _ := c.Route("old3")
	stby, ok := old3.Status(domain.StatusHotStandby)
	if !ok || !stby.Value || stby.Mutable {
		t.Errorf("hot_standby on 2.2 = %+v, want read-only true", stby)
	}
	if _, ok := old3.Status(domain.StatusIgnoreErrors); ok {
		t.Error("ignore_errors must be absent on 2.2")
	}
}

func TestBuildErrors(t *testing.T) {
	route := func(fields map[string]string) RouteFields {
		base := map[string]string{
			ColWorkerURL: "http://a", ColRoute: "r", ColFactor: "1", ColLBSet: "0",
			ColElected: "0", ColTo: "0", ColFrom: "0",
			KeyNonce: "3e2d1c0b-a987-4654-b321-0fedcba98765", KeyClusterLink: "a",
		}
		for k, v := range fields {
			base[k] = v
		}
		return RouteFields{Fields: base}
	}
	cluster := func(routes ...RouteFields) ClusterFields {
		return ClusterFields{
			Name:   "a",
			Fields: map[string]string{ColTimeout: "0", ColFailoverAttempts: "1"},
			Routes: routes,
		}
	}
	v := domain.Version{Major: 2, Minor: 2, Patch: 15}

	missingNonce := route(nil)
	delete(missingNonce.Fields, KeyNonce)

	tests := []struct {
		name string
		page *Page
	}{
		{"missing nonce", &Page{HTTPDVersion: v, Clusters: []ClusterFields{cluster(missingNonce)}}},
		{"unknown owning cluster", &Page{HTTPDVersion: v, Clusters: []ClusterFields{cluster(route(map[string]string{KeyClusterLink: "b"}))}}},
		{"bad factor", &Page{HTTPDVersion: v, Clusters: []ClusterFields{cluster(route(map[string]string{ColFactor: "x"}))}}},
		{"duplicate route", &Page{HTTPDVersion: v, Clusters: []ClusterFields{cluster(route(nil), route(nil))}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm, err := NewBuilder().Build(tt.page)
			var pe *domain.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Build() error = %v, want ParseError", err)
			}
			if bm != nil {
				t.Error("Build() returned a partial model")
			}
		})
	}

	_, err := NewBuilder().Build(&Page{HTTPDVersion: domain.Version{Major: 2, Minor: 6}})
	var uv *domain.UnsupportedVersionError
	if !errors.As(err, &uv) {
		t.Errorf("Build() error = %v, want UnsupportedVersionError", err)
	}
}
