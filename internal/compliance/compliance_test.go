package compliance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/testutil/fakebm"
)

func newClient(t *testing.T, srv *fakebm.Server) *balancer.Client {
	t.Helper()
	c, err := balancer.New(srv.URL(), balancer.WithDoer(srv.Client()))
	require.NoError(t, err)
	_, err = c.Update(context.Background())
	require.NoError(t, err)
	return c
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(`
app:
  app1: []
  app2: [disabled, Draining-Mode, disabled]
api:
  api1: [hot_standby]
`))
	require.NoError(t, err)
	require.Equal(t, []string{"api", "app"}, p.Clusters())
	require.Equal(t, []domain.StatusName{domain.StatusDisabled, domain.StatusDrainingMode}, p["app"]["app2"])
	require.Empty(t, p["app"]["app1"])
}

func TestParseProfileJSON(t *testing.T) {
	p, err := ParseProfile([]byte(`{"clusterX": {"route1": ["disabled"]}}`))
	require.NoError(t, err)
	require.Equal(t, []domain.StatusName{domain.StatusDisabled}, p["clusterX"]["route1"])
}

func TestParseProfileRejectsBadStatuses(t *testing.T) {
	_, err := ParseProfile([]byte(`app: {app1: [sleeping]}`))
	require.Error(t, err)

	_, err = ParseProfile([]byte(`app: {app1: [ok]}`))
	require.ErrorContains(t, err, "cannot be set")

	_, err = ParseProfile([]byte(`app: [not, a, map]`))
	require.Error(t, err)
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("web:\n  w1: [stopped]\n"), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	require.Equal(t, []domain.StatusName{domain.StatusStopped}, p["web"]["w1"])

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestScore(t *testing.T) {
	srv := fakebm.New("2.4.41", fakebm.NewCluster("web",
		fakebm.NewRoute("w1", 0),
		fakebm.NewRoute("w2", 0, domain.StatusDisabled),
	))
	defer srv.Close()
	c := newClient(t, srv)

	report := Score(c.Model(), Profile{
		"web": {"w1": nil, "w2": {domain.StatusDisabled}},
	})
	require.True(t, report.Compliant)
	require.Len(t, report.Routes, 2)

	// Every mutable status of the version is scored, not only listed ones.
	require.Len(t, report.Routes[0].Statuses, len(domain.MutableStatusesFor(c.Model().HTTPDVersion)))

	report = Score(c.Model(), Profile{
		"web": {"w1": {domain.StatusHotStandby}},
	})
	require.False(t, report.Compliant)
	bad := report.NonCompliant()
	require.Len(t, bad, 1)
	for _, s := range bad[0].Statuses {
		require.Equal(t, s.Name != domain.StatusHotStandby, s.Compliant, "status %s", s.Name)
	}
}

func TestScoreMissingEntities(t *testing.T) {
	srv := fakebm.New("2.4.41", fakebm.NewCluster("web", fakebm.NewRoute("w1", 0)))
	defer srv.Close()
	c := newClient(t, srv)

	report := Score(c.Model(), Profile{
		"web":   {"ghost": nil},
		"other": {"r1": nil},
		"empty": {},
	})
	require.False(t, report.Compliant)
	require.Len(t, report.Routes, 3)
	for _, rr := range report.Routes {
		require.True(t, rr.Missing, "%s/%s", rr.Cluster, rr.Route)
		require.False(t, rr.Compliant)
	}
}

func TestScoreAbsentStatus(t *testing.T) {
	srv := fakebm.New("2.4.20", fakebm.NewCluster("web", fakebm.NewRoute("w1", 0), fakebm.NewRoute("w2", 0)))
	defer srv.Close()
	c := newClient(t, srv)

	report := Score(c.Model(), Profile{"web": {"w2": {domain.StatusHotSpare}}})
	require.False(t, report.Compliant)

	var found bool
	for _, s := range report.Routes[0].Statuses {
		if s.Name == domain.StatusHotSpare {
			found = true
			require.True(t, s.Absent)
			require.False(t, s.Compliant)
		}
	}
	require.True(t, found)
}

func TestEnforce(t *testing.T) {
	srv := fakebm.New("2.4.41", fakebm.NewCluster("clusterX",
		fakebm.NewRoute("route1", 0),
		fakebm.NewRoute("route2", 0),
	))
	defer srv.Close()
	c := newClient(t, srv)

	p, err := ParseProfile([]byte(`{"clusterX": {"route1": ["disabled"]}}`))
	require.NoError(t, err)

	before := Score(c.Model(), p)
	require.False(t, before.Compliant)

	after, err := Enforce(context.Background(), c, c.Model(), p, EnforceOptions{})
	require.NoError(t, err)
	require.True(t, after.Compliant)

	r, err := c.Model().Route("clusterX", "route1")
	require.NoError(t, err)
	require.True(t, r.Is(domain.StatusDisabled))
	require.Equal(t, 1, srv.EditRequests())

	// Already compliant: nothing is sent.
	_, err = Enforce(context.Background(), c, c.Model(), p, EnforceOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, srv.EditRequests())
}

func TestEnforceClearsUnlistedStatuses(t *testing.T) {
	srv := fakebm.New("2.4.41", fakebm.NewCluster("web",
		fakebm.NewRoute("w1", 0, domain.StatusDrainingMode, domain.StatusIgnoreErrors),
		fakebm.NewRoute("w2", 0),
	))
	defer srv.Close()
	c := newClient(t, srv)

	_, err := Enforce(context.Background(), c, c.Model(), Profile{"web": {"w1": nil}}, EnforceOptions{})
	require.NoError(t, err)
	require.False(t, srv.Status("web", "w1", domain.StatusDrainingMode))
	require.False(t, srv.Status("web", "w1", domain.StatusIgnoreErrors))
}

func TestEnforceNotConverged(t *testing.T) {
	srv := fakebm.New("2.4.41", fakebm.NewCluster("web", fakebm.NewRoute("w1", 0)))
	defer srv.Close()
	c := newClient(t, srv)

	// Disabling the only route trips the eligibility check.
	report, err := Enforce(context.Background(), c, c.Model(), Profile{"web": {"w1": {domain.StatusDisabled}}}, EnforceOptions{})
	var nc *NotConvergedError
	require.ErrorAs(t, err, &nc)
	require.Len(t, nc.Remaining, 1)
	require.False(t, report.Compliant)

	var iv *domain.InvariantViolationError
	require.ErrorAs(t, err, &iv)

	// Forcing converges.
	report, err = Enforce(context.Background(), c, c.Model(), Profile{"web": {"w1": {domain.StatusDisabled}}}, EnforceOptions{Force: true})
	require.NoError(t, err)
	require.True(t, report.Compliant)
}

func TestEnforceSilentRejection(t *testing.T) {
	srv := fakebm.New("2.4.41", fakebm.NewCluster("web", fakebm.NewRoute("w1", 0), fakebm.NewRoute("w2", 0)))
	defer srv.Close()
	c := newClient(t, srv)
	srv.IgnoreEdits(true)

	_, err := Enforce(context.Background(), c, c.Model(), Profile{"web": {"w1": {domain.StatusStopped}}}, EnforceOptions{})
	var nc *NotConvergedError
	require.ErrorAs(t, err, &nc)
	var ve *domain.VerificationError
	require.ErrorAs(t, err, &ve)
}
