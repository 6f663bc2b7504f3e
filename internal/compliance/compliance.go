package compliance

import (
	"sort"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

// StatusScore is the verdict for one status of one route.
type StatusScore struct {
	Name     domain.StatusName `json:"name"`
	Desired  bool              `json:"desired"`
	Observed bool              `json:"observed"`

	// Absent is true when the profile lists a status the detected httpd
	// version does not have. Such a status is never compliant.
	Absent    bool `json:"absent,omitempty"`
	Compliant bool `json:"compliant"`
}

// RouteReport is the verdict for one profile route.
type RouteReport struct {
	Cluster   string        `json:"cluster"`
	Route     string        `json:"route"`
	Missing   bool          `json:"missing,omitempty"`
	Compliant bool          `json:"compliant"`
	Statuses  []StatusScore `json:"statuses,omitempty"`
}

// Report is the verdict for a whole profile.
type Report struct {
	Compliant bool          `json:"compliant"`
	Routes    []RouteReport `json:"routes"`
}

// NonCompliant returns the routes that failed.
func (r Report) NonCompliant() []RouteReport {
	var out []RouteReport
	for _, rr := range r.Routes {
		if !rr.Compliant {
			out = append(out, rr)
		}
	}
	return out
}

// Score compares bm against p under the model's read lock.
func Score(bm *domain.BalancerManager, p Profile) Report {
	report := Report{Compliant: true}

	bm.RLocked(func() {
		for _, clusterName := range p.Clusters() {
			cluster, err := bm.Cluster(clusterName)
			if err != nil && len(p[clusterName]) == 0 {
				report.Compliant = false
				report.Routes = append(report.Routes, RouteReport{Cluster: clusterName, Missing: true})
				continue
			}
			for _, routeName := range p.Routes(clusterName) {
				var rr RouteReport
				if err != nil {
					rr = RouteReport{Cluster: clusterName, Route: routeName, Missing: true}
				} else {
					rr = scoreRoute(cluster, bm.HTTPDVersion, clusterName, routeName, p)
				}
				report.Compliant = report.Compliant && rr.Compliant
				report.Routes = append(report.Routes, rr)
			}
		}
	})

	return report
}

func scoreRoute(c *domain.Cluster, version domain.Version, clusterName, routeName string, p Profile) RouteReport {
	rr := RouteReport{Cluster: clusterName, Route: routeName, Compliant: true}

	route, err := c.Route(routeName)
	if err != nil {
		rr.Missing = true
		rr.Compliant = false
		return rr
	}

	scored := make(map[domain.StatusName]bool)
	for _, name := range domain.MutableStatusesFor(version) {
		s, ok := route.Status(name)
		if !ok {
			continue
		}
		scored[name] = true
		desired := p.wants(clusterName, routeName, name)
		rr.Statuses = append(rr.Statuses, StatusScore{
			Name:      name,
			Desired:   desired,
			Observed:  s.Value,
			Compliant: desired == s.Value,
		})
	}
	for _, name := range p[clusterName][routeName] {
		if !scored[name] {
			rr.Statuses = append(rr.Statuses, StatusScore{Name: name, Desired: true, Absent: true})
		}
	}

	sort.Slice(rr.Statuses, func(i, j int) bool { return rr.Statuses[i].Name < rr.Statuses[j].Name })
	for _, s := range rr.Statuses {
		rr.Compliant = rr.Compliant && s.Compliant
	}
	return rr
}
