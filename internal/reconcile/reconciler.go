// Package reconcile merges freshly built snapshots into a live model.
package reconcile

import (
	"time"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
)

// RouteRef names a route inside its cluster.
type RouteRef struct {
	Cluster string `json:"cluster"`
	Route   string `json:"route"`
}

// Result lists the entities a reconcile pass added or removed.
type Result struct {
	Timestamp       time.Time  `json:"timestamp"`
	AddedClusters   []string   `json:"added_clusters,omitempty"`
	RemovedClusters []string   `json:"removed_clusters,omitempty"`
	AddedRoutes     []RouteRef `json:"added_routes,omitempty"`
	RemovedRoutes   []RouteRef `json:"removed_routes,omitempty"`
}

// Changed reports whether the pass altered the set of entities.
func (r Result) Changed() bool {
	return len(r.AddedClusters)+len(r.RemovedClusters)+len(r.AddedRoutes)+len(r.RemovedRoutes) > 0
}

// Merge appends the changes of o after those of r. The later timestamp wins.
func (r Result) Merge(o Result) Result {
	out := Result{
		Timestamp:       r.Timestamp,
		AddedClusters:   append(append([]string(nil), r.AddedClusters...), o.AddedClusters...),
		RemovedClusters: append(append([]string(nil), r.RemovedClusters...), o.RemovedClusters...),
		AddedRoutes:     append(append([]RouteRef(nil), r.AddedRoutes...), o.AddedRoutes...),
		RemovedRoutes:   append(append([]RouteRef(nil), r.RemovedRoutes...), o.RemovedRoutes...),
	}
	if o.Timestamp.After(out.Timestamp) {
		out.Timestamp = o.Timestamp
	}
	return out
}

// Reconciler applies snapshots to a live model.
type Reconciler struct {
	gc     *GarbageCollector
	logger logger.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{
		gc:     NewGarbageCollector(log),
		logger: log,
	}
}

// Apply merges snap into live under live's write lock.
//
// Existing clusters and routes keep their identity and get their fields
// overwritten; new ones are copied from snap. Anything snap no longer
// contains is garbage collected.
func (rc *Reconciler) Apply(live, snap *domain.BalancerManager) Result {
	var res Result

	live.Locked(func() {
		ts := snap.Timestamp
		if !ts.After(live.Timestamp) {
			// Two snapshots within the clock resolution must still be ordered.
			ts = live.Timestamp.Add(time.Nanosecond)
		}

		live.Timestamp = ts
		live.HTTPDVersion = snap.HTTPDVersion
		live.BuildDate = snap.BuildDate
		live.OpenSSLVersion = snap.OpenSSLVersion

		for _, sc := range snap.SortedClusters() {
			lc, ok := live.Clusters[sc.Name]
			if !ok {
				lc = domain.NewCluster(sc.Name)
				live.AddCluster(lc)
				res.AddedClusters = append(res.AddedClusters, sc.Name)
			}
			lc.Assign(sc)
			lc.LastSeen = ts

			for _, sr := range sc.SortedRoutes() {
				lr, ok := lc.Routes[sr.Key()]
				if !ok {
					lr = &domain.Route{}
					res.AddedRoutes = append(res.AddedRoutes, RouteRef{Cluster: sc.Name, Route: sr.Key()})
				}
				lr.Assign(sr)
				lr.LastSeen = ts
				if !ok {
					lc.AddRoute(lr)
				}
			}
		}

		gcRes := rc.gc.Collect(live, ts)
		res.RemovedClusters = gcRes.RemovedClusters
		res.RemovedRoutes = gcRes.RemovedRoutes
		res.Timestamp = ts
	})

	if res.Changed() {
		rc.logger.Info("reconciled snapshot",
			logger.Int("clusters_added", len(res.AddedClusters)),
			logger.Int("clusters_removed", len(res.RemovedClusters)),
			logger.Int("routes_added", len(res.AddedRoutes)),
			logger.Int("routes_removed", len(res.RemovedRoutes)))
	}

	return res
}
