package reconcile

import (
	"time"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
)

// GarbageCollector removes entities that the newest snapshot no longer contains.
type GarbageCollector struct {
	logger logger.Logger
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(log logger.Logger) *GarbageCollector {
	if log == nil {
		log = logger.NewNop()
	}
	return &GarbageCollector{logger: log}
}

// Collect deletes clusters whose LastSeen predates ts, then routes whose
// LastSeen predates ts inside the surviving clusters. The caller must hold
// the model's write lock.
func (gc *GarbageCollector) Collect(bm *domain.BalancerManager, ts time.Time) Result {
	var res Result

	// Collect vanished clusters
	for _, c := range bm.SortedClusters() {
		if !c.LastSeen.Before(ts) {
			continue
		}

		bm.RemoveCluster(c.Name)
		res.RemovedClusters = append(res.RemovedClusters, c.Name)

		gc.logger.Info("garbage collected cluster",
			logger.String("cluster", c.Name),
			logger.Time("last_seen", c.LastSeen))
	}

	// Collect vanished routes of the clusters that remain
	for _, c := range bm.SortedClusters() {
		for _, r := range c.SortedRoutes() {
			if !r.LastSeen.Before(ts) {
				continue
			}

			c.RemoveRoute(r.Key())
			res.RemovedRoutes = append(res.RemovedRoutes, RouteRef{Cluster: c.Name, Route: r.Key()})

			gc.logger.Info("garbage collected route",
				logger.String("cluster", c.Name),
				logger.String("route", r.Key()),
				logger.Time("last_seen", r.LastSeen))
		}
	}

	if n := len(res.RemovedClusters) + len(res.RemovedRoutes); n > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("clusters_deleted", len(res.RemovedClusters)),
			logger.Int("routes_deleted", len(res.RemovedRoutes)))
	} else {
		gc.logger.Debug("no entities to garbage collect")
	}

	return res
}
