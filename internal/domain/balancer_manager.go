package domain

import (
	"sort"
	"sync"
	"time"
)

// BalancerManager is the root aggregate of one balancer-manager endpoint.
//
// A live BalancerManager is only ever mutated by a reconcile pass, which runs
// under Locked. Entity pointers handed out (clusters, routes) stay valid
// across reconcile passes: they are updated in place, never replaced.
//
// Accessors on the aggregate and its entities do not lock. Callers that read
// the model concurrently with an update use View.
type BalancerManager struct {
	mu sync.RWMutex

	// ─────────────────────────────
	// Snapshot metadata
	// ─────────────────────────────

	// Timestamp is the extraction time of the newest reconciled snapshot.
	Timestamp time.Time

	// HTTPDVersion is the Apache release that rendered the page.
	HTTPDVersion Version

	// BuildDate is the "Server Built" date, zero when it could not be parsed.
	BuildDate time.Time

	// OpenSSLVersion is empty when httpd does not advertise it.
	OpenSSLVersion string

	// ─────────────────────────────
	// Entities
	// ─────────────────────────────

	// Clusters is keyed by balancer name (without the balancer:// prefix).
	Clusters map[string]*Cluster
}

// NewBalancerManager returns an empty model.
func NewBalancerManager() *BalancerManager {
	return &BalancerManager{Clusters: make(map[string]*Cluster)}
}

// Locked runs fn while holding the write lock.
func (bm *BalancerManager) Locked(fn func()) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	fn()
}

// RLocked runs fn while holding the read lock.
func (bm *BalancerManager) RLocked(fn func()) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	fn()
}

// Cluster returns the named cluster or a NotFoundError.
func (bm *BalancerManager) Cluster(name string) (*Cluster, error) {
	c, ok := bm.Clusters[name]
	if !ok {
		return nil, &NotFoundError{
			Kind:        "cluster",
			Name:        name,
			Suggestions: Suggest(name, mapKeys(bm.Clusters), maxSuggestions),
		}
	}
	return c, nil
}

// Route resolves cluster and route in one step.
func (bm *BalancerManager) Route(cluster, route string) (*Route, error) {
	c, err := bm.Cluster(cluster)
	if err != nil {
		return nil, err
	}
	return c.Route(route)
}

// AddCluster attaches c to the model, replacing any cluster with the same name.
func (bm *BalancerManager) AddCluster(c *Cluster) {
	if bm.Clusters == nil {
		bm.Clusters = make(map[string]*Cluster)
	}
	bm.Clusters[c.Name] = c
}

// RemoveCluster detaches the named cluster.
func (bm *BalancerManager) RemoveCluster(name string) {
	delete(bm.Clusters, name)
}

// SortedClusters returns the clusters ordered by name.
func (bm *BalancerManager) SortedClusters() []*Cluster {
	clusters := make([]*Cluster, 0, len(bm.Clusters))
	for _, c := range bm.Clusters {
		clusters = append(clusters, c)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters
}
