package domain

import "time"

// View is a read-only copy of a BalancerManager, derived fields included.
type View struct {
	Timestamp      time.Time     `json:"timestamp"`
	HTTPDVersion   string        `json:"httpd_version"`
	BuildDate      *time.Time    `json:"build_date,omitempty"`
	OpenSSLVersion string        `json:"openssl_version,omitempty"`
	Clusters       []ClusterView `json:"clusters"`
}

type ClusterView struct {
	Name               string      `json:"name"`
	MaxMembers         int         `json:"max_members"`
	MaxMembersUsed     int         `json:"max_members_used"`
	StickySession      *string     `json:"sticky_session"`
	DisableFailover    bool        `json:"disable_failover"`
	TimeoutSeconds     float64     `json:"timeout_seconds"`
	FailoverAttempts   int         `json:"failover_attempts"`
	Method             string      `json:"method"`
	Path               string      `json:"path"`
	Active             bool        `json:"active"`
	ActiveLBSet        *int        `json:"active_lbset"`
	Standby            bool        `json:"standby"`
	EligibleRouteCount int         `json:"eligible_route_count"`
	LastSeen           time.Time   `json:"last_seen"`
	Routes             []RouteView `json:"routes"`
}

type RouteView struct {
	Name              string              `json:"name"`
	Worker            string              `json:"worker"`
	Priority          int                 `json:"priority"`
	RouteRedir        string              `json:"route_redir"`
	Factor            float64             `json:"factor"`
	LBSet             int                 `json:"lbset"`
	Elected           int                 `json:"elected"`
	Busy              *int                `json:"busy"`
	Load              *int                `json:"load"`
	To                int64               `json:"to_bytes"`
	From              int64               `json:"from_bytes"`
	AcceptingRequests bool                `json:"accepting_requests"`
	Statuses          map[StatusName]bool `json:"statuses"`
	HealthCheck       *HealthCheck        `json:"health_check,omitempty"`
	LastSeen          time.Time           `json:"last_seen"`
}

// View copies the model under the read lock.
func (bm *BalancerManager) View() View {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	v := View{
		Timestamp:      bm.Timestamp,
		HTTPDVersion:   bm.HTTPDVersion.String(),
		OpenSSLVersion: bm.OpenSSLVersion,
		Clusters:       make([]ClusterView, 0, len(bm.Clusters)),
	}
	if !bm.BuildDate.IsZero() {
		built := bm.BuildDate
		v.BuildDate = &built
	}
	for _, c := range bm.SortedClusters() {
		v.Clusters = append(v.Clusters, c.View())
	}
	return v
}

// View copies the cluster. Callers must hold the model lock or own the model.
func (c *Cluster) View() ClusterView {
	cv := ClusterView{
		Name:               c.Name,
		MaxMembers:         c.MaxMembers,
		MaxMembersUsed:     c.MaxMembersUsed,
		DisableFailover:    c.DisableFailover,
		TimeoutSeconds:     c.Timeout.Seconds(),
		FailoverAttempts:   c.FailoverAttempts,
		Method:             c.Method,
		Path:               c.Path,
		Active:             c.Active,
		Standby:            c.Standby(),
		EligibleRouteCount: c.EligibleRouteCount(),
		LastSeen:           c.LastSeen,
		Routes:             make([]RouteView, 0, len(c.Routes)),
	}
	if c.StickySession != nil {
		sticky := *c.StickySession
		cv.StickySession = &sticky
	}
	if n, ok := c.ActiveLBSet(); ok {
		cv.ActiveLBSet = &n
	}
	for _, r := range c.SortedRoutes() {
		cv.Routes = append(cv.Routes, r.View())
	}
	return cv
}

// View copies the route.
func (r *Route) View() RouteView {
	rv := RouteView{
		Name:              r.Name,
		Worker:            r.Worker,
		Priority:          r.Priority,
		RouteRedir:        r.RouteRedir,
		Factor:            r.Factor,
		LBSet:             r.LBSet,
		Elected:           r.Elected,
		Busy:              copyInt(r.Busy),
		Load:              copyInt(r.Load),
		To:                r.To,
		From:              r.From,
		AcceptingRequests: r.AcceptingRequests(),
		Statuses:          make(map[StatusName]bool, len(r.Statuses)),
		LastSeen:          r.LastSeen,
	}
	for name, s := range r.Statuses {
		rv.Statuses[name] = s.Value
	}
	if r.HealthCheck != nil {
		hc := *r.HealthCheck
		rv.HealthCheck = &hc
	}
	return rv
}
