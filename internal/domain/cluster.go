package domain

import (
	"sort"
	"strconv"
	"time"
)

// Cluster is one balancer:// group of routes.
type Cluster struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// Name is the balancer name, unique within a snapshot.
	Name string

	// ─────────────────────────────
	// Balancer settings (overwritten on every snapshot)
	// ─────────────────────────────

	MaxMembers       int
	MaxMembersUsed   int
	StickySession    *string // nil when the page shows "(None)"
	DisableFailover  bool
	Timeout          time.Duration
	FailoverAttempts int
	Method           string
	Path             string
	Active           bool

	// ─────────────────────────────
	// Members & observation
	// ─────────────────────────────

	// Routes is keyed by route name, or by worker URL for unnamed routes.
	Routes map[string]*Route

	// LastSeen is the timestamp of the last snapshot containing this cluster.
	LastSeen time.Time
}

// LBSet is one failover tier of a cluster.
type LBSet struct {
	Number int
	Routes []*Route // ordered by page priority
}

// NewCluster returns an empty cluster.
func NewCluster(name string) *Cluster {
	return &Cluster{Name: name, Routes: make(map[string]*Route)}
}

// Assign overwrites the balancer settings of c with those of o.
// Routes and LastSeen are left untouched.
func (c *Cluster) Assign(o *Cluster) {
	c.MaxMembers = o.MaxMembers
	c.MaxMembersUsed = o.MaxMembersUsed
	c.StickySession = nil
	if o.StickySession != nil {
		s := *o.StickySession
		c.StickySession = &s
	}
	c.DisableFailover = o.DisableFailover
	c.Timeout = o.Timeout
	c.FailoverAttempts = o.FailoverAttempts
	c.Method = o.Method
	c.Path = o.Path
	c.Active = o.Active
}

// AddRoute attaches r to the cluster and points r back at it.
func (c *Cluster) AddRoute(r *Route) {
	if c.Routes == nil {
		c.Routes = make(map[string]*Route)
	}
	r.cluster = c
	c.Routes[r.Key()] = r
}

// RemoveRoute detaches the route stored under key.
func (c *Cluster) RemoveRoute(key string) {
	if r, ok := c.Routes[key]; ok {
		r.cluster = nil
		delete(c.Routes, key)
	}
}

// Route returns the named route or a NotFoundError.
func (c *Cluster) Route(name string) (*Route, error) {
	r, ok := c.Routes[name]
	if !ok {
		return nil, &NotFoundError{
			Kind:        "route",
			Name:        c.Name + "/" + name,
			Suggestions: Suggest(name, mapKeys(c.Routes), maxSuggestions),
		}
	}
	return r, nil
}

// SortedRoutes returns all routes in page order.
func (c *Cluster) SortedRoutes() []*Route {
	routes := make([]*Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Priority < routes[j].Priority })
	return routes
}

// LBSets groups routes by lbset number, lowest number first.
func (c *Cluster) LBSets() []LBSet {
	byNumber := make(map[int][]*Route)
	for _, r := range c.SortedRoutes() {
		byNumber[r.LBSet] = append(byNumber[r.LBSet], r)
	}

	sets := make([]LBSet, 0, len(byNumber))
	for n, routes := range byNumber {
		sets = append(sets, LBSet{Number: n, Routes: routes})
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Number < sets[j].Number })
	return sets
}

// LBSet returns one tier or a NotFoundError.
func (c *Cluster) LBSet(number int) (LBSet, error) {
	for _, set := range c.LBSets() {
		if set.Number == number {
			return set, nil
		}
	}
	return LBSet{}, &NotFoundError{Kind: "lbset", Name: c.Name + "/" + strconv.Itoa(number)}
}

// ActiveLBSet is the lowest-numbered lbset holding at least one ok route.
func (c *Cluster) ActiveLBSet() (int, bool) {
	for _, set := range c.LBSets() {
		for _, r := range set.Routes {
			if r.Is(StatusOK) {
				return set.Number, true
			}
		}
	}
	return 0, false
}

// Standby reports whether every ok route of the active lbset is a hot standby,
// in which case standby routes take traffic. False without an active lbset.
func (c *Cluster) Standby() bool {
	active, ok := c.ActiveLBSet()
	if !ok {
		return false
	}
	for _, r := range c.Routes {
		if r.LBSet != active || !r.Is(StatusOK) {
			continue
		}
		if !r.Is(StatusHotStandby) {
			return false
		}
	}
	return true
}

// EligibleRouteCount counts routes able to take new traffic.
func (c *Cluster) EligibleRouteCount() int {
	n := 0
	for _, r := range c.Routes {
		if r.Eligible() {
			n++
		}
	}
	return n
}
