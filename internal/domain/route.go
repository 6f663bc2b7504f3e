package domain

import (
	"time"

	"github.com/google/uuid"
)

// Route is one worker (member) of a cluster.
type Route struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// Name is the route name (Route column). May be empty.
	Name string

	// Worker is the worker URL, e.g. http://10.0.0.1:8080.
	Worker string

	// Priority is the position of the route on the page.
	Priority int

	// ─────────────────────────────
	// Settings (mutable through the edit protocol)
	// ─────────────────────────────

	RouteRedir string
	Factor     float64
	LBSet      int

	// ─────────────────────────────
	// Counters
	// ─────────────────────────────

	Elected int
	Busy    *int  // nil on 2.2.x
	Load    *int  // nil on 2.2.x
	To      int64 // bytes sent to the worker
	From    int64 // bytes read from the worker

	// HealthCheck is nil when the page has no health-check columns.
	HealthCheck *HealthCheck

	// ─────────────────────────────
	// Protocol & observation
	// ─────────────────────────────

	// Nonce is the single-render token required on every edit request.
	Nonce uuid.UUID

	// LastSeen is the timestamp of the last snapshot containing this route.
	LastSeen time.Time

	// Statuses holds every status the detected version exposes.
	Statuses map[StatusName]Status

	cluster *Cluster
}

// HealthCheck holds the mod_proxy_hcheck columns (2.4.23+).
type HealthCheck struct {
	Method   string
	Interval string
	Passes   string
	Fails    string
	URI      string
	Expr     string
}

// Key is the map key of the route inside its cluster.
func (r *Route) Key() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Worker
}

// Cluster returns the owning cluster, nil for a detached route.
func (r *Route) Cluster() *Cluster { return r.cluster }

// Status returns the named status; ok is false when absent for the version.
func (r *Route) Status(name StatusName) (Status, bool) {
	s, ok := r.Statuses[name]
	return s, ok
}

// Is reports the value of a status; absent statuses read as false.
func (r *Route) Is(name StatusName) bool {
	return r.Statuses[name].Value
}

// SetStatus stores a status value.
func (r *Route) SetStatus(s Status) {
	if r.Statuses == nil {
		r.Statuses = make(map[StatusName]Status)
	}
	r.Statuses[s.Name] = s
}

// MutableValues returns the current value of every mutable status.
func (r *Route) MutableValues() map[StatusName]bool {
	values := make(map[StatusName]bool)
	for name, s := range r.Statuses {
		if s.Mutable {
			values[name] = s.Value
		}
	}
	return values
}

// Eligible reports whether the route can take new traffic:
// not in error, not disabled and not draining.
func (r *Route) Eligible() bool {
	return !r.Is(StatusError) && !r.Is(StatusDisabled) && !r.Is(StatusDrainingMode)
}

// AcceptingRequests reports whether the balancer would currently send new
// requests to this route.
func (r *Route) AcceptingRequests() bool {
	c := r.cluster
	if c == nil {
		return false
	}
	active, ok := c.ActiveLBSet()
	if !ok || r.LBSet != active {
		return false
	}
	if !r.Eligible() {
		return false
	}
	return !r.Is(StatusHotStandby) || c.Standby()
}

// Assign overwrites the observed state of r with that of o.
// Identity back-pointer and LastSeen are left untouched.
func (r *Route) Assign(o *Route) {
	r.Name = o.Name
	r.Worker = o.Worker
	r.Priority = o.Priority
	r.RouteRedir = o.RouteRedir
	r.Factor = o.Factor
	r.LBSet = o.LBSet
	r.Elected = o.Elected
	r.Busy = copyInt(o.Busy)
	r.Load = copyInt(o.Load)
	r.To = o.To
	r.From = o.From
	r.Nonce = o.Nonce

	r.HealthCheck = nil
	if o.HealthCheck != nil {
		hc := *o.HealthCheck
		r.HealthCheck = &hc
	}

	r.Statuses = make(map[StatusName]Status, len(o.Statuses))
	for name, s := range o.Statuses {
		r.Statuses[name] = s
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
