package balancerpage

import "github.com/MrSnakeDoc/balmgr/internal/domain"

// Normalised column names. Table cells are stored under these keys, in the
// order the selected schema lists them.
const (
	ColMaxMembers       = "max_members"
	ColStickySession    = "sticky_session"
	ColDisableFailover  = "disable_failover"
	ColTimeout          = "timeout"
	ColFailoverAttempts = "failover_attempts"
	ColMethod           = "method"
	ColPath             = "path"
	ColActive           = "active"

	ColWorkerURL  = "worker_url"
	ColRoute      = "route"
	ColRouteRedir = "route_redir"
	ColFactor     = "factor"
	ColLBSet      = "lbset"
	ColStatus     = "status"
	ColElected    = "elected"
	ColBusy       = "busy"
	ColLoad       = "load"
	ColTo         = "to"
	ColFrom       = "from"

	ColHCMethod   = "hc_method"
	ColHCInterval = "hc_interval"
	ColHCPasses   = "hc_passes"
	ColHCFails    = "hc_fails"
	ColHCURI      = "hc_uri"
	ColHCExpr     = "hc_expr"
)

// Extra keys filled from the worker link and the bandwidth cells.
const (
	KeyNonce       = "nonce"
	KeyClusterLink = "cluster"
	ScaleSuffix    = "_scale"
)

// Schema is the table layout of one range of httpd releases.
type Schema struct {
	// Since is inclusive, Until exclusive.
	Since domain.Version
	Until domain.Version

	Cluster []string
	Route   []string

	// HealthCheck lists optional trailing route columns (mod_proxy_hcheck).
	// Nil when the range never prints them.
	HealthCheck []string
}

var (
	legacyCluster = []string{ColStickySession, ColTimeout, ColFailoverAttempts, ColMethod}
	legacyRoute   = []string{
		ColWorkerURL, ColRoute, ColRouteRedir, ColFactor, ColLBSet,
		ColStatus, ColElected, ColTo, ColFrom,
	}

	currentCluster = []string{
		ColMaxMembers, ColStickySession, ColDisableFailover, ColTimeout,
		ColFailoverAttempts, ColMethod, ColPath, ColActive,
	}
	currentRoute = []string{
		ColWorkerURL, ColRoute, ColRouteRedir, ColFactor, ColLBSet,
		ColStatus, ColElected, ColBusy, ColLoad, ColTo, ColFrom,
	}

	healthCheckColumns = []string{ColHCMethod, ColHCInterval, ColHCPasses, ColHCFails, ColHCURI, ColHCExpr}
)

// schemas is ordered by release and must not overlap.
var schemas = []Schema{
	{
		Since:   domain.Version{Major: 2, Minor: 2},
		Until:   domain.Version{Major: 2, Minor: 3},
		Cluster: legacyCluster,
		Route:   legacyRoute,
	},
	{
		Since:   domain.Version{Major: 2, Minor: 4},
		Until:   domain.Version{Major: 2, Minor: 4, Patch: 23},
		Cluster: currentCluster,
		Route:   currentRoute,
	},
	{
		Since:       domain.Version{Major: 2, Minor: 4, Patch: 23},
		Until:       domain.Version{Major: 2, Minor: 5},
		Cluster:     currentCluster,
		Route:       currentRoute,
		HealthCheck: healthCheckColumns,
	},
}

// SchemaFor selects the layout for v.
func SchemaFor(v domain.Version) (Schema, error) {
	for _, s := range schemas {
		if v.AtLeast(s.Since) && v.Less(s.Until) {
			return s, nil
		}
	}
	return Schema{}, &domain.UnsupportedVersionError{Version: v}
}

// routeColumns returns the route layout for a table whose header has
// headerCells cells.
func (s Schema) routeColumns(headerCells int) []string {
	if s.HealthCheck != nil && headerCells == len(s.Route)+len(s.HealthCheck) {
		cols := make([]string, 0, headerCells)
		cols = append(cols, s.Route...)
		return append(cols, s.HealthCheck...)
	}
	return s.Route
}
