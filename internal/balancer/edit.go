package balancer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
)

// factorTolerance absorbs the two decimal rounding of the Factor column.
const factorTolerance = 0.005

// EditRequest changes one route. Statuses lists only the flags to change;
// nil settings keep their current value.
type EditRequest struct {
	Cluster    string
	Route      string
	Statuses   map[domain.StatusName]bool
	Factor     *float64
	LBSet      *int
	RouteRedir *string

	// Force skips the last-eligible-route check.
	Force bool
}

// FanOut applies the same status change to several routes.
type FanOut struct {
	Statuses map[domain.StatusName]bool
	Force    bool

	// Handler, when set, sees every per-route failure. Returning nil
	// swallows the error; returning an error keeps it in the aggregate.
	Handler func(route string, err error) error
}

// Edit submits req and verifies the page returned by httpd reflects it.
//
// Validation, version gating and the eligibility check all run before any
// request is sent. If the model was never loaded, the page is fetched first.
func (c *Client) Edit(ctx context.Context, req EditRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	return c.edit(ctx, req)
}

func (c *Client) ensureLoaded(ctx context.Context) error {
	if !c.model.Timestamp.IsZero() {
		return nil
	}
	res, err := c.update(ctx)
	if err != nil {
		return err
	}
	c.pending = c.pending.Merge(res)
	return nil
}

func (c *Client) edit(ctx context.Context, req EditRequest) error {
	route, err := c.model.Route(req.Cluster, req.Route)
	if err != nil {
		return err
	}
	version := c.model.HTTPDVersion

	for _, name := range sortedStatusNames(req.Statuses) {
		if err := domain.CheckMutable(version, name); err != nil {
			return err
		}
	}

	next := settings{
		factor:     route.Factor,
		lbset:      route.LBSet,
		routeRedir: route.RouteRedir,
		statuses:   route.MutableValues(),
	}
	for name, value := range req.Statuses {
		next.statuses[name] = value
	}
	if req.Factor != nil {
		next.factor = *req.Factor
	}
	if req.LBSet != nil {
		next.lbset = *req.LBSet
	}
	if req.RouteRedir != nil {
		next.routeRedir = *req.RouteRedir
	}

	if !req.Force {
		if err := checkEligibility(route, next.statuses); err != nil {
			return err
		}
	}

	httpReq, err := c.newEditRequest(ctx, version, route, next)
	if err != nil {
		return err
	}

	c.logger.Info("submitting route edit",
		logger.String("cluster", req.Cluster),
		logger.String("route", req.Route),
		logger.Any("statuses", req.Statuses),
		logger.Bool("force", req.Force))

	body, err := c.send(httpReq)
	if err != nil {
		return err
	}

	res, err := c.ingest(ctx, body)
	if err != nil {
		return fmt.Errorf("failed to read edit response: %w", err)
	}
	c.pending = c.pending.Merge(res)

	return c.verify(req)
}

// checkEligibility refuses to take the last eligible route of a cluster out
// of rotation. Routes that are already ineligible may be changed freely.
func checkEligibility(r *domain.Route, next map[domain.StatusName]bool) error {
	if !r.Eligible() {
		return nil
	}

	var status domain.StatusName
	switch {
	case next[domain.StatusDisabled]:
		status = domain.StatusDisabled
	case next[domain.StatusDrainingMode]:
		status = domain.StatusDrainingMode
	default:
		return nil
	}

	c := r.Cluster()
	for _, other := range c.Routes {
		if other != r && other.Eligible() {
			return nil
		}
	}
	return &domain.InvariantViolationError{Cluster: c.Name, Route: r.Key(), Status: status}
}

// verify compares the freshly reconciled route against req.
func (c *Client) verify(req EditRequest) error {
	verr := &domain.VerificationError{Cluster: req.Cluster, Route: req.Route}

	route, err := c.model.Route(req.Cluster, req.Route)
	if err != nil {
		verr.Mismatches = append(verr.Mismatches, domain.Mismatch{Field: "route", Requested: "present", Observed: "missing"})
		return verr
	}

	for _, name := range sortedStatusNames(req.Statuses) {
		want := req.Statuses[name]
		if got := route.Is(name); got != want {
			verr.Mismatches = append(verr.Mismatches, domain.Mismatch{
				Field:     string(name),
				Requested: strconv.FormatBool(want),
				Observed:  strconv.FormatBool(got),
			})
		}
	}
	if req.Factor != nil && math.Abs(route.Factor-*req.Factor) > factorTolerance {
		verr.Mismatches = append(verr.Mismatches, domain.Mismatch{
			Field:     "factor",
			Requested: formatFactor(*req.Factor),
			Observed:  formatFactor(route.Factor),
		})
	}
	if req.LBSet != nil && route.LBSet != *req.LBSet {
		verr.Mismatches = append(verr.Mismatches, domain.Mismatch{
			Field:     "lbset",
			Requested: strconv.Itoa(*req.LBSet),
			Observed:  strconv.Itoa(route.LBSet),
		})
	}
	if req.RouteRedir != nil && route.RouteRedir != *req.RouteRedir {
		verr.Mismatches = append(verr.Mismatches, domain.Mismatch{
			Field:     "route_redir",
			Requested: *req.RouteRedir,
			Observed:  route.RouteRedir,
		})
	}

	if len(verr.Mismatches) > 0 {
		c.logger.Warn("route edit not reflected by balancer-manager",
			logger.String("cluster", req.Cluster),
			logger.String("route", req.Route),
			logger.Error(verr))
		return verr
	}
	return nil
}

// EditRoutes applies f to the named routes of cluster, in page order.
// Failures are returned together as a *domain.AggregateError.
func (c *Client) EditRoutes(ctx context.Context, cluster string, routes []string, f FanOut) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	cl, err := c.model.Cluster(cluster)
	if err != nil {
		return err
	}

	var (
		targets []*domain.Route
		errs    error
	)
	for _, name := range routes {
		r, err := cl.Route(name)
		if err != nil {
			errs = multierr.Append(errs, handle(f, name, err))
			continue
		}
		targets = append(targets, r)
	}
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority < targets[j].Priority })

	names := make([]string, len(targets))
	for i, r := range targets {
		names[i] = r.Key()
	}

	return c.fanOut(ctx, cluster, names, f, errs)
}

// EditLBSet applies f to every route of one lbset.
func (c *Client) EditLBSet(ctx context.Context, cluster string, lbset int, f FanOut) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	cl, err := c.model.Cluster(cluster)
	if err != nil {
		return err
	}
	set, err := cl.LBSet(lbset)
	if err != nil {
		return err
	}

	names := make([]string, len(set.Routes))
	for i, r := range set.Routes {
		names[i] = r.Key()
	}

	return c.fanOut(ctx, cluster, names, f, nil)
}

// fanOut runs the edit sequence for each route name. Names are resolved
// again on every step since each edit reconciles the model.
func (c *Client) fanOut(ctx context.Context, cluster string, names []string, f FanOut, errs error) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		err := c.edit(ctx, EditRequest{
			Cluster:  cluster,
			Route:    name,
			Statuses: f.Statuses,
			Force:    f.Force,
		})
		if err != nil {
			errs = multierr.Append(errs, handle(f, name, err))
		}
	}

	if errs == nil {
		return nil
	}
	return &domain.AggregateError{Errors: multierr.Errors(errs)}
}

func handle(f FanOut, route string, err error) error {
	if f.Handler == nil {
		return err
	}
	return f.Handler(route, err)
}
