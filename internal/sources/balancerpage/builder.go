package balancerpage

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

// Builder converts an extracted Page into a detached domain snapshot.
type Builder struct{}

// NewBuilder creates a new builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build returns a BalancerManager stamped with the page's extraction time.
// Every cluster and route of the result has LastSeen set to that time.
func (b *Builder) Build(p *Page) (*domain.BalancerManager, error) {
	if err := domain.SupportedVersion(p.HTTPDVersion); err != nil {
		return nil, err
	}

	bm := domain.NewBalancerManager()
	bm.Timestamp = p.ExtractedAt
	bm.HTTPDVersion = p.HTTPDVersion
	bm.OpenSSLVersion = p.OpenSSLVersion
	bm.BuildDate = parseBuildDate(p.BuildDate)

	// Clusters first: a route row may only reference a known cluster.
	for _, cf := range p.Clusters {
		if _, exists := bm.Clusters[cf.Name]; exists {
			return nil, &domain.ParseError{Reason: "duplicate cluster " + cf.Name}
		}
		c, err := buildCluster(cf)
		if err != nil {
			return nil, &domain.ParseError{Reason: "cluster " + cf.Name, Err: err}
		}
		c.LastSeen = p.ExtractedAt
		bm.AddCluster(c)
	}

	priority := 0
	for _, cf := range p.Clusters {
		for _, rf := range cf.Routes {
			owner := rf.Fields[KeyClusterLink]
			c, ok := bm.Clusters[owner]
			if !ok {
				return nil, &domain.ParseError{
					Reason: fmt.Sprintf("route %q references unknown cluster %q", rf.Fields[ColWorkerURL], owner),
				}
			}

			r, err := buildRoute(rf, p.HTTPDVersion)
			if err != nil {
				return nil, &domain.ParseError{Reason: "route " + rf.Fields[ColWorkerURL], Err: err}
			}
			if _, dup := c.Routes[r.Key()]; dup {
				return nil, &domain.ParseError{Reason: fmt.Sprintf("duplicate route %s in cluster %s", r.Key(), c.Name)}
			}
			r.Priority = priority
			r.LastSeen = p.ExtractedAt
			c.AddRoute(r)
			priority++
		}
	}

	return bm, nil
}

func buildCluster(cf ClusterFields) (*domain.Cluster, error) {
	f := cf.Fields
	c := domain.NewCluster(cf.Name)

	var err error
	if v, ok := f[ColMaxMembers]; ok {
		if c.MaxMembers, c.MaxMembersUsed, err = parseMaxMembers(v); err != nil {
			return nil, err
		}
	}
	c.StickySession = parseSticky(f[ColStickySession])
	if v, ok := f[ColDisableFailover]; ok {
		if c.DisableFailover, err = parseOnOff(v); err != nil {
			return nil, err
		}
	}
	if c.Timeout, err = parseSeconds(f[ColTimeout]); err != nil {
		return nil, err
	}
	if c.FailoverAttempts, err = atoi(f, ColFailoverAttempts); err != nil {
		return nil, err
	}
	c.Method = f[ColMethod]
	c.Path = f[ColPath]

	// 2.2.x has no Active column; its balancers are always active.
	c.Active = true
	if v, ok := f[ColActive]; ok {
		if c.Active, err = parseYesNo(v); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func buildRoute(rf RouteFields, v domain.Version) (*domain.Route, error) {
	f := rf.Fields
	r := &domain.Route{
		Name:       f[ColRoute],
		Worker:     f[ColWorkerURL],
		RouteRedir: f[ColRouteRedir],
	}

	raw, ok := f[KeyNonce]
	if !ok {
		return nil, fmt.Errorf("worker link carries no nonce")
	}
	nonce, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	r.Nonce = nonce

	if r.Factor, err = strconv.ParseFloat(f[ColFactor], 64); err != nil {
		return nil, fmt.Errorf("invalid factor %q: %w", f[ColFactor], err)
	}
	if r.LBSet, err = atoi(f, ColLBSet); err != nil {
		return nil, err
	}
	if r.Elected, err = atoi(f, ColElected); err != nil {
		return nil, err
	}
	if r.Busy, err = optionalInt(f, ColBusy); err != nil {
		return nil, err
	}
	if r.Load, err = optionalInt(f, ColLoad); err != nil {
		return nil, err
	}
	if r.To, err = DecodeBytes(f[ColTo], f[ColTo+ScaleSuffix]); err != nil {
		return nil, err
	}
	if r.From, err = DecodeBytes(f[ColFrom], f[ColFrom+ScaleSuffix]); err != nil {
		return nil, err
	}

	if rf.HealthCheck {
		r.HealthCheck = &domain.HealthCheck{
			Method:   f[ColHCMethod],
			Interval: f[ColHCInterval],
			Passes:   f[ColHCPasses],
			Fails:    f[ColHCFails],
			URI:      f[ColHCURI],
			Expr:     f[ColHCExpr],
		}
	}

	for _, spec := range domain.StatusesFor(v) {
		r.SetStatus(domain.Status{
			Name:     spec.Name,
			Value:    rf.Statuses[spec.Name],
			Mutable:  spec.Mutable,
			FormCode: spec.FormCode,
		})
	}

	return r, nil
}

func atoi(f map[string]string, col string) (int, error) {
	n, err := strconv.Atoi(f[col])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", col, f[col], err)
	}
	return n, nil
}

func optionalInt(f map[string]string, col string) (*int, error) {
	if _, ok := f[col]; !ok {
		return nil, nil
	}
	n, err := atoi(f, col)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Parse runs Extract and Build on one document.
func Parse(r io.Reader, at time.Time) (*domain.BalancerManager, error) {
	page, err := Extract(r, at)
	if err != nil {
		return nil, err
	}
	return NewBuilder().Build(page)
}
