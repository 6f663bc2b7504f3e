package compliance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

// Editor submits one route edit. *balancer.Client satisfies it.
type Editor interface {
	Edit(ctx context.Context, req balancer.EditRequest) error
}

// EnforceOptions tunes Enforce.
type EnforceOptions struct {
	// Force is passed through to every edit.
	Force bool
}

// NotConvergedError means some routes still differ from the profile after
// enforcement. Errors holds the edit failures that explain why, if any.
type NotConvergedError struct {
	Remaining []RouteReport
	Errors    []error
}

func (e *NotConvergedError) Error() string {
	names := make([]string, 0, len(e.Remaining))
	for _, r := range e.Remaining {
		names = append(names, r.Cluster+"/"+r.Route)
	}
	msg := fmt.Sprintf("%d route(s) not compliant after enforcement: %s", len(e.Remaining), strings.Join(names, ", "))
	if len(e.Errors) > 0 {
		msg += fmt.Sprintf(" (%d edit error(s): %v)", len(e.Errors), multierr.Combine(e.Errors...))
	}
	return msg
}

func (e *NotConvergedError) Unwrap() []error { return e.Errors }

// Enforce issues one edit per non-compliant route, setting its full desired
// status set, then scores again. It returns the final report.
func Enforce(ctx context.Context, editor Editor, bm *domain.BalancerManager, p Profile, opts EnforceOptions) (Report, error) {
	before := Score(bm, p)
	if before.Compliant {
		return before, nil
	}

	var version domain.Version
	bm.RLocked(func() { version = bm.HTTPDVersion })

	var errs error
	for _, rr := range before.NonCompliant() {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		if rr.Missing {
			nf := &domain.NotFoundError{Kind: "route", Name: rr.Cluster + "/" + rr.Route}
			if rr.Route == "" {
				nf = &domain.NotFoundError{Kind: "cluster", Name: rr.Cluster}
			}
			errs = multierr.Append(errs, nf)
			continue
		}

		desired := make(map[domain.StatusName]bool, len(rr.Statuses))
		for _, s := range rr.Statuses {
			if s.Absent {
				errs = multierr.Append(errs, &domain.UnsupportedVersionError{Version: version, Status: s.Name})
				continue
			}
			desired[s.Name] = s.Desired
		}
		if len(desired) == 0 {
			continue
		}

		err := editor.Edit(ctx, balancer.EditRequest{
			Cluster:  rr.Cluster,
			Route:    rr.Route,
			Statuses: desired,
			Force:    opts.Force,
		})
		errs = multierr.Append(errs, err)
	}

	after := Score(bm, p)
	if !after.Compliant {
		return after, &NotConvergedError{Remaining: after.NonCompliant(), Errors: multierr.Errors(errs)}
	}
	if errs != nil {
		return after, &domain.AggregateError{Errors: multierr.Errors(errs)}
	}
	return after, nil
}
