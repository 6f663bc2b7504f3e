package scheduler

import (
	"context"

	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
)

// Publishers fans one publish out to several sinks. Every sink is tried;
// failures are combined.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, endpoint string, view domain.View, res reconcile.Result) error {
	var errs error
	for _, p := range ps {
		if p == nil {
			continue
		}
		errs = multierr.Append(errs, p.Publish(ctx, endpoint, view, res))
	}
	return errs
}
