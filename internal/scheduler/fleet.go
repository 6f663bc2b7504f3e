// Package scheduler keeps the live model of every configured endpoint fresh
// and, when a profile is configured, compliant.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/balmgr/internal/logger"
)

// Fleet groups the pollers of every configured endpoint.
type Fleet struct {
	pollers []*Poller
	byName  map[string]*Poller
	logger  logger.Logger
}

// NewFleet rejects duplicate endpoint names.
func NewFleet(log logger.Logger, pollers ...*Poller) (*Fleet, error) {
	if log == nil {
		log = logger.NewNop()
	}
	f := &Fleet{byName: make(map[string]*Poller, len(pollers)), logger: log}
	for _, p := range pollers {
		if _, dup := f.byName[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate endpoint name %q", p.Name())
		}
		f.byName[p.Name()] = p
		f.pollers = append(f.pollers, p)
	}
	sort.Slice(f.pollers, func(i, j int) bool { return f.pollers[i].Name() < f.pollers[j].Name() })
	return f, nil
}

// Start polls every endpoint once, concurrently, then starts the periodic
// loops. A failed initial poll is logged and reported through Status; only
// cancellation of ctx aborts Start.
func (f *Fleet) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range f.pollers {
		g.Go(func() error {
			if err := p.Poll(gctx); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.logger.Warn("initial poll failed",
					logger.String("endpoint", p.Name()),
					logger.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("initial poll interrupted: %w", err)
	}

	for _, p := range f.pollers {
		p.Start(ctx)
	}
	return nil
}

// Stop stops every poller.
func (f *Fleet) Stop() {
	for _, p := range f.pollers {
		p.Stop()
	}
}

// Trigger requests an immediate poll of every endpoint.
func (f *Fleet) Trigger() {
	for _, p := range f.pollers {
		p.Trigger()
	}
}

// Poller looks up an endpoint by name.
func (f *Fleet) Poller(name string) (*Poller, bool) {
	p, ok := f.byName[name]
	return p, ok
}

// Pollers returns every poller sorted by endpoint name.
func (f *Fleet) Pollers() []*Poller {
	return f.pollers
}

func (f *Fleet) Statuses() []Status {
	out := make([]Status, 0, len(f.pollers))
	for _, p := range f.pollers {
		out = append(out, p.Status())
	}
	return out
}

// Ready reports whether every endpoint has been polled successfully at least once.
func (f *Fleet) Ready() bool {
	for _, p := range f.pollers {
		if p.Status().LastSuccess.IsZero() {
			return false
		}
	}
	return len(f.pollers) > 0
}
