package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/compliance"
	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
	"github.com/MrSnakeDoc/balmgr/internal/metrics"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
)

// Publisher receives the live model after every successful poll.
// *redisstore.Store satisfies it.
type Publisher interface {
	Publish(ctx context.Context, endpoint string, view domain.View, res reconcile.Result) error
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval time.Duration // <= 0 disables periodic polls, manual triggers still work

	// Profile, when set, is scored after every poll.
	Profile compliance.Profile
	// Enforce drives the endpoint back to Profile when it drifts.
	Enforce bool
	Force   bool
}

// Status is the poller state exposed by the HTTP API.
type Status struct {
	Endpoint     string    `json:"endpoint"`
	URL          string    `json:"url"`
	LastPoll     time.Time `json:"last_poll"`
	LastSuccess  time.Time `json:"last_success"`
	LastError    string    `json:"last_error,omitempty"`
	HTTPDVersion string    `json:"httpd_version,omitempty"`
	Compliant    *bool     `json:"compliant,omitempty"`
}

// Poller keeps one endpoint's live model fresh.
type Poller struct {
	client    *balancer.Client
	publisher Publisher
	metrics   *metrics.Metrics
	logger    logger.Logger
	opts      PollerOptions

	trigger  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}

	mu     sync.RWMutex
	status Status
	report *compliance.Report
}

// NewPoller creates a poller. publisher and m may be nil.
func NewPoller(client *balancer.Client, publisher Publisher, m *metrics.Metrics, log logger.Logger, opts PollerOptions) *Poller {
	if log == nil {
		log = logger.NewNop()
	}
	return &Poller{
		client:    client,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With(log, logger.String("endpoint", client.Name())),
		opts:      opts,
		trigger:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		status:    Status{Endpoint: client.Name(), URL: client.Endpoint()},
	}
}

func (p *Poller) Name() string             { return p.client.Name() }
func (p *Poller) Client() *balancer.Client { return p.client }

// Profile returns the compliance profile, nil when none is configured.
func (p *Poller) Profile() compliance.Profile { return p.opts.Profile }

// Start runs the periodic loop in the background. It does not poll by
// itself; callers poll once first (see Fleet.Start).
func (p *Poller) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	var tick <-chan time.Time
	if p.opts.Interval > 0 {
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			p.pollAndLog(ctx)
		case <-p.trigger:
			p.logger.Info("manual poll triggered")
			p.pollAndLog(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) pollAndLog(ctx context.Context) {
	if err := p.Poll(ctx); err != nil {
		p.logger.Error("poll failed", logger.Error(err))
	}
}

// Trigger requests a poll without waiting for the next tick. Triggers
// arriving while one is pending are merged.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the loop started by Start and waits for it.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.started.Load() {
		<-p.done
	}
}

// Poll fetches the page once, publishes the model and scores it.
func (p *Poller) Poll(ctx context.Context) error {
	start := time.Now()
	res, err := p.client.Update(ctx)
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.ObservePoll(p.Name(), elapsed, err)
	}

	p.mu.Lock()
	p.status.LastPoll = start
	if err != nil {
		p.status.LastError = err.Error()
	} else {
		p.status.LastSuccess = start
		p.status.LastError = ""
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to poll %s: %w", p.Name(), err)
	}

	p.observeChanges(res)

	var enforceErr error
	if p.opts.Profile != nil {
		enforceErr = p.checkCompliance(ctx)
	}

	view := p.client.Model().View()
	p.mu.Lock()
	p.status.HTTPDVersion = view.HTTPDVersion
	p.mu.Unlock()

	p.publish(ctx, view, res)
	return enforceErr
}

func (p *Poller) checkCompliance(ctx context.Context) error {
	bm := p.client.Model()
	report := compliance.Score(bm, p.opts.Profile)

	var err error
	if !report.Compliant && p.opts.Enforce {
		p.logger.Warn("endpoint drifted from profile, enforcing",
			logger.Int("routes", len(report.NonCompliant())))
		report, err = compliance.Enforce(ctx, observedEditor{p}, bm, p.opts.Profile,
			compliance.EnforceOptions{Force: p.opts.Force})
		if err != nil {
			err = fmt.Errorf("failed to enforce profile on %s: %w", p.Name(), err)
		}
	}

	p.setReport(report)
	return err
}

func (p *Poller) setReport(report compliance.Report) {
	if p.metrics != nil {
		p.metrics.SetCompliance(p.Name(), report.Compliant)
	}
	compliant := report.Compliant
	p.mu.Lock()
	p.report = &report
	p.status.Compliant = &compliant
	p.mu.Unlock()
}

func (p *Poller) observeChanges(res reconcile.Result) {
	if res.Changed() {
		p.logger.Info("balancer-manager changed",
			logger.Strings("added_clusters", res.AddedClusters),
			logger.Strings("removed_clusters", res.RemovedClusters),
			logger.Int("added_routes", len(res.AddedRoutes)),
			logger.Int("removed_routes", len(res.RemovedRoutes)))
	}
	if p.metrics != nil {
		p.metrics.ObserveGC(p.Name(), res)
	}
}

// publish is best effort: the in-memory model stays the source of truth.
func (p *Poller) publish(ctx context.Context, view domain.View, res reconcile.Result) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, p.Name(), view, res); err != nil {
		p.logger.Warn("failed to publish clusters", logger.Error(err))
	}
}

// Edit forwards req to the client and records the outcome. Changes the
// edit response revealed are published and, with a profile, the endpoint
// is scored again.
func (p *Poller) Edit(ctx context.Context, req balancer.EditRequest) error {
	err := p.editRoute(ctx, req)
	p.settle(ctx, err, true)
	return err
}

func (p *Poller) editRoute(ctx context.Context, req balancer.EditRequest) error {
	err := p.client.Edit(ctx, req)
	if p.metrics != nil {
		p.metrics.ObserveEdit(p.Name(), err)
	}

	fields := []logger.Field{logger.String("cluster", req.Cluster), logger.String("route", req.Route), logger.Bool("force", req.Force)}
	if err != nil {
		p.logger.Warn("edit failed", append(fields, logger.Error(err))...)
		return err
	}
	p.logger.Info("route edited", fields...)
	return nil
}

// EditLBSet forwards a fan-out edit of one lbset to the client.
func (p *Poller) EditLBSet(ctx context.Context, cluster string, lbset int, f balancer.FanOut) error {
	err := p.client.EditLBSet(ctx, cluster, lbset, f)
	if p.metrics != nil {
		p.metrics.ObserveEdit(p.Name(), err)
	}
	if err != nil {
		p.logger.Warn("lbset edit failed",
			logger.String("cluster", cluster),
			logger.Int("lbset", lbset),
			logger.Error(err))
	} else {
		p.logger.Info("lbset edited", logger.String("cluster", cluster), logger.Int("lbset", lbset))
	}
	p.settle(ctx, err, true)
	return err
}

// settle publishes what the last edits reconciled. A failed edit that never
// reached httpd leaves nothing to publish.
func (p *Poller) settle(ctx context.Context, editErr error, rescore bool) {
	res := p.client.TakeChanges()
	if editErr != nil && !res.Changed() {
		return
	}
	p.observeChanges(res)
	if rescore && p.opts.Profile != nil {
		p.setReport(compliance.Score(p.client.Model(), p.opts.Profile))
	}
	p.publish(ctx, p.client.Model().View(), res)
}

// Status returns a copy of the poller state.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	if s.Compliant != nil {
		c := *s.Compliant
		s.Compliant = &c
	}
	return s
}

// Report returns the last compliance report, if a profile is configured
// and a poll has succeeded.
func (p *Poller) Report() (compliance.Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.report == nil {
		return compliance.Report{}, false
	}
	return *p.report, true
}

// observedEditor records and publishes enforcement edits. Scoring is left
// to the enforcement loop.
type observedEditor struct{ p *Poller }

func (e observedEditor) Edit(ctx context.Context, req balancer.EditRequest) error {
	err := e.p.editRoute(ctx, req)
	e.p.settle(ctx, err, false)
	return err
}
