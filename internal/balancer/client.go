// Package balancer drives one balancer-manager endpoint: it fetches and
// reconciles the page, and submits verified status edits.
package balancer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
	"github.com/MrSnakeDoc/balmgr/internal/sources/balancerpage"
	"github.com/MrSnakeDoc/balmgr/internal/utils"
)

// maxPageSize caps how much of a response body is read.
const maxPageSize = 8 << 20

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client owns the live model of one endpoint. Update and Edit are
// serialised; readers use Model().View() concurrently.
type Client struct {
	mu sync.Mutex

	name       string
	endpoint   *url.URL
	doer       Doer
	exec       Executor
	reconciler *reconcile.Reconciler
	model      *domain.BalancerManager
	logger     logger.Logger
	now        func() time.Time

	// pending collects changes picked up outside Update, from the initial
	// load of an edit and from edit responses.
	pending reconcile.Result
}

// Option configures a Client.
type Option func(*Client)

// WithName sets the endpoint name used in logs and metrics. Defaults to the host.
func WithName(name string) Option { return func(c *Client) { c.name = name } }

// WithDoer sets the HTTP transport. Defaults to http.DefaultClient.
func WithDoer(d Doer) Option { return func(c *Client) { c.doer = d } }

// WithExecutor sets where parsing runs. Defaults to InlineExecutor.
func WithExecutor(e Executor) Option { return func(c *Client) { c.exec = e } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(c *Client) { c.logger = l } }

// WithClock overrides the extraction timestamp source.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// New creates a client for the balancer-manager page at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		name:     u.Host,
		endpoint: u,
		doer:     http.DefaultClient,
		exec:     InlineExecutor{},
		model:    domain.NewBalancerManager(),
		logger:   logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	c.logger = logger.With(c.logger, logger.String("endpoint", c.name))
	c.reconciler = reconcile.NewReconciler(c.logger)

	return c, nil
}

// Name returns the endpoint name.
func (c *Client) Name() string { return c.name }

// Endpoint returns the balancer-manager URL without credentials or query.
func (c *Client) Endpoint() string { return redact(c.endpoint) }

// Model returns the live model. Entity pointers obtained from it stay valid
// across updates; concurrent readers should use View.
func (c *Client) Model() *domain.BalancerManager { return c.model }

// Update fetches the page and reconciles it into the live model. The result
// also carries changes seen by edits since the last Update or TakeChanges.
func (c *Client) Update(ctx context.Context) (reconcile.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.update(ctx)
	if err != nil {
		return res, err
	}
	res = c.pending.Merge(res)
	c.pending = reconcile.Result{}
	return res, nil
}

// TakeChanges returns and clears the changes reconciled by edits since the
// last Update or TakeChanges.
func (c *Client) TakeChanges() reconcile.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.pending
	c.pending = reconcile.Result{}
	return res
}

func (c *Client) update(ctx context.Context) (reconcile.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.send(req)
	if err != nil {
		return reconcile.Result{}, err
	}

	return c.ingest(ctx, body)
}

// ingest parses body on the executor and reconciles the snapshot.
func (c *Client) ingest(ctx context.Context, body []byte) (reconcile.Result, error) {
	var (
		snap     *domain.BalancerManager
		parseErr error
	)
	at := c.now()
	if err := c.exec.Execute(ctx, func() {
		snap, parseErr = balancerpage.Parse(bytes.NewReader(body), at)
	}); err != nil {
		return reconcile.Result{}, err
	}
	if parseErr != nil {
		return reconcile.Result{}, parseErr
	}

	res := c.reconciler.Apply(c.model, snap)

	c.logger.Debug("balancer-manager page reconciled",
		logger.String("httpd_version", snap.HTTPDVersion.String()),
		logger.Int("clusters", len(snap.Clusters)))

	return res, nil
}

// send performs req and returns the body of a 2xx response.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Method: req.Method, URL: redact(req.URL), Err: err}
	}
	defer utils.MustClose(resp.Body, c.logger, "response body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
		return nil, &domain.TransportError{Method: req.Method, URL: redact(req.URL), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, &domain.TransportError{Method: req.Method, URL: redact(req.URL), Err: err}
	}
	return body, nil
}

// redact drops credentials and the nonce carrying query from logged URLs.
func redact(u *url.URL) string {
	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	return clean.String()
}
