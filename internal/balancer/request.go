package balancer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

// settings is the full set of values submitted for one worker.
type settings struct {
	factor     float64
	lbset      int
	routeRedir string
	statuses   map[domain.StatusName]bool
}

// newEditRequest builds the version specific edit request for route r.
func (c *Client) newEditRequest(ctx context.Context, v domain.Version, r *domain.Route, s settings) (*http.Request, error) {
	if v.Legacy() {
		return c.legacyEditRequest(ctx, r, s)
	}
	return c.formEditRequest(ctx, v, r, s)
}

// formEditRequest is the 2.4.x POST protocol.
func (c *Client) formEditRequest(ctx context.Context, v domain.Version, r *domain.Route, s settings) (*http.Request, error) {
	form := url.Values{}
	form.Set("w_lf", formatFactor(s.factor))
	form.Set("w_ls", strconv.Itoa(s.lbset))
	form.Set("w_wr", r.Name)
	form.Set("w_rr", s.routeRedir)

	for _, spec := range domain.StatusesFor(v) {
		if !spec.Mutable {
			continue
		}
		form.Set("w_status_"+spec.FormCode, boolDigit(s.statuses[spec.Name]))
	}

	form.Set("w", r.Worker)
	form.Set("b", r.Cluster().Name)
	form.Set("nonce", r.Nonce.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create edit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", redact(c.endpoint))
	return req, nil
}

// legacyEditRequest is the 2.2.x GET protocol; only the disabled flag
// can be toggled.
func (c *Client) legacyEditRequest(ctx context.Context, r *domain.Route, s settings) (*http.Request, error) {
	q := url.Values{}
	q.Set("lf", formatFactor(s.factor))
	q.Set("ls", strconv.Itoa(s.lbset))
	q.Set("wr", r.Name)
	q.Set("rr", s.routeRedir)
	if s.statuses[domain.StatusDisabled] {
		q.Set(domain.LegacyDisableCode, "Disable")
	} else {
		q.Set(domain.LegacyDisableCode, "Enable")
	}
	q.Set("w", r.Worker)
	q.Set("b", r.Cluster().Name)
	q.Set("nonce", r.Nonce.String())

	u := *c.endpoint
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create edit request: %w", err)
	}
	req.Header.Set("Referer", redact(c.endpoint))
	return req, nil
}

func formatFactor(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// sortedStatusNames gives edits a stable evaluation order.
func sortedStatusNames(m map[domain.StatusName]bool) []domain.StatusName {
	names := make([]domain.StatusName, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
