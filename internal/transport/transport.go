// Package transport builds the HTTP client used to talk to balancer-manager
// pages: basic auth, static headers and a TLS toggle, no redirects.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

type Options struct {
	Username           string
	Password           string
	InsecureSkipVerify bool
	Timeout            time.Duration // 0 => 10s
	Headers            map[string]string
	UserAgent          string
}

// New returns an *http.Client configured from opts. Redirect responses are
// returned as-is to the caller.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: timeout,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, // #nosec G402 -- opt-in for self-signed admin vhosts
			MinVersion:         tls.VersionTLS12,
		},
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &roundTripper{
			next:      base,
			username:  opts.Username,
			password:  opts.Password,
			headers:   opts.Headers,
			userAgent: opts.UserAgent,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type roundTripper struct {
	next      http.RoundTripper
	username  string
	password  string
	headers   map[string]string
	userAgent string
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	r := req.Clone(req.Context())
	for k, v := range rt.headers {
		r.Header.Set(k, v)
	}
	if rt.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", rt.userAgent)
	}
	if rt.username != "" || rt.password != "" {
		r.SetBasicAuth(rt.username, rt.password)
	}
	return rt.next.RoundTrip(r)
}
