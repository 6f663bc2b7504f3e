package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/config"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
	"github.com/MrSnakeDoc/balmgr/internal/transport"
	"github.com/MrSnakeDoc/balmgr/internal/version"
)

// connFlags are the persistent flags shared by every client command.
type connFlags struct {
	config.ClientConfig
	url     string
	out     string
	verbose bool

	// doer replaces the HTTP client in tests.
	doer balancer.Doer
}

func (c *connFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&c.url, "url", c.url, "balancer-manager URL (env BALMGR_URL)")
	f.StringVar(&c.Username, "username", c.Username, "basic auth user (env BALMGR_USERNAME)")
	f.StringVar(&c.Password, "password", c.Password, "basic auth password (env BALMGR_PASSWORD)")
	f.BoolVar(&c.InsecureSkipVerify, "insecure", c.InsecureSkipVerify, "skip TLS certificate verification")
	f.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "per request timeout")
	f.StringVar(&c.out, "out", "text", "output format: text|json")
	f.BoolVarP(&c.verbose, "verbose", "v", false, "log requests to stderr")
}

// client builds a balancer client and loads the page once.
func (c *connFlags) client(ctx context.Context) (*balancer.Client, error) {
	if c.url == "" {
		return nil, fmt.Errorf("--url is required (or BALMGR_URL)")
	}
	if c.out != "text" && c.out != "json" {
		return nil, fmt.Errorf("--out must be text or json, got %q", c.out)
	}

	doer := c.doer
	if doer == nil {
		doer = transport.New(transport.Options{
			Username:           c.Username,
			Password:           c.Password,
			InsecureSkipVerify: c.InsecureSkipVerify,
			Timeout:            c.RequestTimeout,
			UserAgent:          version.UserAgent(),
		})
	}

	log := logger.NewNop()
	if c.verbose {
		log = logger.New("debug", true)
	}

	client, err := balancer.New(c.url, balancer.WithDoer(doer), balancer.WithLogger(log))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	if _, err := client.Update(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *connFlags) timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return c.RequestTimeout
}

func (c *connFlags) json() bool { return c.out == "json" }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
