package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/balmgr/internal/app"
	"github.com/MrSnakeDoc/balmgr/internal/config"
	"github.com/MrSnakeDoc/balmgr/internal/version"
)

// errNotCompliant makes `compliance` exit non-zero without an error line.
var errNotCompliant = errors.New("not compliant")

func main() {
	conn := &connFlags{ClientConfig: config.LoadClient(), url: envOr("BALMGR_URL", "")}
	if err := newRootCmd(conn).Execute(); err != nil {
		if !errors.Is(err, errNotCompliant) {
			fmt.Fprintln(os.Stderr, "❌", err.Error())
		}
		os.Exit(1)
	}
}

func newRootCmd(conn *connFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "balmgr",
		Short:         "Inspect and drive Apache mod_proxy_balancer balancer-manager pages",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	conn.register(root)

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the daemon: poll every BALMGR_ENDPOINTS page and serve the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.Serve()
			},
		},
		newShowCmd(conn),
		newEditCmd(conn),
		newComplianceCmd(conn),
		newEnforceCmd(conn),
	)
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
