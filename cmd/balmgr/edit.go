package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

type editFlags struct {
	cluster    string
	routes     []string
	lbset      int
	set        []string
	factor     float64
	moveTo     int
	routeRedir string
	force      bool
	keepGoing  bool
}

func newEditCmd(conn *connFlags) *cobra.Command {
	f := &editFlags{}
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change route statuses and settings",
		Example: `  balmgr edit --cluster app --route app1 --set disabled=true
  balmgr edit --cluster app --route app1 --route app2 --set draining_mode=false
  balmgr edit --cluster app --lbset 1 --set hot_standby=true
  balmgr edit --cluster app --route app1 --factor 2.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseSet(f.set)
			if err != nil {
				return err
			}
			if err := f.validate(cmd); err != nil {
				return err
			}

			client, err := conn.client(cmd.Context())
			if err != nil {
				return err
			}

			fan := balancer.FanOut{Statuses: statuses, Force: f.force}
			if f.keepGoing {
				fan.Handler = func(route string, err error) error {
					fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %s: %v\n", route, err)
					return nil
				}
			}

			switch {
			case cmd.Flags().Changed("lbset"):
				err = client.EditLBSet(cmd.Context(), f.cluster, f.lbset, fan)
			case len(f.routes) > 1:
				err = client.EditRoutes(cmd.Context(), f.cluster, f.routes, fan)
			default:
				req := balancer.EditRequest{
					Cluster:  f.cluster,
					Route:    f.routes[0],
					Statuses: statuses,
					Force:    f.force,
				}
				if cmd.Flags().Changed("factor") {
					req.Factor = &f.factor
				}
				if cmd.Flags().Changed("move-to-lbset") {
					req.LBSet = &f.moveTo
				}
				if cmd.Flags().Changed("route-redir") {
					req.RouteRedir = &f.routeRedir
				}
				err = client.Edit(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			view := client.Model().View()
			view.Clusters = filterClusters(view.Clusters, f.cluster)
			if conn.json() {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			return printView(cmd.OutOrStdout(), view)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.cluster, "cluster", "", "cluster name (required)")
	fl.StringArrayVar(&f.routes, "route", nil, "route name or worker URL, repeatable")
	fl.IntVar(&f.lbset, "lbset", 0, "edit every route of this lbset")
	fl.StringArrayVar(&f.set, "set", nil, "status=bool, repeatable (ex: disabled=true)")
	fl.Float64Var(&f.factor, "factor", 0, "load factor (single route)")
	fl.IntVar(&f.moveTo, "move-to-lbset", 0, "move the route to this lbset (single route)")
	fl.StringVar(&f.routeRedir, "route-redir", "", "route redirection (single route)")
	fl.BoolVar(&f.force, "force", false, "allow taking the last eligible route out of rotation")
	fl.BoolVar(&f.keepGoing, "keep-going", false, "report fan-out failures as warnings instead of failing")
	_ = cmd.MarkFlagRequired("cluster")
	cmd.MarkFlagsMutuallyExclusive("route", "lbset")

	return cmd
}

func (f *editFlags) validate(cmd *cobra.Command) error {
	if len(f.routes) == 0 && !cmd.Flags().Changed("lbset") {
		return fmt.Errorf("one of --route or --lbset is required")
	}
	single := cmd.Flags().Changed("factor") || cmd.Flags().Changed("move-to-lbset") || cmd.Flags().Changed("route-redir")
	if single && len(f.routes) != 1 {
		return fmt.Errorf("--factor, --move-to-lbset and --route-redir need exactly one --route")
	}
	if !single && len(f.set) == 0 {
		return fmt.Errorf("nothing to change: use --set, --factor, --move-to-lbset or --route-redir")
	}
	return nil
}

// parseSet turns "name=bool" pairs into a status map.
func parseSet(pairs []string) (map[domain.StatusName]bool, error) {
	out := make(map[domain.StatusName]bool, len(pairs))
	for _, p := range pairs {
		rawName, rawValue, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want name=true|false", p)
		}
		name, err := domain.ParseStatusName(rawName)
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w", p, err)
		}
		value, err := strconv.ParseBool(strings.TrimSpace(rawValue))
		if err != nil {
			return nil, fmt.Errorf("--set %q: want name=true|false", p)
		}
		out[name] = value
	}
	return out, nil
}
