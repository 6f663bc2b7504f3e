package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

func newShowCmd(conn *connFlags) *cobra.Command {
	var cluster string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print clusters and routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := conn.client(cmd.Context())
			if err != nil {
				return err
			}

			view := client.Model().View()
			if cluster != "" {
				view.Clusters = filterClusters(view.Clusters, cluster)
				if len(view.Clusters) == 0 {
					return &domain.NotFoundError{Kind: "cluster", Name: cluster}
				}
			}

			if conn.json() {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			return printView(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&cluster, "cluster", "", "only show this cluster")
	return cmd
}

func filterClusters(clusters []domain.ClusterView, name string) []domain.ClusterView {
	for _, c := range clusters {
		if c.Name == name {
			return []domain.ClusterView{c}
		}
	}
	return nil
}

func printView(w io.Writer, v domain.View) error {
	fmt.Fprintf(w, "httpd %s", v.HTTPDVersion)
	if v.BuildDate != nil {
		fmt.Fprintf(w, " built %s", v.BuildDate.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)

	for _, c := range v.Clusters {
		active := "-"
		if c.ActiveLBSet != nil {
			active = strconv.Itoa(*c.ActiveLBSet)
		}
		fmt.Fprintf(w, "\nbalancer://%s  method=%s eligible=%d active_lbset=%s standby=%t\n",
			c.Name, c.Method, c.EligibleRouteCount, active, c.Standby)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ROUTE\tWORKER\tLBSET\tFACTOR\tSTATUS\tACCEPTING\tELECTED\tTO\tFROM")
		for _, r := range c.Routes {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%s\t%t\t%d\t%d\t%d\n",
				orDash(r.Name), r.Worker, r.LBSet, r.Factor, statusList(r.Statuses),
				r.AcceptingRequests, r.Elected, r.To, r.From)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// statusList renders the set flags in a stable order.
func statusList(statuses map[domain.StatusName]bool) string {
	var on []string
	for _, name := range domain.KnownStatusNames() {
		if statuses[name] {
			on = append(on, string(name))
		}
	}
	if len(on) == 0 {
		return "-"
	}
	return strings.Join(on, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
