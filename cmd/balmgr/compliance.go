package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/balmgr/internal/compliance"
)

func newComplianceCmd(conn *connFlags) *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Score the page against a desired-state profile (exit 1 when not compliant)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := compliance.LoadProfile(profilePath)
			if err != nil {
				return err
			}
			client, err := conn.client(cmd.Context())
			if err != nil {
				return err
			}

			report := compliance.Score(client.Model(), profile)
			if err := printReport(cmd.OutOrStdout(), conn.json(), report); err != nil {
				return err
			}
			if !report.Compliant {
				return errNotCompliant
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", envOr("BALMGR_PROFILE_FILE", ""), "profile YAML file (env BALMGR_PROFILE_FILE)")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newEnforceCmd(conn *connFlags) *cobra.Command {
	var (
		profilePath string
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "enforce",
		Short: "Edit every non-compliant route until the page matches the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := compliance.LoadProfile(profilePath)
			if err != nil {
				return err
			}
			client, err := conn.client(cmd.Context())
			if err != nil {
				return err
			}

			report, enforceErr := compliance.Enforce(cmd.Context(), client, client.Model(), profile,
				compliance.EnforceOptions{Force: force})
			if err := printReport(cmd.OutOrStdout(), conn.json(), report); err != nil {
				return err
			}

			var nc *compliance.NotConvergedError
			if errors.As(enforceErr, &nc) {
				for _, e := range nc.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %v\n", e)
				}
				return fmt.Errorf("%d route(s) still not compliant", len(nc.Remaining))
			}
			return enforceErr
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", envOr("BALMGR_PROFILE_FILE", ""), "profile YAML file (env BALMGR_PROFILE_FILE)")
	cmd.Flags().BoolVar(&force, "force", false, "allow taking the last eligible route out of rotation")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func printReport(w io.Writer, asJSON bool, report compliance.Report) error {
	if asJSON {
		return writeJSON(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tROUTE\tCOMPLIANT\tDETAILS")
	for _, rr := range report.Routes {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", rr.Cluster, orDash(rr.Route), rr.Compliant, details(rr))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if report.Compliant {
		fmt.Fprintln(w, "✅ compliant")
	} else {
		fmt.Fprintf(w, "❌ %d route(s) not compliant\n", len(report.NonCompliant()))
	}
	return nil
}

func details(rr compliance.RouteReport) string {
	if rr.Missing {
		return "missing"
	}
	var diffs []string
	for _, s := range rr.Statuses {
		switch {
		case s.Absent:
			diffs = append(diffs, string(s.Name)+" unavailable")
		case !s.Compliant:
			diffs = append(diffs, fmt.Sprintf("%s=%t want %t", s.Name, s.Observed, s.Desired))
		}
	}
	if len(diffs) == 0 {
		return "-"
	}
	return strings.Join(diffs, ", ")
}
