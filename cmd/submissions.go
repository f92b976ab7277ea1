package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-map/internal/store"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect the property submission log",
}

// -- submissions list --

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List property submissions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		point, _ := cmd.Flags().GetString("point")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.Filter{
			PointID: point,
			Status:  store.Status(status),
			Limit:   limit,
		}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		subs, err := st.ListSubmissions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "submissions list")
		}

		if len(subs) == 0 {
			fmt.Fprintln(os.Stderr, "No submissions found.")
			return nil
		}

		formatSubmissions(cmd.OutOrStdout(), subs)
		return nil
	},
}

// -- submissions show --

var submissionsShowCmd = &cobra.Command{
	Use:   "show <submission-id>",
	Short: "Show the full record of a submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sub, err := st.GetSubmission(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "submissions show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sub)
	},
}

func init() {
	submissionsListCmd.Flags().String("status", "", "filter by status (created, failed)")
	submissionsListCmd.Flags().String("point", "", "filter by cadastral point id")
	submissionsListCmd.Flags().Duration("since", 0, "only submissions newer than this (e.g. 24h)")
	submissionsListCmd.Flags().Int("limit", store.DefaultListLimit, "max number of submissions to display")

	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsShowCmd)
	rootCmd.AddCommand(submissionsCmd)
}

// formatSubmissions writes a tabular list of submissions to out.
func formatSubmissions(out io.Writer, subs []store.Submission) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPOINT\tNAME\tSTATUS\tCRM_ID\tWARNINGS\tCREATED")
	for _, s := range subs {
		crmID := s.CRMID
		if crmID == "" {
			crmID = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.PointID, s.Name, s.Status, crmID, len(s.Warnings),
			s.CreatedAt.Format(time.RFC3339),
		)
	}
	_ = w.Flush()
}
