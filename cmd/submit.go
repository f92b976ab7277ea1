package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-map/internal/property"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a CRM property from a cadastral point",
	Long:  "Resolves the point, builds the property record with the chosen categories and inserts it into the CRM. With --dry-run the record is printed instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		mode := "submit"
		if dryRun {
			mode = "resolve"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}
		ctx := cmd.Context()

		point, _ := cmd.Flags().GetString("point")
		primary, _ := cmd.Flags().GetString("category")
		sub, _ := cmd.Flags().GetString("sub")
		req := property.Request{
			PointID: point,
			Primary: splitList(primary),
			Sub:     splitList(sub),
		}

		metrics, err := initMetrics()
		if err != nil {
			return err
		}
		cad, err := initCadastre(ctx, metrics)
		if err != nil {
			return err
		}
		defer cad.Close()

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}

		rctx, cancel := withResolveTimeout(ctx)
		defer cancel()
		out := cmd.OutOrStdout()

		if dryRun {
			p, err := property.NewService(cad.Aggregator, catalog, nil).Preview(rctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, p.Result.Summary)
			fmt.Fprintln(out)
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(p.Result.Record)
		}

		sf, err := connectCRM()
		if err != nil {
			return eris.Wrap(err, "submit: connect crm")
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := property.NewService(cad.Aggregator, catalog, crmCreator(sf),
			property.WithSaver(st),
			property.WithMetrics(metrics),
		)
		s, err := svc.Submit(rctx, req)
		if err != nil {
			if s != nil {
				fmt.Fprintf(out, "submission %s logged as %s\n", s.ID, s.Status)
			}
			return err
		}
		fmt.Fprintf(out, "created %s (%s) as %s\n", s.Name, s.PointID, s.CRMID)
		if len(s.Warnings) > 0 {
			fmt.Fprintf(out, "%d lookup warning(s):\n", len(s.Warnings))
			for _, w := range s.Warnings {
				fmt.Fprintf(out, "  - %s\n", w)
			}
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().String("point", "", "cadastral point id (required)")
	submitCmd.Flags().String("category", "", "comma separated primary category ids")
	submitCmd.Flags().String("sub", "", "comma separated sub-category ids")
	submitCmd.Flags().Bool("dry-run", false, "build and print the record without sending it")
	_ = submitCmd.MarkFlagRequired("point")
	rootCmd.AddCommand(submitCmd)
}
