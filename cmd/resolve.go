package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/property-map/internal/record"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <point-id>",
	Short: "Resolve a cadastral point into its building, parcel and submarket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		ctx := cmd.Context()

		metrics, err := initMetrics()
		if err != nil {
			return err
		}
		cad, err := initCadastre(ctx, metrics)
		if err != nil {
			return err
		}
		defer cad.Close()

		rctx, cancel := withResolveTimeout(ctx)
		defer cancel()

		agg, err := cad.Aggregator.Resolve(rctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if resolveJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(agg)
		}

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		res, err := record.NewBuilder(record.WithCatalog(catalog)).Build(agg, nil, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Summary)
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the raw aggregate as JSON")
	rootCmd.AddCommand(resolveCmd)
}
