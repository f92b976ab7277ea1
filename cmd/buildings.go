package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/export"
	"github.com/sells-group/property-map/internal/filter"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/quality"
)

var buildingsCmd = &cobra.Command{
	Use:   "buildings",
	Short: "List, count and export the building set",
}

// -- buildings list --

var buildingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List buildings matching the tier and search filters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		set, visible, err := loadFiltered(cmd)
		if err != nil {
			return err
		}
		if len(visible) == 0 {
			fmt.Fprintln(os.Stderr, "No buildings match.")
			return nil
		}
		formatBuildings(cmd.OutOrStdout(), visible)
		fmt.Fprintf(os.Stderr, "%d of %d buildings (%s)\n", len(visible), len(set.Buildings), set.Origin)
		return nil
	},
}

// -- buildings histogram --

var buildingsHistogramCmd = &cobra.Command{
	Use:   "histogram",
	Short: "Count buildings per quality tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, visible, err := loadFiltered(cmd)
		if err != nil {
			return err
		}
		formatHistogram(cmd.OutOrStdout(), filter.Histogram(visible))
		return nil
	},
}

// -- buildings export --

var buildingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the filtered buildings to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, visible, err := loadFiltered(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		return export.SaveXLSX(out, visible)
	},
}

func init() {
	for _, c := range []*cobra.Command{buildingsListCmd, buildingsHistogramCmd, buildingsExportCmd} {
		c.Flags().String("tiers", "", "comma separated tiers to show, or \"all\" (default: all but unregistered)")
		c.Flags().String("search", "", "case-insensitive search over name, address, id, tenants and owner")
		c.Flags().String("from-xlsx", "", "read buildings from an exported workbook instead of the CRM")
	}
	buildingsExportCmd.Flags().String("out", "buildings.xlsx", "output workbook path")

	buildingsCmd.AddCommand(buildingsListCmd)
	buildingsCmd.AddCommand(buildingsHistogramCmd)
	buildingsCmd.AddCommand(buildingsExportCmd)
	rootCmd.AddCommand(buildingsCmd)
}

// loadFiltered loads the building set and applies the command's filters.
func loadFiltered(cmd *cobra.Command) (*building.Set, []model.Building, error) {
	if err := cfg.Validate("buildings"); err != nil {
		return nil, nil, err
	}
	tiers, _ := cmd.Flags().GetString("tiers")
	search, _ := cmd.Flags().GetString("search")
	fromXLSX, _ := cmd.Flags().GetString("from-xlsx")

	st, err := parseTiers(tiers)
	if err != nil {
		return nil, nil, err
	}
	st.Search = search

	sf, err := connectCRM()
	if err != nil {
		if !cfg.Salesforce.SampleFallback {
			return nil, nil, eris.Wrap(err, "buildings: connect crm")
		}
		zap.L().Warn("buildings: crm unavailable, using sample set", zap.Error(err))
	}
	set, err := buildingSource(sf, fromXLSX).Load(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	return set, filter.Apply(set.Buildings, st), nil
}

// parseTiers reads a comma separated tier list. Empty means the default
// selection; "all" enables every tier.
func parseTiers(s string) (filter.State, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return filter.NewState(), nil
	case strings.EqualFold(s, "all"):
		return filter.AllTiers(), nil
	}
	st := filter.State{Tiers: make(map[quality.Tier]bool)}
	for _, name := range splitList(s) {
		t, ok := quality.ParseTier(name)
		if !ok {
			return filter.State{}, eris.Errorf("buildings: unknown tier %q", name)
		}
		st.Tiers[t] = true
	}
	return st, nil
}

// formatBuildings writes a tabular list of buildings to out.
func formatBuildings(out io.Writer, bs []model.Building) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tADDRESS\tTIER\tSURFACE")
	for _, b := range bs {
		id := b.ID
		if id == "" {
			id = "-"
		}
		surface := "-"
		if b.Surface != nil {
			surface = fmt.Sprintf("%.0f", *b.Surface)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, b.Name, b.Address(), quality.Classify(b).Label(), surface)
	}
	_ = w.Flush()
}

// formatHistogram writes per-tier counts in display order.
func formatHistogram(out io.Writer, hist map[quality.Tier]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIER\tCOLOR\tCOUNT")
	total := 0
	for _, s := range quality.Styles() {
		n := hist[s.Tier]
		total += n
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", s.Label, s.Color, n)
	}
	_, _ = fmt.Fprintf(w, "Total\t\t%d\n", total)
	_ = w.Flush()
}
