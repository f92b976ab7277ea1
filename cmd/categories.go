package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/property-map/internal/record"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Print the property category catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		formatCatalog(cmd.OutOrStdout(), catalog)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

// formatCatalog writes the catalog as an indented tree of "id  label" lines.
func formatCatalog(out io.Writer, c *record.Catalog) {
	for _, cat := range c.Categories() {
		_, _ = fmt.Fprintf(out, "%s  %s\n", cat.ID, cat.Label)
		for _, sub := range cat.Subcategories {
			_, _ = fmt.Fprintf(out, "  %s  %s\n", sub.ID, sub.Label)
		}
	}
}
