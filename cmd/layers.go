package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/db"
	"github.com/sells-group/property-map/internal/geo"
	"github.com/sells-group/property-map/internal/geospatial"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Inspect and load cadastral feature layers",
}

// -- layers list --

var layersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show where each cadastral layer is read from",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatLayerSources(cmd.OutOrStdout(), layerSources())
		return nil
	},
}

// -- layers import --

var layersImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a shapefile or GeoJSON layer into PostGIS",
	Long:  "Reads a layer from a local .shp, .geojson or .json file, or downloads a zipped shapefile over HTTP(S) or FTP, and replaces the contents of its PostGIS table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("layer")
		file, _ := cmd.Flags().GetString("file")
		url, _ := cmd.Flags().GetString("url")
		table, _ := cmd.Flags().GetString("table")
		if table == "" {
			table = importTablePrefix + name
		}

		if url != "" {
			dir, err := os.MkdirTemp("", "property-map-layer-")
			if err != nil {
				return eris.Wrap(err, "layers import: temp dir")
			}
			defer os.RemoveAll(dir) //nolint:errcheck

			file, err = geo.FetchShapefile(ctx, &http.Client{Timeout: 5 * time.Minute}, url, dir)
			if err != nil {
				return err
			}
		}
		if file == "" {
			return eris.New("layers import: --file or --url is required")
		}

		layer, err := readLayer(file, name)
		if err != nil {
			return err
		}

		pool, err := db.Open(ctx, cfg.PostGIS.DatabaseURL, &db.PoolConfig{MaxConns: cfg.PostGIS.MaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()

		t, n, err := geospatial.ImportLayer(ctx, pool, table, layer)
		if err != nil {
			return err
		}
		q, err := geospatial.NewQuerier(pool, map[string]geospatial.Table{name: t})
		if err != nil {
			return err
		}
		if err := q.EnsureIndexes(ctx); err != nil {
			return err
		}

		zap.L().Info("layer imported",
			zap.String("layer", name),
			zap.String("table", t.Name),
			zap.Int64("rows", n),
			zap.Int("skipped", layer.Len()-int(n)),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d features into %s\n", n, t.Name)
		return nil
	},
}

func init() {
	layersImportCmd.Flags().String("layer", "", "layer name, e.g. points, buildings, parcels, submarkets (required)")
	layersImportCmd.Flags().String("file", "", "local .shp, .geojson or .json file")
	layersImportCmd.Flags().String("url", "", "http(s):// or ftp:// URL of a zipped shapefile")
	layersImportCmd.Flags().String("table", "", "target table (default cadastre_<layer>)")
	_ = layersImportCmd.MarkFlagRequired("layer")

	layersCmd.AddCommand(layersListCmd)
	layersCmd.AddCommand(layersImportCmd)
	rootCmd.AddCommand(layersCmd)
}

// readLayer loads a layer file by extension.
func readLayer(path, name string) (*geo.Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return geo.LoadShapefile(path, name)
	case ".geojson", ".json":
		return geo.LoadGeoJSON(path, name)
	default:
		return nil, eris.Errorf("layers import: unsupported file type %q", filepath.Ext(path))
	}
}

// layerSource is where one cadastral layer is read from.
type layerSource struct {
	Layer  string
	Source string
	Target string
}

// layerSources lists the four cadastral layers and their configured origin.
func layerSources() []layerSource {
	ccfg := cadastreConfig()
	tables := postgisTables(ccfg.Layers)
	names := []string{ccfg.Layers.Points, ccfg.Layers.Buildings, ccfg.Layers.Parcels, ccfg.Layers.Submarkets}

	out := make([]layerSource, 0, len(names))
	for _, name := range names {
		src := layerSource{Layer: name, Source: cfg.Cadastre.Source}
		switch cfg.Cadastre.Source {
		case "arcgis":
			src.Target = cfg.ArcGIS.Layers[name]
		case "postgis":
			src.Target = tables[name].Name
		}
		if name == ccfg.Layers.Submarkets {
			switch {
			case cfg.Cadastre.SubmarketShapefile != "":
				src.Source, src.Target = "shapefile", cfg.Cadastre.SubmarketShapefile
			case cfg.Cadastre.SubmarketGeoJSON != "":
				src.Source, src.Target = "geojson", cfg.Cadastre.SubmarketGeoJSON
			}
		}
		if src.Target == "" {
			src.Target = "-"
		}
		out = append(out, src)
	}
	return out
}

// formatLayerSources writes the layer table to out, sorted by layer name.
func formatLayerSources(out io.Writer, sources []layerSource) {
	sort.Slice(sources, func(i, j int) bool { return sources[i].Layer < sources[j].Layer })
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LAYER\tSOURCE\tTARGET")
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Layer, s.Source, s.Target)
	}
	_ = w.Flush()
}
