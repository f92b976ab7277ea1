package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/db"
	"github.com/sells-group/property-map/internal/export"
	"github.com/sells-group/property-map/internal/geo"
	"github.com/sells-group/property-map/internal/geospatial"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/monitoring"
	"github.com/sells-group/property-map/internal/property"
	"github.com/sells-group/property-map/internal/record"
	"github.com/sells-group/property-map/internal/resilience"
	"github.com/sells-group/property-map/internal/store"
	"github.com/sells-group/property-map/pkg/arcgis"
	sfpkg "github.com/sells-group/property-map/pkg/salesforce"
)

// importTablePrefix prefixes the PostGIS tables written by "layers import".
const importTablePrefix = "cadastre_"

// cadastreEnv is the cadastral resolution stack.
type cadastreEnv struct {
	Aggregator *cadastre.Aggregator
	Breakers   *resilience.Breakers
	closers    []func()
}

// Close releases any database pool the stack opened.
func (e *cadastreEnv) Close() {
	for _, fn := range e.closers {
		fn()
	}
}

func initMetrics() (*monitoring.Metrics, error) {
	return monitoring.NewMetrics(prometheus.DefaultRegisterer)
}

func cadastreConfig() cadastre.Config {
	c := cfg.Cadastre
	return cadastre.Config{
		Layers: cadastre.Layers{
			Points:     c.PointsLayer,
			Buildings:  c.BuildingsLayer,
			Parcels:    c.ParcelsLayer,
			Submarkets: c.SubmarketsLayer,
		},
		Keys: cadastre.Keys{
			PointID:     c.PointIDField,
			BuildingRef: c.BuildingRefField,
			BuildingID:  c.BuildingIDField,
			ParcelRef:   c.ParcelRefField,
			ParcelID:    c.ParcelIDField,
		},
		SubmarketBuffer: c.SubmarketBuffer,
	}
}

// resolveTimeout bounds one point resolution.
func resolveTimeout() time.Duration {
	if cfg.Cadastre.TimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(cfg.Cadastre.TimeoutSecs) * time.Second
}

// withResolveTimeout bounds ctx by the configured resolution timeout.
func withResolveTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := resolveTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// postgisTables maps each cadastral layer to its table. Unmapped layers use
// the table "layers import" writes for them.
func postgisTables(layers cadastre.Layers) map[string]geospatial.Table {
	out := make(map[string]geospatial.Table)
	for _, name := range []string{layers.Points, layers.Buildings, layers.Parcels, layers.Submarkets} {
		table := cfg.PostGIS.Tables[name]
		if table == "" {
			table = importTablePrefix + name
		}
		out[name] = importedTable(table)
	}
	return out
}

func importedTable(name string) geospatial.Table {
	return geospatial.Table{Name: name, Geometry: "geom", Attributes: "attrs"}
}

// initCadastre builds the feature source named by cadastre.source, guards it
// with per-layer breakers and retries, and routes the submarkets layer to a
// local file when one is configured.
func initCadastre(ctx context.Context, metrics *monitoring.Metrics) (*cadastreEnv, error) {
	ccfg := cadastreConfig()
	env := &cadastreEnv{}

	var source resilience.Querier
	switch cfg.Cadastre.Source {
	case "arcgis":
		opts := []arcgis.Option{
			arcgis.WithHTTPClient(&http.Client{Timeout: resolveTimeout()}),
			arcgis.WithRateLimit(cfg.ArcGIS.RateLimit, cfg.ArcGIS.Burst),
		}
		if cfg.ArcGIS.Token != "" {
			opts = append(opts, arcgis.WithToken(cfg.ArcGIS.Token))
		}
		for name, url := range cfg.ArcGIS.Layers {
			opts = append(opts, arcgis.WithLayer(name, url))
		}
		source = arcgis.New(opts...)
	case "postgis":
		pool, err := db.Open(ctx, cfg.PostGIS.DatabaseURL, &db.PoolConfig{MaxConns: cfg.PostGIS.MaxConns})
		if err != nil {
			return nil, eris.Wrap(err, "cadastre: open postgis")
		}
		env.closers = append(env.closers, pool.Close)
		q, err := geospatial.NewQuerier(pool, postgisTables(ccfg.Layers))
		if err != nil {
			env.Close()
			return nil, err
		}
		source = q
	default:
		return nil, eris.Errorf("cadastre: unknown source %q", cfg.Cadastre.Source)
	}

	env.Breakers = resilience.NewBreakers(resilience.BreakerConfig{
		Threshold: cfg.Cadastre.BreakerThreshold,
		Cooldown:  time.Duration(cfg.Cadastre.BreakerCooldownMs) * time.Millisecond,
		OnChange: func(name string, from, to resilience.State) {
			metrics.BreakerChanged(name, from, to)
			zap.L().Warn("cadastre: breaker state changed",
				zap.String("component", "cadastre"),
				zap.String("layer", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	backoff := resilience.DefaultBackoff()
	if cfg.Cadastre.RetryAttempts > 0 {
		backoff.Attempts = cfg.Cadastre.RetryAttempts
	}
	var querier cadastre.FeatureQuerier = resilience.Guard(source, env.Breakers, backoff)

	if local, err := loadSubmarketLayer(ccfg.Layers.Submarkets); err != nil {
		env.Close()
		return nil, err
	} else if local != nil {
		querier = cadastre.NewLayerRouter(querier).Route(ccfg.Layers.Submarkets, geo.NewStore(local))
	}

	env.Aggregator = cadastre.NewAggregator(querier,
		cadastre.WithConfig(ccfg),
		cadastre.WithRecorder(metrics),
	)
	return env, nil
}

// loadSubmarketLayer reads the submarket polygons from a local shapefile or
// GeoJSON file. It returns nil when neither is configured.
func loadSubmarketLayer(name string) (*geo.Layer, error) {
	switch {
	case cfg.Cadastre.SubmarketShapefile != "":
		return geo.LoadShapefile(cfg.Cadastre.SubmarketShapefile, name)
	case cfg.Cadastre.SubmarketGeoJSON != "":
		return geo.LoadGeoJSON(cfg.Cadastre.SubmarketGeoJSON, name)
	default:
		return nil, nil
	}
}

// connectCRM opens a Salesforce session, or returns nil when none is
// configured.
func connectCRM() (sfpkg.Client, error) {
	if !cfg.Salesforce.Configured() {
		return nil, nil
	}
	return sfpkg.Connect(sfpkg.Credentials{
		LoginURL: cfg.Salesforce.LoginURL,
		Username: cfg.Salesforce.Username,
		ClientID: cfg.Salesforce.ClientID,
		KeyPath:  cfg.Salesforce.KeyPath,
	}, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit))
}

// buildingSource picks where buildings come from: an xlsx file when given,
// else the CRM, else the embedded sample set.
func buildingSource(sf sfpkg.Client, xlsxPath string) *building.Source {
	fallback := building.WithFallback(cfg.Salesforce.SampleFallback)
	switch {
	case xlsxPath != "":
		return building.NewSource(export.FileFetcher(xlsxPath), building.WithFallback(false))
	case sf != nil:
		return building.NewSource(building.FetchFunc(func(ctx context.Context) ([]model.Building, error) {
			return sfpkg.FetchBuildings(ctx, sf, cfg.Salesforce.BuildingObject, cfg.Salesforce.AssetClasses)
		}), fallback)
	default:
		return building.NewSource(nil, fallback)
	}
}

// crmCreator inserts property records into the configured object.
func crmCreator(sf sfpkg.Client) property.Creator {
	if sf == nil {
		return nil
	}
	return property.CreatorFunc(func(ctx context.Context, rec map[string]any) (string, error) {
		return sfpkg.CreateProperty(ctx, sf, cfg.Salesforce.PropertyObject, rec)
	})
}

func loadCatalog() (*record.Catalog, error) {
	if cfg.Categories.Path == "" {
		return record.DefaultCatalog(), nil
	}
	return record.LoadCatalog(cfg.Categories.Path)
}

// openStore opens and migrates the submission log.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &db.PoolConfig{MaxConns: cfg.Store.MaxConns})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
