package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Cadastre   CadastreConfig   `yaml:"cadastre" mapstructure:"cadastre"`
	ArcGIS     ArcGISConfig     `yaml:"arcgis" mapstructure:"arcgis"`
	PostGIS    PostGISConfig    `yaml:"postgis" mapstructure:"postgis"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Categories CategoriesConfig `yaml:"categories" mapstructure:"categories"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Trace      TraceConfig      `yaml:"trace" mapstructure:"trace"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig configures the submission log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// SalesforceConfig holds Salesforce JWT auth settings and the objects the
// map reads from and writes to.
type SalesforceConfig struct {
	ClientID       string   `yaml:"client_id" mapstructure:"client_id"`
	Username       string   `yaml:"username" mapstructure:"username"`
	KeyPath        string   `yaml:"key_path" mapstructure:"key_path"`
	LoginURL       string   `yaml:"login_url" mapstructure:"login_url"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	BuildingObject string   `yaml:"building_object" mapstructure:"building_object"`
	PropertyObject string   `yaml:"property_object" mapstructure:"property_object"`
	AssetClasses   []string `yaml:"asset_classes" mapstructure:"asset_classes"`
	SampleFallback bool     `yaml:"sample_fallback" mapstructure:"sample_fallback"`
}

// Configured reports whether enough is set to open a CRM session.
func (c SalesforceConfig) Configured() bool {
	return c.ClientID != "" && c.Username != "" && c.KeyPath != ""
}

// CadastreConfig selects the feature source and names its layers and keys.
type CadastreConfig struct {
	Source             string  `yaml:"source" mapstructure:"source"`
	PointsLayer        string  `yaml:"points_layer" mapstructure:"points_layer"`
	BuildingsLayer     string  `yaml:"buildings_layer" mapstructure:"buildings_layer"`
	ParcelsLayer       string  `yaml:"parcels_layer" mapstructure:"parcels_layer"`
	SubmarketsLayer    string  `yaml:"submarkets_layer" mapstructure:"submarkets_layer"`
	PointIDField       string  `yaml:"point_id_field" mapstructure:"point_id_field"`
	BuildingRefField   string  `yaml:"building_ref_field" mapstructure:"building_ref_field"`
	BuildingIDField    string  `yaml:"building_id_field" mapstructure:"building_id_field"`
	ParcelRefField     string  `yaml:"parcel_ref_field" mapstructure:"parcel_ref_field"`
	ParcelIDField      string  `yaml:"parcel_id_field" mapstructure:"parcel_id_field"`
	SubmarketBuffer    float64 `yaml:"submarket_buffer" mapstructure:"submarket_buffer"`
	SubmarketShapefile string  `yaml:"submarket_shapefile" mapstructure:"submarket_shapefile"`
	SubmarketGeoJSON   string  `yaml:"submarket_geojson" mapstructure:"submarket_geojson"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerThreshold   int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownMs  int     `yaml:"breaker_cooldown_ms" mapstructure:"breaker_cooldown_ms"`
	RetryAttempts      int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ArcGISConfig holds the feature service endpoints, one URL per layer.
type ArcGISConfig struct {
	Token     string            `yaml:"token" mapstructure:"token"`
	RateLimit float64           `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int               `yaml:"burst" mapstructure:"burst"`
	Layers    map[string]string `yaml:"layers" mapstructure:"layers"`
}

// PostGISConfig points at a database with imported cadastral layers.
type PostGISConfig struct {
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Tables      map[string]string `yaml:"tables" mapstructure:"tables"`
	MaxConns    int32             `yaml:"max_conns" mapstructure:"max_conns"`
}

// SearchConfig configures the search box.
type SearchConfig struct {
	DebounceMs int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

// CategoriesConfig points at an optional catalog file overriding the
// embedded one.
type CategoriesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MonitoringConfig configures the submission health checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	WarningRateThreshold float64 `yaml:"warning_rate_threshold" mapstructure:"warning_rate_threshold"`
}

// TraceConfig configures OpenTelemetry tracing.
type TraceConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter    string  `yaml:"exporter" mapstructure:"exporter"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROPMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "property-map.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("salesforce.building_object", "Building__c")
	v.SetDefault("salesforce.property_object", "Property__c")
	v.SetDefault("salesforce.asset_classes", []string{"Office", "Logistics"})
	v.SetDefault("salesforce.sample_fallback", true)
	v.SetDefault("cadastre.source", "arcgis")
	v.SetDefault("cadastre.points_layer", "points")
	v.SetDefault("cadastre.buildings_layer", "buildings")
	v.SetDefault("cadastre.parcels_layer", "parcels")
	v.SetDefault("cadastre.submarkets_layer", "submarkets")
	v.SetDefault("cadastre.point_id_field", "id")
	v.SetDefault("cadastre.building_ref_field", "building_id")
	v.SetDefault("cadastre.building_id_field", "id")
	v.SetDefault("cadastre.parcel_ref_field", "parcel_id")
	v.SetDefault("cadastre.parcel_id_field", "id")
	v.SetDefault("cadastre.submarket_buffer", 0.001)
	v.SetDefault("cadastre.timeout_secs", 15)
	v.SetDefault("cadastre.breaker_threshold", 5)
	v.SetDefault("cadastre.breaker_cooldown_ms", 30000)
	v.SetDefault("cadastre.retry_attempts", 3)
	v.SetDefault("arcgis.rate_limit", 10.0)
	v.SetDefault("arcgis.burst", 5)
	v.SetDefault("postgis.max_conns", 10)
	v.SetDefault("search.debounce_ms", 500)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.warning_rate_threshold", 0.5)
	v.SetDefault("trace.exporter", "stdout")
	v.SetDefault("trace.service_name", "property-map")
	v.SetDefault("trace.sample_ratio", 1.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command mode needs. Modes: "serve", "resolve",
// "submit", "buildings" and "import".
func (c *Config) Validate(mode string) error {
	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	needCadastre := func() {
		switch c.Cadastre.Source {
		case "arcgis":
			need(c.ArcGIS.Layers[c.Cadastre.PointsLayer] != "", "arcgis.layers."+c.Cadastre.PointsLayer)
		case "postgis":
			need(c.PostGIS.DatabaseURL != "", "postgis.database_url")
		default:
			missing = append(missing, "cadastre.source (arcgis|postgis)")
		}
	}

	switch mode {
	case "serve", "resolve":
		needCadastre()
	case "submit":
		needCadastre()
		need(c.Salesforce.ClientID != "", "salesforce.client_id")
		need(c.Salesforce.Username != "", "salesforce.username")
		need(c.Salesforce.KeyPath != "", "salesforce.key_path")
	case "buildings":
		if !c.Salesforce.SampleFallback {
			need(c.Salesforce.Configured(), "salesforce.client_id/username/key_path")
		}
	case "import":
		need(c.PostGIS.DatabaseURL != "", "postgis.database_url")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
