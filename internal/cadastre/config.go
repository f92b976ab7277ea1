package cadastre

// DefaultSubmarketBuffer is the half-width in degrees of the square used for
// the buffered submarket retry.
const DefaultSubmarketBuffer = 0.001

// Layers names the feature layers consulted during resolution.
type Layers struct {
	Points     string `mapstructure:"points" yaml:"points"`
	Buildings  string `mapstructure:"buildings" yaml:"buildings"`
	Parcels    string `mapstructure:"parcels" yaml:"parcels"`
	Submarkets string `mapstructure:"submarkets" yaml:"submarkets"`
}

// Keys names the attributes that link records across layers.
type Keys struct {
	// PointID is the attribute on the points layer holding the identifier
	// passed to Resolve.
	PointID string `mapstructure:"point_id" yaml:"point_id"`
	// BuildingRef is the attribute on a point referencing its building.
	BuildingRef string `mapstructure:"building_ref" yaml:"building_ref"`
	// BuildingID is the attribute on the buildings layer matched by BuildingRef.
	BuildingID string `mapstructure:"building_id" yaml:"building_id"`
	// ParcelRef is the attribute on a building referencing its parcel.
	ParcelRef string `mapstructure:"parcel_ref" yaml:"parcel_ref"`
	// ParcelID is the attribute on the parcels layer matched by ParcelRef.
	ParcelID string `mapstructure:"parcel_id" yaml:"parcel_id"`
}

// Config holds the layer and key names plus the submarket retry buffer.
type Config struct {
	Layers          Layers  `mapstructure:"layers" yaml:"layers"`
	Keys            Keys    `mapstructure:"keys" yaml:"keys"`
	SubmarketBuffer float64 `mapstructure:"submarket_buffer" yaml:"submarket_buffer"`
}

// DefaultConfig returns the stock layer and key names.
func DefaultConfig() Config {
	return Config{
		Layers: Layers{
			Points:     "points",
			Buildings:  "buildings",
			Parcels:    "parcels",
			Submarkets: "submarkets",
		},
		Keys: Keys{
			PointID:     "id",
			BuildingRef: "building_id",
			BuildingID:  "id",
			ParcelRef:   "parcel_id",
			ParcelID:    "id",
		},
		SubmarketBuffer: DefaultSubmarketBuffer,
	}
}

// withDefaults fills blank names and a non-positive buffer from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.Layers.Points, d.Layers.Points)
	fill(&c.Layers.Buildings, d.Layers.Buildings)
	fill(&c.Layers.Parcels, d.Layers.Parcels)
	fill(&c.Layers.Submarkets, d.Layers.Submarkets)
	fill(&c.Keys.PointID, d.Keys.PointID)
	fill(&c.Keys.BuildingRef, d.Keys.BuildingRef)
	fill(&c.Keys.BuildingID, d.Keys.BuildingID)
	fill(&c.Keys.ParcelRef, d.Keys.ParcelRef)
	fill(&c.Keys.ParcelID, d.Keys.ParcelID)
	if c.SubmarketBuffer <= 0 {
		c.SubmarketBuffer = d.SubmarketBuffer
	}
	return c
}
