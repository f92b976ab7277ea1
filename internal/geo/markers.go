package geo

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/property-map/internal/quality"
)

// MarkerCollection renders markers as GeoJSON point features. Properties
// carry what a renderer needs to style each point.
func MarkerCollection(markers []quality.Marker) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(markers))}
	for _, m := range markers {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       m.BuildingID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{m.Position.Lon, m.Position.Lat}).SetSRID(4326),
			Properties: map[string]any{
				"name":  m.Name,
				"tier":  string(m.Tier),
				"color": m.Color,
			},
		})
	}
	return fc
}
