package geo

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/property-map/internal/model"
)

// ReadGeoJSON decodes a GeoJSON FeatureCollection into a layer. Feature ids
// are kept under the "id" attribute unless a property already uses it.
func ReadGeoJSON(r io.Reader, name string) (*Layer, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrapf(err, "geo: decode geojson layer %s", name)
	}

	records := make([]Record, 0, len(fc.Features))
	for _, f := range fc.Features {
		attrs := model.Attributes(f.Properties).Clone()
		if attrs == nil {
			attrs = model.Attributes{}
		}
		if _, ok := attrs["id"]; !ok && f.ID != "" {
			attrs["id"] = f.ID
		}
		records = append(records, Record{Attributes: attrs, Geometry: f.Geometry})
	}
	return NewLayer(name, records), nil
}

// LoadGeoJSON reads a GeoJSON file into a layer.
func LoadGeoJSON(path, name string) (*Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadGeoJSON(f, name)
}
