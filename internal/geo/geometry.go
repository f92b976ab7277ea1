// Package geo serves feature layers held in memory, loaded from ESRI
// shapefiles or GeoJSON files, and answers attribute, point and envelope
// queries against them.
package geo

import (
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/sells-group/property-map/internal/model"
)

// Location returns the coordinates attached to a record for g: the point
// itself, or the centroid for lines and polygons. Nil or empty geometries
// yield nil.
func Location(g geom.T) *model.Point {
	if g == nil || g.Empty() {
		return nil
	}
	if p, ok := g.(*geom.Point); ok {
		return &model.Point{Lon: p.X(), Lat: p.Y()}
	}
	c, err := xy.Centroid(g)
	if err != nil || len(c) < 2 {
		return nil
	}
	return &model.Point{Lon: c[0], Lat: c[1]}
}

// EnvelopeBounds converts an envelope to go-geom bounds.
func EnvelopeBounds(e model.Envelope) *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(e.MinLon, e.MinLat, e.MaxLon, e.MaxLat)
}

// Contains reports whether p lies inside or on the border of g. Points only
// contain themselves; lines contain nothing.
func Contains(g geom.T, p model.Point) bool {
	c := geom.Coord{p.Lon, p.Lat}
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, c)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), c) {
				return true
			}
		}
		return false
	case *geom.Point:
		return !t.Empty() && t.X() == p.Lon && t.Y() == p.Lat
	default:
		return false
	}
}

func polygonContains(poly *geom.Polygon, c geom.Coord) bool {
	if poly.Empty() || !poly.Bounds().OverlapsPoint(geom.XY, c) {
		return false
	}
	layout := poly.Layout()
	if !xy.IsPointInRing(layout, c, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, c, poly.LinearRing(i).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}

// Intersects reports whether g and the envelope share at least one point.
func Intersects(g geom.T, e model.Envelope) bool {
	if g == nil || g.Empty() {
		return false
	}
	if !g.Bounds().Overlaps(geom.XY, EnvelopeBounds(e)) {
		return false
	}

	stride := g.Stride()
	flat := g.FlatCoords()
	for i := 0; i+1 < len(flat); i += stride {
		if e.Contains(model.Point{Lon: flat[i], Lat: flat[i+1]}) {
			return true
		}
	}

	corners := []model.Point{
		{Lon: e.MinLon, Lat: e.MinLat},
		{Lon: e.MaxLon, Lat: e.MinLat},
		{Lon: e.MaxLon, Lat: e.MaxLat},
		{Lon: e.MinLon, Lat: e.MaxLat},
	}
	for _, c := range corners {
		if Contains(g, c) {
			return true
		}
	}

	// Edges can cross the envelope with no vertex inside either shape.
	for _, ring := range rings(g) {
		for i := 0; i+2*stride-1 < len(ring); i += stride {
			a := model.Point{Lon: ring[i], Lat: ring[i+1]}
			b := model.Point{Lon: ring[i+stride], Lat: ring[i+stride+1]}
			for j := range corners {
				if segmentsCross(a, b, corners[j], corners[(j+1)%len(corners)]) {
					return true
				}
			}
		}
	}
	return false
}

// rings returns the flat coordinates of every ring or line in g.
func rings(g geom.T) [][]float64 {
	switch t := g.(type) {
	case *geom.LineString:
		return [][]float64{t.FlatCoords()}
	case *geom.Polygon:
		out := make([][]float64, t.NumLinearRings())
		for i := range out {
			out[i] = t.LinearRing(i).FlatCoords()
		}
		return out
	case *geom.MultiPolygon:
		var out [][]float64
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, rings(t.Polygon(i))...)
		}
		return out
	case *geom.MultiLineString:
		out := make([][]float64, t.NumLineStrings())
		for i := range out {
			out[i] = t.LineString(i).FlatCoords()
		}
		return out
	default:
		return nil
	}
}

func segmentsCross(p1, p2, q1, q2 model.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b model.Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}
