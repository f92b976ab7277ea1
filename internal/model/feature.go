package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Attribute keys written onto a feature when its geometry is merged into the
// flat attribute map.
const (
	AttrLongitude = "longitude"
	AttrLatitude  = "latitude"
)

// Point is a WGS84 longitude/latitude pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Envelope is an axis-aligned bounding box in WGS84 degrees.
type Envelope struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Buffer returns the square envelope extending d degrees around p.
func (p Point) Buffer(d float64) Envelope {
	return Envelope{
		MinLon: p.Lon - d,
		MinLat: p.Lat - d,
		MaxLon: p.Lon + d,
		MaxLat: p.Lat + d,
	}
}

// Contains reports whether p lies inside or on the border of e.
func (e Envelope) Contains(p Point) bool {
	return p.Lon >= e.MinLon && p.Lon <= e.MaxLon && p.Lat >= e.MinLat && p.Lat <= e.MaxLat
}

// Condition is an equality predicate on a single attribute.
type Condition struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// FeatureQuery describes one request against a feature layer. At most one of
// Point and Envelope is set; both nil means an attribute-only query.
type FeatureQuery struct {
	Layer          string      `json:"layer"`
	Where          []Condition `json:"where,omitempty"`
	Point          *Point      `json:"point,omitempty"`
	Envelope       *Envelope   `json:"envelope,omitempty"`
	ReturnGeometry bool        `json:"return_geometry"`
	Limit          int         `json:"limit,omitempty"`
}

// Feature is one record returned by a feature layer. Location is the point
// geometry (or polygon centroid) when geometry was requested.
type Feature struct {
	Attributes Attributes `json:"attributes"`
	Location   *Point     `json:"location,omitempty"`
}

// Flatten merges the feature location into a copy of its attributes.
func (f Feature) Flatten() Attributes {
	out := f.Attributes.Clone()
	if out == nil {
		out = Attributes{}
	}
	if f.Location != nil {
		out[AttrLongitude] = f.Location.Lon
		out[AttrLatitude] = f.Location.Lat
	}
	return out
}

// Attributes is the flat attribute map of a feature.
type Attributes map[string]any

// Clone returns a shallow copy of a.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// String returns the trimmed textual value for key. Numbers are rendered
// without trailing zeros. Missing, nil and blank values report false.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		s = strconv.Itoa(t)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Float coerces the value for key to a finite float64. Numeric strings are
// accepted; anything else reports false.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	return ToFloat(v)
}

// FirstString returns the first non-blank value among keys, in order.
func (a Attributes) FirstString(keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := a.String(k); ok {
			return s, true
		}
	}
	return "", false
}

// ToFloat coerces v to a finite float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
