package geo

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"

	"github.com/sells-group/property-map/internal/model"
)

// ErrUnknownLayer is returned for a query against a layer that was never
// loaded.
var ErrUnknownLayer = eris.New("geo: unknown layer")

// Record is one feature held by a Layer.
type Record struct {
	Attributes model.Attributes
	Geometry   geom.T
}

// Layer is an immutable in-memory feature layer.
type Layer struct {
	name    string
	records []Record
}

// NewLayer creates a layer from records. The slice is not copied.
func NewLayer(name string, records []Record) *Layer {
	return &Layer{name: name, records: records}
}

// Name returns the layer name.
func (l *Layer) Name() string {
	return l.name
}

// Len returns the number of records.
func (l *Layer) Len() int {
	return len(l.records)
}

// Records returns the layer contents. Callers must not modify them.
func (l *Layer) Records() []Record {
	return l.records
}

// Query returns the records matching q in load order.
func (l *Layer) Query(q model.FeatureQuery) []model.Feature {
	var out []model.Feature
	for _, r := range l.records {
		if !matchesWhere(r.Attributes, q.Where) {
			continue
		}
		if q.Point != nil && !Contains(r.Geometry, *q.Point) {
			continue
		}
		if q.Envelope != nil && !Intersects(r.Geometry, *q.Envelope) {
			continue
		}
		f := model.Feature{Attributes: r.Attributes.Clone()}
		if q.ReturnGeometry {
			f.Location = Location(r.Geometry)
		}
		out = append(out, f)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

func matchesWhere(attrs model.Attributes, where []model.Condition) bool {
	for _, c := range where {
		v, ok := attrs.String(c.Field)
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

// Store holds named layers and answers feature queries against them.
type Store struct {
	mu     sync.RWMutex
	layers map[string]*Layer
}

// NewStore creates a store holding the given layers.
func NewStore(layers ...*Layer) *Store {
	s := &Store{layers: make(map[string]*Layer)}
	for _, l := range layers {
		s.layers[l.Name()] = l
	}
	return s
}

// Put adds or replaces a layer.
func (s *Store) Put(l *Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[l.Name()] = l
}

// Layers returns the loaded layer names, sorted.
func (s *Store) Layers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.layers))
	for n := range s.layers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// QueryFeatures answers q from memory.
func (s *Store) QueryFeatures(ctx context.Context, q model.FeatureQuery) ([]model.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: query")
	}
	s.mu.RLock()
	l, ok := s.layers[q.Layer]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrUnknownLayer, "geo: layer %q", q.Layer)
	}
	return l.Query(q), nil
}
