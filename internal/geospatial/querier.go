// Package geospatial answers feature-layer queries from PostGIS tables.
package geospatial

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/db"
	"github.com/sells-group/property-map/internal/geo"
	"github.com/sells-group/property-map/internal/model"
)

// Table locates the PostGIS table backing a layer.
type Table struct {
	// Name is "table" or "schema.table".
	Name string `mapstructure:"name" yaml:"name"`
	// Geometry is the geometry column, SRID 4326. Defaults to "geom".
	Geometry string `mapstructure:"geometry" yaml:"geometry"`
	// Attributes names a jsonb column holding all attributes, as written by
	// ImportLayer. Empty means every non-geometry column is an attribute.
	Attributes string `mapstructure:"attributes" yaml:"attributes"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(s string) bool {
	return identPattern.MatchString(s)
}

func (t Table) ident() (pgx.Identifier, error) {
	parts := strings.Split(t.Name, ".")
	if len(parts) > 2 {
		return nil, eris.Errorf("geospatial: invalid table name %q", t.Name)
	}
	for _, p := range parts {
		if !validIdent(p) {
			return nil, eris.Errorf("geospatial: invalid table name %q", t.Name)
		}
	}
	return pgx.Identifier(parts), nil
}

// Querier runs feature queries against an allowlist of layer tables.
type Querier struct {
	pool   db.Pool
	tables map[string]Table
}

// NewQuerier validates every table mapping and returns a Querier.
func NewQuerier(pool db.Pool, tables map[string]Table) (*Querier, error) {
	checked := make(map[string]Table, len(tables))
	for layer, t := range tables {
		if _, err := t.ident(); err != nil {
			return nil, err
		}
		if t.Geometry == "" {
			t.Geometry = "geom"
		}
		if !validIdent(t.Geometry) {
			return nil, eris.Errorf("geospatial: invalid geometry column %q for layer %s", t.Geometry, layer)
		}
		if t.Attributes != "" && !validIdent(t.Attributes) {
			return nil, eris.Errorf("geospatial: invalid attributes column %q for layer %s", t.Attributes, layer)
		}
		checked[layer] = t
	}
	return &Querier{pool: pool, tables: checked}, nil
}

// QueryFeatures implements the feature source interface. Attribute columns
// are returned as a JSON object so arbitrary table shapes need no mapping.
func (q *Querier) QueryFeatures(ctx context.Context, fq model.FeatureQuery) ([]model.Feature, error) {
	sql, args, err := q.build(fq)
	if err != nil {
		return nil, err
	}

	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "geospatial: query %s", fq.Layer)
	}
	defer rows.Close()

	features := []model.Feature{}
	for rows.Next() {
		var (
			rawAttrs []byte
			rawLoc   []byte
		)
		if err := rows.Scan(&rawAttrs, &rawLoc); err != nil {
			return nil, eris.Wrapf(err, "geospatial: scan %s row", fq.Layer)
		}

		attrs := model.Attributes{}
		if len(rawAttrs) > 0 {
			if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
				return nil, eris.Wrapf(err, "geospatial: decode %s attributes", fq.Layer)
			}
		}

		f := model.Feature{Attributes: attrs}
		if fq.ReturnGeometry && len(rawLoc) > 0 {
			g, err := ewkb.Unmarshal(rawLoc)
			if err != nil {
				zap.L().Warn("geospatial: undecodable geometry",
					zap.String("layer", fq.Layer), zap.Error(err))
			} else {
				f.Location = geo.Location(g)
			}
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "geospatial: iterate %s rows", fq.Layer)
	}
	return features, nil
}

// build renders the SELECT for fq. Identifiers come from the validated table
// mapping and where-clause field names; every value is a bind parameter.
func (q *Querier) build(fq model.FeatureQuery) (string, []any, error) {
	t, ok := q.tables[fq.Layer]
	if !ok {
		return "", nil, eris.Errorf("geospatial: layer %q is not mapped to a table", fq.Layer)
	}
	ident, _ := t.ident()
	geomCol := pgx.Identifier{"t", t.Geometry}.Sanitize()

	var sb strings.Builder
	if t.Attributes != "" {
		fmt.Fprintf(&sb, "SELECT %s AS attrs, ", pgx.Identifier{"t", t.Attributes}.Sanitize())
	} else {
		fmt.Fprintf(&sb, "SELECT to_jsonb(t) - '%s' AS attrs, ", t.Geometry)
	}
	if fq.ReturnGeometry {
		fmt.Fprintf(&sb, "ST_AsEWKB(ST_Centroid(%s)) AS loc", geomCol)
	} else {
		sb.WriteString("NULL::bytea AS loc")
	}
	fmt.Fprintf(&sb, " FROM %s t", ident.Sanitize())

	var (
		preds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, c := range fq.Where {
		if !validIdent(c.Field) {
			return "", nil, eris.Errorf("geospatial: invalid field name %q", c.Field)
		}
		if t.Attributes != "" {
			preds = append(preds, fmt.Sprintf("%s->>'%s' = %s", pgx.Identifier{"t", t.Attributes}.Sanitize(), c.Field, next(c.Value)))
			continue
		}
		preds = append(preds, fmt.Sprintf("%s::text = %s", pgx.Identifier{"t", c.Field}.Sanitize(), next(c.Value)))
	}
	switch {
	case fq.Point != nil:
		preds = append(preds, fmt.Sprintf("ST_Intersects(%s, ST_SetSRID(ST_MakePoint(%s, %s), 4326))",
			geomCol, next(fq.Point.Lon), next(fq.Point.Lat)))
	case fq.Envelope != nil:
		e := fq.Envelope
		preds = append(preds, fmt.Sprintf("ST_Intersects(%s, ST_MakeEnvelope(%s, %s, %s, %s, 4326))",
			geomCol, next(e.MinLon), next(e.MinLat), next(e.MaxLon), next(e.MaxLat)))
	}

	if len(preds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(preds, " AND "))
	}
	if fq.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", next(fq.Limit))
	}
	return sb.String(), args, nil
}

// EnsureIndexes creates a GiST index on every mapped geometry column.
func (q *Querier) EnsureIndexes(ctx context.Context) error {
	for layer, t := range q.tables {
		ident, _ := t.ident()
		name := pgx.Identifier{fmt.Sprintf("idx_%s_%s", strings.ReplaceAll(t.Name, ".", "_"), t.Geometry)}
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gist (%s)",
			name.Sanitize(), ident.Sanitize(), pgx.Identifier{t.Geometry}.Sanitize())
		if _, err := q.pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "geospatial: index layer %s", layer)
		}
	}
	return nil
}
