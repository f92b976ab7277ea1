package geospatial

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/db"
	"github.com/sells-group/property-map/internal/geo"
)

// Column names of tables written by ImportLayer.
const (
	importAttrsColumn = "attrs"
	importWKBColumn   = "wkb"
	importGeomColumn  = "geom"
)

// ImportLayer replaces the contents of table with the records of l and
// returns the Table mapping that serves it. The table is created when
// missing; its geometry column is derived from the stored EWKB. Records
// without geometry are skipped.
func ImportLayer(ctx context.Context, pool db.Pool, table string, l *geo.Layer) (Table, int64, error) {
	t := Table{Name: table, Geometry: importGeomColumn, Attributes: importAttrsColumn}
	ident, err := t.ident()
	if err != nil {
		return Table{}, 0, err
	}
	log := zap.L().With(zap.String("component", "geospatial"), zap.String("table", table))

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id bigserial PRIMARY KEY,
	%s jsonb NOT NULL,
	%s bytea NOT NULL,
	%s geometry GENERATED ALWAYS AS (ST_SetSRID(ST_GeomFromEWKB(%s), 4326)) STORED
)`, ident.Sanitize(), importAttrsColumn, importWKBColumn, importGeomColumn, importWKBColumn)
	if _, err := pool.Exec(ctx, create); err != nil {
		return Table{}, 0, eris.Wrapf(err, "geospatial: create table %s", table)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE "+ident.Sanitize()); err != nil {
		return Table{}, 0, eris.Wrapf(err, "geospatial: truncate %s", table)
	}

	rows := make([][]any, 0, l.Len())
	skipped := 0
	for _, r := range l.Records() {
		if r.Geometry == nil {
			skipped++
			continue
		}
		wkb, err := ewkb.Marshal(r.Geometry, binary.LittleEndian)
		if err != nil {
			return Table{}, 0, eris.Wrapf(err, "geospatial: encode %s geometry", table)
		}
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return Table{}, 0, eris.Wrapf(err, "geospatial: encode %s attributes", table)
		}
		rows = append(rows, []any{attrs, wkb})
	}

	n, err := db.CopyFrom(ctx, pool, ident, []string{importAttrsColumn, importWKBColumn}, rows)
	if err != nil {
		return Table{}, 0, eris.Wrapf(err, "geospatial: import %s", table)
	}

	q := &Querier{pool: pool, tables: map[string]Table{l.Name(): t}}
	if err := q.EnsureIndexes(ctx); err != nil {
		return Table{}, 0, err
	}

	log.Info("geospatial: imported layer",
		zap.String("layer", l.Name()),
		zap.Int64("rows", n),
		zap.Int("skipped_without_geometry", skipped),
	)
	return t, n, nil
}
