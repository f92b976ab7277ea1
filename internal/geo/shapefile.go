package geo

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/model"
)

// LoadShapefile reads every shape and its dBASE attributes from path into a
// layer named name. Numeric dBASE fields become float64 attributes.
func LoadShapefile(path, name string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	var (
		records []Record
		skipped int
	)
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(model.Attributes, len(fields))
		for i, f := range fields {
			raw := strings.TrimSpace(strings.Trim(reader.Attribute(i), "\x00"))
			if raw == "" {
				continue
			}
			attrs[f.String()] = fieldValue(f, raw)
		}
		records = append(records, Record{Attributes: attrs, Geometry: g})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "geo: read shapefile %s", path)
	}

	zap.L().Info("geo: shapefile layer loaded",
		zap.String("layer", name),
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
	)
	return NewLayer(name, records), nil
}

func fieldValue(f shp.Field, raw string) any {
	switch f.Fieldtype {
	case 'N', 'F':
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return raw
}

// shapeGeometry converts a shapefile shape to a go-geom geometry. Polygon
// rings are grouped into polygons by orientation: clockwise rings are outer
// boundaries and counter-clockwise rings are holes of the preceding outer.
func shapeGeometry(s shp.Shape) geom.T {
	switch t := s.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y})
	case *shp.Polygon:
		return polygonGeometry(t.Parts, t.Points)
	default:
		return nil
	}
}

func polygonGeometry(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var (
		flat []float64
		ends []int
	)
	flush := func() {
		if len(ends) == 0 {
			return
		}
		_ = mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends))
		flat, ends = nil, nil
	}

	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 4 {
			continue
		}
		ring := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			ring = append(ring, p.X, p.Y)
		}
		if !xy.IsRingCounterClockwise(geom.XY, ring) || len(ends) == 0 {
			flush()
		}
		flat = append(flat, ring...)
		ends = append(ends, len(flat))
	}
	flush()

	switch mp.NumPolygons() {
	case 0:
		return nil
	case 1:
		return mp.Polygon(0)
	default:
		return mp
	}
}

// FetchShapefile downloads a zipped shapefile over HTTP(S) or FTP into dir,
// extracts it and returns the path of the .shp inside.
func FetchShapefile(ctx context.Context, client *http.Client, url, dir string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	zipPath := filepath.Join(dir, "layer.zip")
	var err error
	if strings.HasPrefix(strings.ToLower(url), "ftp://") {
		err = downloadFTP(ctx, url, zipPath)
	} else {
		err = download(ctx, client, url, zipPath)
	}
	if err != nil {
		return "", eris.Wrapf(err, "geo: download %s", url)
	}
	extractDir := filepath.Join(dir, "layer")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "geo: create extract dir")
	}
	if err := unzip(zipPath, extractDir); err != nil {
		return "", eris.Wrap(err, "geo: extract shapefile archive")
	}
	return findByExt(extractDir, ".shp")
}

func download(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "get")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

// unzip flattens the archive into dest; shapefile sidecars must share a
// directory with the .shp.
func unzip(path, dest string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(dest, filepath.Base(f.Name))); err != nil {
			return eris.Wrapf(err, "extract %s", f.Name)
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck

	_, err = io.Copy(out, rc)
	return err
}

func findByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "geo: read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("geo: no %s file in %s", ext, dir)
}
