// Package export writes building sets to spreadsheets and reads them back.
package export

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/quality"
)

// SheetName is the worksheet holding the buildings.
const SheetName = "Buildings"

// Column headers in sheet order. ReadXLSX locates columns by header, so
// extra or reordered columns in hand-edited files are tolerated.
const (
	ColID           = "ID"
	ColName         = "Name"
	ColStreet       = "Street"
	ColHouseNumber  = "House number"
	ColPostalCode   = "Postal code"
	ColCity         = "City"
	ColCadastralRef = "Cadastral reference"
	ColLongitude    = "Longitude"
	ColLatitude     = "Latitude"
	ColSurface      = "Surface (m²)"
	ColTenants      = "Tenants"
	ColOwner        = "Owner"
	ColTier         = "Quality"
)

var columns = []string{
	ColID, ColName, ColStreet, ColHouseNumber, ColPostalCode, ColCity, ColCadastralRef,
	ColLongitude, ColLatitude, ColSurface, ColTenants, ColOwner, ColTier,
}

// WriteXLSX writes bs as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, bs []model.Building) error {
	f, err := Workbook(bs)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

// SaveXLSX writes bs to path.
func SaveXLSX(path string, bs []model.Building) error {
	f, err := Workbook(bs)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	zap.L().Info("export: wrote buildings",
		zap.String("component", "export"),
		zap.String("path", path),
		zap.Int("buildings", len(bs)),
	)
	return nil
}

// Workbook builds the in-memory workbook for bs.
func Workbook(bs []model.Building) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add sheet")
	}

	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.ApplyFont = true

	row := sheet.AddRow()
	for _, c := range columns {
		cell := row.AddCell()
		cell.SetString(c)
		cell.SetStyle(header)
	}

	for _, b := range bs {
		row := sheet.AddRow()
		row.AddCell().SetString(b.ID)
		row.AddCell().SetString(b.Name)
		row.AddCell().SetString(b.Street)
		row.AddCell().SetString(b.HouseNumber)
		row.AddCell().SetString(b.PostalCode)
		row.AddCell().SetString(b.City)
		row.AddCell().SetString(b.CadastralRef)
		row.AddCell().SetFloat(b.Longitude)
		row.AddCell().SetFloat(b.Latitude)
		if b.Surface != nil {
			row.AddCell().SetFloat(*b.Surface)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(b.TenantsText())
		row.AddCell().SetString(b.OwnerText())
		row.AddCell().SetString(quality.Classify(b).Label())
	}
	return f, nil
}

// ReadXLSX reads buildings from the first sheet of a workbook written by
// WriteXLSX or edited by hand. Rows without a name or with unparsable
// coordinates are skipped with a warning.
func ReadXLSX(path string) ([]model.Building, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if s, ok := f.Sheet[SheetName]; ok {
		sheet = s
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: sheet %q is empty", sheet.Name)
	}

	idx := make(map[string]int)
	for i, c := range sheet.Rows[0].Cells {
		idx[strings.TrimSpace(c.String())] = i
	}
	for _, required := range []string{ColName, ColLongitude, ColLatitude} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("xlsx: missing column %q", required)
		}
	}

	log := zap.L().With(zap.String("component", "export"), zap.String("path", path))
	var out []model.Building
	for n, row := range sheet.Rows[1:] {
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(row.Cells) {
				return ""
			}
			return strings.TrimSpace(row.Cells[i].String())
		}

		b := model.Building{
			ID:           get(ColID),
			Name:         get(ColName),
			Street:       get(ColStreet),
			HouseNumber:  get(ColHouseNumber),
			PostalCode:   get(ColPostalCode),
			City:         get(ColCity),
			CadastralRef: get(ColCadastralRef),
		}
		if b.Name == "" {
			continue
		}

		lon, lonErr := strconv.ParseFloat(get(ColLongitude), 64)
		lat, latErr := strconv.ParseFloat(get(ColLatitude), 64)
		if lonErr != nil || latErr != nil {
			log.Warn("export: skipping row without coordinates", zap.Int("row", n+2), zap.String("name", b.Name))
			continue
		}
		b.Longitude, b.Latitude = lon, lat

		if s := get(ColSurface); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				b.Surface = &v
			}
		}
		if s := get(ColTenants); s != "" {
			b.Tenants = &s
		}
		if s := get(ColOwner); s != "" {
			b.Owner = &s
		}
		out = append(out, b)
	}
	return out, nil
}

// FileFetcher serves a spreadsheet as the building system of record.
func FileFetcher(path string) building.Fetcher {
	return building.FetchFunc(func(ctx context.Context) ([]model.Building, error) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "xlsx: read cancelled")
		}
		return ReadXLSX(path)
	})
}
