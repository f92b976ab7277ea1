package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/quality"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Export")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestWorkbook_Layout(t *testing.T) {
	surface := 12500.0
	owner := "Meir Holding NV"
	f, err := Workbook([]model.Building{{
		ID: "a0B1", Name: "Meir Tower", Street: "Meir", HouseNumber: "24",
		Longitude: 4.4051, Latitude: 51.2183, Surface: &surface, Owner: &owner,
	}})
	require.NoError(t, err)

	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 2)

	header := sheet.Rows[0].Cells
	require.Len(t, header, len(columns))
	assert.Equal(t, ColID, header[0].String())
	assert.Equal(t, ColTier, header[len(header)-1].String())
	assert.True(t, header[0].GetStyle().Font.Bold)

	data := sheet.Rows[1].Cells
	assert.Equal(t, "Meir Tower", data[1].String())
	assert.Equal(t, "12500", data[9].String())
	assert.Equal(t, "", data[10].String())
	assert.Equal(t, "Meir Holding NV", data[11].String())
}

func TestSaveAndReadXLSX_RoundTrip(t *testing.T) {
	sample, err := building.Sample()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "buildings.xlsx")
	require.NoError(t, SaveXLSX(path, sample))

	got, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Len(t, got, len(sample))

	for i, want := range sample {
		assert.Equal(t, want.ID, got[i].ID, want.Name)
		assert.Equal(t, want.Name, got[i].Name)
		assert.Equal(t, want.Address(), got[i].Address(), want.Name)
		assert.InDelta(t, want.Longitude, got[i].Longitude, 1e-9, want.Name)
		assert.InDelta(t, want.Latitude, got[i].Latitude, 1e-9, want.Name)
		assert.Equal(t, quality.Classify(want), quality.Classify(got[i]), want.Name)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 1)
}

func TestReadXLSX_HandEdited(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Notes", "Latitude", "Name", "Longitude", "Surface (m²)", "Owner"},
		{"reordered", "50.8466", "Rue Neuve 12", "4.3528", "", ""},
		{"no name", "50.0", "", "4.0", "", ""},
		{"bad coords", "north", "Somewhere", "4.0", "", ""},
		{"surface", "51.2", "Groenplaats 1", "4.4", "800", "City of Antwerp"},
	})

	got, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Rue Neuve 12", got[0].Name)
	assert.InDelta(t, 4.3528, got[0].Longitude, 1e-9)
	assert.InDelta(t, 50.8466, got[0].Latitude, 1e-9)
	assert.Nil(t, got[0].Surface)
	assert.False(t, got[0].Registered())

	require.NotNil(t, got[1].Surface)
	assert.InDelta(t, 800, *got[1].Surface, 1e-9)
	assert.Equal(t, "City of Antwerp", got[1].OwnerText())
}

func TestReadXLSX_MissingColumn(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"Name", "Longitude"}, {"x", "4.0"}})

	_, err := ReadXLSX(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "Latitude"`)
}

func TestReadXLSX_Errors(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")

	bad := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0o644))
	_, err = ReadXLSX(bad)
	require.Error(t, err)
}

func TestFileFetcher(t *testing.T) {
	sample, err := building.Sample()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "buildings.xlsx")
	require.NoError(t, SaveXLSX(path, sample))

	set, err := building.NewSource(FileFetcher(path), building.WithFallback(false)).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, building.OriginCRM, set.Origin)
	assert.Len(t, set.Buildings, len(sample))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FileFetcher(path).FetchBuildings(ctx)
	require.Error(t, err)
}
