package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/geoscore/internal/model"
)

var testCols = Columns{ID: "GEOID", Lon: "INTPTLON", Lat: "INTPTLAT"}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    *float64
		wantErr bool
	}{
		{"12.5", model.Float(12.5), false},
		{" 1,234 ", model.Float(1234), false},
		{"-3", model.Float(-3), false},
		{"", nil, false},
		{"NA", nil, false},
		{"n/a", nil, false},
		{"NaN", nil, false},
		{"null", nil, false},
		{"-", nil, false},
		{"-666666666", nil, false},
		{"-999999999", nil, false},
		{"abc", nil, true},
		{"Inf", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCSV(t *testing.T) {
	in := "GEOID,NAME,poverty,income,INTPTLON,INTPTLAT\n" +
		"01001,Autauga,15.2,58000,-86.64,32.53\n" +
		"01003,Baldwin,NA,61000,-87.72,30.73\n" +
		"1005,Barbour,26.1,-666666666,,\n"

	cols := testCols
	cols.IDWidth = 5
	ds, err := DecodeCSV(strings.NewReader(in), cols)
	require.NoError(t, err)

	assert.Equal(t, []string{"01001", "01003", "01005"}, ds.IDs())
	assert.Equal(t, []string{"income", "poverty"}, ds.Attributes())

	pov, err := ds.Column("poverty")
	require.NoError(t, err)
	require.NotNil(t, pov[0])
	assert.InDelta(t, 15.2, *pov[0], 1e-12)
	assert.Nil(t, pov[1])

	inc, err := ds.Column("income")
	require.NoError(t, err)
	assert.Nil(t, inc[2])

	c, ok := ds.Centroid(0)
	require.True(t, ok)
	assert.InDelta(t, -86.64, c.Lon, 1e-12)
	_, ok = ds.Centroid(2)
	assert.False(t, ok)
	assert.False(t, ds.Weighted())
}

func TestDecodeCSV_Weights(t *testing.T) {
	in := "GEOID,pop,rate\n06001,1600000,0.1\n06003,1200,0.2\n"
	ds, err := DecodeCSV(strings.NewReader(in), Columns{ID: "GEOID", Weight: "pop"})
	require.NoError(t, err)
	assert.True(t, ds.Weighted())
	assert.Equal(t, []float64{1600000, 1200}, ds.Weights())
	assert.False(t, ds.HasAttribute("pop"))
}

func TestDecodeCSV_Errors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		cols   Columns
		target any
	}{
		{
			name:   "duplicate geoid",
			in:     "GEOID,v\n01001,1\n01001,2\n",
			cols:   Columns{ID: "GEOID"},
			target: new(*model.InputValidationError),
		},
		{
			name:   "missing id column",
			in:     "FIPS,v\n01001,1\n",
			cols:   Columns{ID: "GEOID"},
			target: new(*model.InputValidationError),
		},
		{
			name:   "declared attribute absent",
			in:     "GEOID,v\n01001,1\n",
			cols:   Columns{ID: "GEOID", Attributes: []string{"v", "w"}},
			target: new(*model.MissingAttributeError),
		},
		{
			name:   "declared attribute not numeric",
			in:     "GEOID,v\n01001,high\n",
			cols:   Columns{ID: "GEOID", Attributes: []string{"v"}},
			target: new(*model.InputValidationError),
		},
		{
			name:   "missing weight cell",
			in:     "GEOID,pop,v\n01001,,1\n",
			cols:   Columns{ID: "GEOID", Weight: "pop"},
			target: new(*model.InputValidationError),
		},
		{
			name:   "negative weight",
			in:     "GEOID,pop,v\n01001,-5,1\n",
			cols:   Columns{ID: "GEOID", Weight: "pop"},
			target: new(*model.InputValidationError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCSV(strings.NewReader(tt.in), tt.cols)
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
		})
	}
}

func TestDecodeCSV_NoRows(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader("GEOID,v\n"), Columns{ID: "GEOID"})
	assert.Error(t, err)
}

func TestReadCSV_File(t *testing.T) {
	path := writeFile(t, "acs.csv", "GEOID,v\n48201,3\n48113,4\n")
	ds, err := ReadCSV(path, Columns{ID: "GEOID"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	_, err = ReadCSV(filepath.Join(t.TempDir(), "missing.csv"), Columns{ID: "GEOID"}, "")
	assert.Error(t, err)
}

func TestReadCSV_Latin1(t *testing.T) {
	// Header spelled in ISO-8859-1, as in older Census name files.
	content := "GEOID,Do\xf1a\n35013,7\n"
	path := writeFile(t, "latin1.csv", content)

	ds, err := ReadCSV(path, Columns{ID: "GEOID"}, "latin1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Doña"}, ds.Attributes())

	_, err = ReadCSV(path, Columns{ID: "GEOID"}, "klingon")
	assert.Error(t, err)
}

func createTestXLSX(t *testing.T, sheet string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sh.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "table.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, "data", [][]string{
		{"County indicators 2022"},
		{"GEOID", "uninsured", "INTPTLON", "INTPTLAT"},
		{"06037", "9.1", "-118.2", "34.3"},
		{"06001", "N/A", "-121.9", "37.6"},
	})

	ds, err := ReadXLSX(path, testCols, XLSXOptions{SheetName: "data", SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"06037", "06001"}, ds.IDs())
	col, err := ds.Column("uninsured")
	require.NoError(t, err)
	require.NotNil(t, col[0])
	assert.InDelta(t, 9.1, *col[0], 1e-12)
	assert.Nil(t, col[1])
}

func TestReadXLSX_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, "data", [][]string{{"GEOID", "v"}, {"01001", "1"}})

	_, err := ReadXLSX(path, testCols, XLSXOptions{SheetName: "other"})
	assert.Error(t, err)
	_, err = ReadXLSX(path, testCols, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
}

func TestReadTable_Dispatch(t *testing.T) {
	csvPath := writeFile(t, "t.csv", "GEOID,v\n01001,1\n")
	ds, err := ReadTable(csvPath, Columns{ID: "GEOID"}, TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	_, err = ReadTable(writeFile(t, "t.parquet", "x"), Columns{ID: "GEOID"}, TableOptions{})
	assert.Error(t, err)
}

func square(x0, y0 float64) *shp.Polygon {
	// Clockwise shell, as written by TIGER.
	pts := []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y0 + 1}, {X: x0 + 1, Y: y0 + 1}, {X: x0 + 1, Y: y0}, {X: x0, Y: y0}}
	return (*shp.Polygon)(shp.NewPolyLine([][]shp.Point{pts}))
}

func createTestShapefile(t *testing.T, shapes map[string]*shp.Polygon, order []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tl_test_county.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("GEOID", 5)}))
	for _, id := range order {
		n := w.Write(shapes[id])
		require.NoError(t, w.WriteAttribute(int(n), 0, id))
	}
	w.Close()
	// go-shp v0.1.1's writer drops the dot before "dbf"; the reader expects it.
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestReadShapefile(t *testing.T) {
	// A-B-C in a row, D detached.
	shapes := map[string]*shp.Polygon{
		"01001": square(0, 0),
		"01003": square(1, 0),
		"01005": square(2, 0),
		"01007": square(10, 10),
	}
	path := createTestShapefile(t, shapes, []string{"01001", "01003", "01005", "01007"})

	g, err := ReadShapefile(path, "geoid")
	require.NoError(t, err)
	require.Len(t, g.Centroids, 4)

	c := g.Centroids["01003"]
	assert.InDelta(t, 1.5, c.Lon, 1e-9)
	assert.InDelta(t, 0.5, c.Lat, 1e-9)

	assert.Equal(t, []string{"01003"}, g.Adjacency["01001"])
	assert.Equal(t, []string{"01001", "01005"}, g.Adjacency["01003"])
	assert.Empty(t, g.Adjacency["01007"])
}

func TestReadShapefile_MissingField(t *testing.T) {
	path := createTestShapefile(t, map[string]*shp.Polygon{"01001": square(0, 0)}, []string{"01001"})
	_, err := ReadShapefile(path, "TRACTCE")
	var mae *model.MissingAttributeError
	assert.ErrorAs(t, err, &mae)
}

func TestPolygonToMultiPolygon_Hole(t *testing.T) {
	shell := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 0}, {X: 0, Y: 0}}
	// Counter-clockwise hole in the right half.
	hole := []shp.Point{{X: 2, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 2, Y: 3}, {X: 2, Y: 1}}
	p := (*shp.Polygon)(shp.NewPolyLine([][]shp.Point{shell, hole}))

	mp, err := polygonToMultiPolygon(p)
	require.NoError(t, err)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())

	c := xy.MultiPolygonCentroid(mp)
	assert.InDelta(t, 27.0/14.0, c.X(), 1e-9)
	assert.InDelta(t, 2.0, c.Y(), 1e-9)
}

func TestAttachCentroids(t *testing.T) {
	ds, err := model.NewDataset([]model.GeoRecord{
		{ID: "01001", Attributes: map[string]*float64{"v": model.Float(1)}},
		{ID: "01003", Attributes: map[string]*float64{"v": nil}, Centroid: &model.Centroid{Lon: 9, Lat: 9}},
		{ID: "01009", Attributes: map[string]*float64{"v": model.Float(3)}},
	})
	require.NoError(t, err)

	g := &Geometry{Centroids: map[string]model.Centroid{
		"01001": {Lon: 0.5, Lat: 0.5},
		"01003": {Lon: 1.5, Lat: 0.5},
	}}
	out, err := AttachCentroids(ds, g)
	require.NoError(t, err)

	c, ok := out.Centroid(0)
	require.True(t, ok)
	assert.Equal(t, model.Centroid{Lon: 0.5, Lat: 0.5}, c)
	c, _ = out.Centroid(1)
	assert.Equal(t, model.Centroid{Lon: 9, Lat: 9}, c)
	_, ok = out.Centroid(2)
	assert.False(t, ok)
	assert.True(t, out.HasAttribute("v"))
}
