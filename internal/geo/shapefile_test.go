package geo

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockwise square in shapefile winding.
func shpSquare(x0, y0, x1, y1 float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0}}
}

// counter-clockwise square, a hole in shapefile winding.
func shpHole(x0, y0, x1, y1 float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}
}

type testArea struct {
	code, name, borough string
	parts               [][]shp.Point
}

func writeTestShapefile(t *testing.T, dir string, areas []testArea) string {
	t.Helper()
	path := filepath.Join(dir, "LSOA_test.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	w.SetFields([]shp.Field{
		shp.StringField("LSOA11CD", 9),
		shp.StringField("LSOA11NM", 40),
		shp.StringField("LAD11NM", 40),
	})
	for i, a := range areas {
		poly := shp.Polygon(*shp.NewPolyLine(a.parts))
		w.Write(&poly)
		w.WriteAttribute(i, 0, a.code)
		w.WriteAttribute(i, 1, a.name)
		w.WriteAttribute(i, 2, a.borough)
	}
	w.Close()
	return path
}

func TestLoadShapefile_WGS84(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir(), []testArea{
		{"E01000001", "City of London 001A", "City of London", [][]shp.Point{shpSquare(-0.10, 51.50, -0.09, 51.51)}},
		{"E01000002", "City of London 001B", "City of London", [][]shp.Point{shpSquare(-0.09, 51.50, -0.08, 51.51)}},
	})

	areas, err := LoadShapefile(path, LoadOptions{Projection: "epsg:4326"})
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "E01000001", areas[0].Code)
	assert.Equal(t, "City of London 001A", areas[0].Name)
	assert.Equal(t, "City of London", areas[0].Borough)
	assert.Equal(t, 1, areas[0].Geom.NumPolygons())

	idx := NewIndex(areas)
	assert.Equal(t, "E01000002", idx.Locate(-0.085, 51.505))
}

func TestLoadShapefile_HoleAttachedToOuter(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir(), []testArea{
		{"E01000003", "ring", "b", [][]shp.Point{shpSquare(0, 0, 10, 10), shpHole(4, 4, 6, 6)}},
	})

	areas, err := LoadShapefile(path, LoadOptions{Projection: "epsg:4326"})
	require.NoError(t, err)
	require.Len(t, areas, 1)
	require.Equal(t, 1, areas[0].Geom.NumPolygons())
	assert.Equal(t, 2, areas[0].Geom.Polygon(0).NumLinearRings())
}

func TestLoadShapefile_BNG(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir(), []testArea{
		{"E01004734", "Westminster 018C", "Westminster", [][]shp.Point{shpSquare(529500, 180000, 530500, 181000)}},
	})

	areas, err := LoadShapefile(path, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, areas, 1)

	b := areas[0].Geom.Bounds()
	assert.InDelta(t, -0.13, b.Min(0), 0.02)
	assert.InDelta(t, 51.50, b.Min(1), 0.02)
	assert.Equal(t, "E01004734", NewIndex(areas).Locate(-0.1276, 51.5073))
}

func TestLoadShapefile_MissingCodeField(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir(), []testArea{
		{"x", "y", "z", [][]shp.Point{shpSquare(0, 0, 1, 1)}},
	})

	_, err := LoadShapefile(path, LoadOptions{CodeField: "LSOA21CD", Projection: "epsg:4326"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LSOA21CD field")
}

func TestLoadShapefileZip(t *testing.T) {
	src := t.TempDir()
	writeTestShapefile(t, src, []testArea{
		{"E01000001", "a", "b", [][]shp.Point{shpSquare(0, 0, 1, 1)}},
	})

	zipPath := filepath.Join(t.TempDir(), "bounds.zip")
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(zf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		in, err := os.Open(filepath.Join(src, "LSOA_test"+ext))
		require.NoError(t, err)
		out, err := zw.Create("bounds/ESRI/LSOA_test" + ext)
		require.NoError(t, err)
		_, err = io.Copy(out, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	areas, err := LoadShapefileZip(zipPath, "bounds/ESRI/LSOA_test.shp", LoadOptions{Projection: "epsg:4326", TempDir: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, "E01000001", areas[0].Code)
}
