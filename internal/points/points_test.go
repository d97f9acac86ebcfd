package points

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/lfr-analysis/lsoa-pipeline/internal/gpkg"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

func TestWriteRead(t *testing.T) {
	events := []model.Event{
		{Lat: 51.5, Lon: -0.1, HasCoords: true, Attributes: []model.Attribute{{Name: "Type", Value: "Person search"}, {Name: "Date", Value: "2025-01-03"}}},
		{Attributes: []model.Attribute{{Name: "Type", Value: "Vehicle search"}}},
	}
	path := filepath.Join(t.TempDir(), "stop_search_2025.gpkg")
	require.NoError(t, Write(context.Background(), path, "stop_search_2025", []string{"Type", "Date"}, events))

	got, err := Read(context.Background(), path, model.SourceStopSearch, 2025)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, model.SourceStopSearch, got[0].Source)
	assert.Equal(t, 2025, got[0].Year)
	assert.True(t, got[0].HasCoords)
	assert.InDelta(t, 51.5, got[0].Lat, 1e-12)
	assert.InDelta(t, -0.1, got[0].Lon, 1e-12)
	assert.Equal(t, "Person search", got[0].Attr("Type"))
	assert.Equal(t, "2025-01-03", got[0].Attr("Date"))

	assert.False(t, got[1].HasCoords)
	assert.Equal(t, "", got[1].Attr("Date"))
}

func TestRead_RejectsPolygonLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.gpkg")
	poly := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}})
	require.NoError(t, gpkg.Write(context.Background(), path,
		gpkg.Layer{Name: "areas", GeomType: gpkg.GeomMultiPolygon},
		[]gpkg.Feature{{Geom: poly}}))

	_, err := Read(context.Background(), path, model.SourceLFR, 2025)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not POINT")
}

func TestRead_ReadsTypedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lfr.gpkg")
	layer := gpkg.Layer{Name: "lfr", GeomType: gpkg.GeomPoint, Columns: []gpkg.Column{
		{Name: "row_id", Type: gpkg.TypeInteger},
		{Name: "latitude", Type: gpkg.TypeReal},
	}}
	pt := geom.NewPointFlat(geom.XY, []float64{-0.14, 51.51})
	require.NoError(t, gpkg.Write(context.Background(), path, layer, []gpkg.Feature{{Geom: pt, Values: []any{int64(7), 51.51}}}))

	got, err := Read(context.Background(), path, model.SourceLFR, 2025)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].Attr("row_id"))
	assert.Equal(t, "51.51", got[0].Attr("latitude"))
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "none.gpkg"), model.SourceLFR, 2025)
	assert.Error(t, err)
}
