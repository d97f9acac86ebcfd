package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/lfr-analysis/lsoa-pipeline/internal/gpkg"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

func sampleRecords() []model.AreaRecord {
	areas := testAreas()
	return []model.AreaRecord{
		{Code: "E01000001", Name: "A", Counts: map[int]int{2023: 4, 2025: 10}, LFRCount: 2, AbsDifference: 6, Decile: 1, Geom: areas[0].Geom},
		{Code: "E01000002", Name: "B", Counts: map[int]int{2023: 0, 2025: 0}},
	}
}

func TestColumns(t *testing.T) {
	assert.Equal(t, []string{
		"LSOA11CD", "LSOA11NM", "stop_search_count_2023", "stop_search_count_2025",
		"lfr_count", "abs_difference", "imd_decile",
	}, Columns([]int{2023, 2025}))
}

func TestWriteGeoPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.gpkg")
	require.NoError(t, WriteGeoPackage(context.Background(), path, []int{2023, 2025}, sampleRecords()))

	layer, features, err := gpkg.Read(context.Background(), path, LayerName)
	require.NoError(t, err)
	assert.Equal(t, gpkg.GeomMultiPolygon, layer.GeomType)
	require.Len(t, layer.Columns, 7)
	assert.Equal(t, gpkg.TypeInteger, layer.Columns[2].Type)
	require.Len(t, features, 2)

	_, ok := features[0].Geom.(*geom.MultiPolygon)
	assert.True(t, ok)
	assert.Equal(t, []any{"E01000001", "A", int64(4), int64(10), int64(2), int64(6), int64(1)}, features[0].Values)
	assert.Nil(t, features[1].Geom)
	assert.Nil(t, features[1].Values[6])
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.csv")
	require.NoError(t, WriteCSVFile(path, []int{2023, 2025}, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"LSOA11CD,LSOA11NM,stop_search_count_2023,stop_search_count_2025,lfr_count,abs_difference,imd_decile\n"+
			"E01000001,A,4,10,2,6,1\n"+
			"E01000002,B,0,0,0,0,\n",
		string(data))
}
