package aggregate

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/lfr-analysis/lsoa-pipeline/internal/fetcher"
	"github.com/lfr-analysis/lsoa-pipeline/internal/gpkg"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

// Combined table column names.
const (
	LayerName    = "combined_counts"
	ColCode      = "LSOA11CD"
	ColName      = "LSOA11NM"
	ColLFRCount  = "lfr_count"
	ColAbsDiff   = "abs_difference"
	ColDecile    = "imd_decile"
	countColStem = "stop_search_count_"
)

// CountColumn returns the stop-and-search count column for year.
func CountColumn(year int) string {
	return countColStem + strconv.Itoa(year)
}

// Columns returns the attribute columns of the combined table.
func Columns(years []int) []string {
	cols := []string{ColCode, ColName}
	for _, y := range years {
		cols = append(cols, CountColumn(y))
	}
	return append(cols, ColLFRCount, ColAbsDiff, ColDecile)
}

// WriteGeoPackage writes records as a polygon layer. An unknown decile is
// stored as NULL.
func WriteGeoPackage(ctx context.Context, path string, years []int, records []model.AreaRecord) error {
	layer := gpkg.Layer{Name: LayerName, GeomType: gpkg.GeomMultiPolygon, SRSID: 4326}
	for _, c := range Columns(years) {
		typ := gpkg.TypeInteger
		if c == ColCode || c == ColName {
			typ = gpkg.TypeText
		}
		layer.Columns = append(layer.Columns, gpkg.Column{Name: c, Type: typ})
	}

	features := make([]gpkg.Feature, 0, len(records))
	for _, r := range records {
		values := []any{r.Code, r.Name}
		for _, y := range years {
			values = append(values, int64(r.Count(y)))
		}
		var decile any
		if r.Decile > 0 {
			decile = int64(r.Decile)
		}
		values = append(values, int64(r.LFRCount), int64(r.AbsDifference), decile)

		f := gpkg.Feature{Values: values}
		if r.Geom != nil {
			f.Geom = r.Geom
		}
		features = append(features, f)
	}

	if err := gpkg.Write(ctx, path, layer, features); err != nil {
		return eris.Wrap(err, "aggregate: write geopackage")
	}
	return nil
}

// WriteCSVFile writes the attribute columns of records. An unknown decile is
// an empty cell.
func WriteCSVFile(path string, years []int, records []model.AreaRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{r.Code, r.Name}
		for _, y := range years {
			row = append(row, strconv.Itoa(r.Count(y)))
		}
		decile := ""
		if r.Decile > 0 {
			decile = strconv.Itoa(r.Decile)
		}
		row = append(row, strconv.Itoa(r.LFRCount), strconv.Itoa(r.AbsDifference), decile)
		rows = append(rows, row)
	}
	if err := fetcher.WriteCSVFile(path, Columns(years), rows); err != nil {
		return eris.Wrap(err, "aggregate: write csv")
	}
	return nil
}
