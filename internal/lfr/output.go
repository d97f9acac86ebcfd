package lfr

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/lfr-analysis/lsoa-pipeline/internal/fetcher"
	"github.com/lfr-analysis/lsoa-pipeline/internal/gpkg"
)

// LayerName is the GeoPackage layer holding deployments.
const LayerName = "lfr_deployments"

func layer() gpkg.Layer {
	cols := []gpkg.Column{{Name: "row_id", Type: gpkg.TypeInteger}}
	for _, h := range Headers {
		cols = append(cols, gpkg.Column{Name: h, Type: gpkg.TypeText})
	}
	cols = append(cols,
		gpkg.Column{Name: "latitude", Type: gpkg.TypeReal},
		gpkg.Column{Name: "longitude", Type: gpkg.TypeReal},
		gpkg.Column{Name: "geocode_source", Type: gpkg.TypeText},
	)
	return gpkg.Layer{Name: LayerName, GeomType: gpkg.GeomPoint, SRSID: 4326, Columns: cols}
}

// WriteGeoPackage writes deployments as an EPSG:4326 point layer. Rows
// without coordinates are kept with an empty geometry.
func WriteGeoPackage(ctx context.Context, path string, deployments []Deployment) error {
	features := make([]gpkg.Feature, 0, len(deployments))
	for _, d := range deployments {
		values := []any{int64(d.RowID)}
		for _, f := range d.Fields {
			values = append(values, f)
		}
		var lat, lon any
		if d.HasCoords {
			lat, lon = d.Lat, d.Lon
		}
		values = append(values, lat, lon, d.Source)

		f := gpkg.Feature{Values: values}
		if d.HasCoords {
			f.Geom = geom.NewPointFlat(geom.XY, []float64{d.Lon, d.Lat}).SetSRID(4326)
		}
		features = append(features, f)
	}
	if err := gpkg.Write(ctx, path, layer(), features); err != nil {
		return eris.Wrap(err, "lfr: write geopackage")
	}
	return nil
}

// WriteCSVFile writes deployments as a flat table with latitude and
// longitude columns, empty when a row has no coordinates.
func WriteCSVFile(path string, deployments []Deployment) error {
	header := append(append([]string{}, Headers...), "latitude", "longitude")
	rows := make([][]string, 0, len(deployments))
	for _, d := range deployments {
		row := append([]string{}, d.Fields...)
		if d.HasCoords {
			row = append(row, strconv.FormatFloat(d.Lat, 'f', -1, 64), strconv.FormatFloat(d.Lon, 'f', -1, 64))
		} else {
			row = append(row, "", "")
		}
		rows = append(rows, row)
	}
	if err := fetcher.WriteCSVFile(path, header, rows); err != nil {
		return eris.Wrap(err, "lfr: write csv")
	}
	return nil
}
