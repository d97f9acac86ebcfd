// Package points stores point events as GeoPackage point layers and reads
// them back for the spatial join.
package points

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/lfr-analysis/lsoa-pipeline/internal/gpkg"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

// Write stores events as an EPSG:4326 point layer with one TEXT column per
// attribute name in columns. Events without coordinates keep an empty
// geometry so the row count matches the source.
func Write(ctx context.Context, path, layerName string, columns []string, events []model.Event) error {
	layer := gpkg.Layer{Name: layerName, GeomType: gpkg.GeomPoint, SRSID: 4326}
	for _, c := range columns {
		layer.Columns = append(layer.Columns, gpkg.Column{Name: c, Type: gpkg.TypeText})
	}

	features := make([]gpkg.Feature, 0, len(events))
	for _, e := range events {
		values := make([]any, len(columns))
		for i, c := range columns {
			values[i] = e.Attr(c)
		}
		f := gpkg.Feature{Values: values}
		if e.HasCoords {
			f.Geom = geom.NewPointFlat(geom.XY, []float64{e.Lon, e.Lat}).SetSRID(4326)
		}
		features = append(features, f)
	}

	if err := gpkg.Write(ctx, path, layer, features); err != nil {
		return eris.Wrapf(err, "points: write %s", layerName)
	}
	return nil
}

// Read loads the first point layer of the GeoPackage at path as events of
// the given source and year. Every column becomes an attribute.
func Read(ctx context.Context, path string, source model.Source, year int) ([]model.Event, error) {
	layer, features, err := gpkg.Read(ctx, path, "")
	if err != nil {
		return nil, eris.Wrapf(err, "points: read %s", path)
	}
	if layer.GeomType != gpkg.GeomPoint {
		return nil, eris.Errorf("points: layer %s in %s is %s, not POINT", layer.Name, path, layer.GeomType)
	}

	events := make([]model.Event, 0, len(features))
	for i, f := range features {
		e := model.Event{ID: int64(i + 1), Source: source, Year: year}
		if pt, ok := f.Geom.(*geom.Point); ok && len(pt.FlatCoords()) >= 2 {
			e.Lon, e.Lat, e.HasCoords = pt.X(), pt.Y(), true
		}
		for j, c := range layer.Columns {
			e.Attributes = append(e.Attributes, model.Attribute{Name: c.Name, Value: format(f.Values[j])})
		}
		events = append(events, e)
	}
	return events, nil
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
