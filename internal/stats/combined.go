package stats

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/lfr-analysis/lsoa-pipeline/internal/aggregate"
	"github.com/lfr-analysis/lsoa-pipeline/internal/gpkg"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

var countColRe = regexp.MustCompile(`^stop_search_count_(\d{4})$`)

// LoadCombined reads the combined table written by the aggregate stage and
// returns its records and the stop-and-search years it carries. A .csv path
// is read as the attribute CSV; anything else as a GeoPackage.
func LoadCombined(ctx context.Context, path string) ([]model.AreaRecord, []int, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return loadCombinedCSV(path)
	}
	return loadCombinedGeoPackage(ctx, path)
}

func yearOf(col string) (int, bool) {
	m := countColRe.FindStringSubmatch(col)
	if m == nil {
		return 0, false
	}
	y, _ := strconv.Atoi(m[1])
	return y, true
}

func loadCombinedGeoPackage(ctx context.Context, path string) ([]model.AreaRecord, []int, error) {
	layer, features, err := gpkg.Read(ctx, path, aggregate.LayerName)
	if err != nil {
		return nil, nil, eris.Wrap(err, "stats: read combined table")
	}

	idx := make(map[string]int, len(layer.Columns))
	yearCols := make(map[int]int)
	for i, c := range layer.Columns {
		idx[c.Name] = i
		if y, ok := yearOf(c.Name); ok {
			yearCols[y] = i
		}
	}
	for _, c := range []string{aggregate.ColCode, aggregate.ColLFRCount, aggregate.ColAbsDiff, aggregate.ColDecile} {
		if _, ok := idx[c]; !ok {
			return nil, nil, eris.Errorf("stats: combined table %s has no %s column", path, c)
		}
	}
	years := sortedYears(yearCols)

	records := make([]model.AreaRecord, 0, len(features))
	for n, f := range features {
		r := model.AreaRecord{Counts: make(map[int]int, len(years))}
		r.Code, _ = f.Values[idx[aggregate.ColCode]].(string)
		if i, ok := idx[aggregate.ColName]; ok {
			r.Name, _ = f.Values[i].(string)
		}
		ints := []struct {
			col string
			dst *int
		}{
			{aggregate.ColLFRCount, &r.LFRCount},
			{aggregate.ColAbsDiff, &r.AbsDifference},
			{aggregate.ColDecile, &r.Decile},
		}
		for _, c := range ints {
			v, err := intValue(f.Values[idx[c.col]])
			if err != nil {
				return nil, nil, eris.Wrapf(err, "stats: row %d column %s", n, c.col)
			}
			*c.dst = v
		}
		for y, i := range yearCols {
			v, err := intValue(f.Values[i])
			if err != nil {
				return nil, nil, eris.Wrapf(err, "stats: row %d year %d", n, y)
			}
			r.Counts[y] = v
		}
		if mp, ok := f.Geom.(*geom.MultiPolygon); ok {
			r.Geom = mp
		}
		records = append(records, r)
	}
	return records, years, nil
}

// intValue converts a scanned SQLite value; NULL is zero.
func intValue(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case string:
		if x == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(x)
		return n, eris.Wrapf(err, "stats: %q is not an integer", x)
	default:
		return 0, eris.Errorf("stats: unexpected value type %T", v)
	}
}

// combinedRow is the fixed part of a combined CSV row. Count columns vary by
// year and are read from the unused columns.
type combinedRow struct {
	Code          string `csv:"LSOA11CD"`
	Name          string `csv:"LSOA11NM"`
	LFRCount      int    `csv:"lfr_count"`
	AbsDifference int    `csv:"abs_difference"`
	Decile        *int   `csv:"imd_decile"`
}

func loadCombinedCSV(path string) ([]model.AreaRecord, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "stats: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, eris.Errorf("stats: %s is empty", path)
		}
		return nil, nil, eris.Wrapf(err, "stats: read header of %s", path)
	}

	header := dec.Header()
	for _, c := range []string{aggregate.ColCode, aggregate.ColLFRCount, aggregate.ColAbsDiff, aggregate.ColDecile} {
		if !slices.Contains(header, c) {
			return nil, nil, eris.Errorf("stats: combined table %s has no %s column", path, c)
		}
	}
	yearCols := make(map[int]int)
	for i, h := range header {
		if y, ok := yearOf(h); ok {
			yearCols[y] = i
		}
	}
	years := sortedYears(yearCols)

	var records []model.AreaRecord
	for {
		var row combinedRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, eris.Wrapf(err, "stats: decode row %d", len(records)+1)
		}

		r := model.AreaRecord{
			Code:          row.Code,
			Name:          row.Name,
			LFRCount:      row.LFRCount,
			AbsDifference: row.AbsDifference,
			Counts:        make(map[int]int, len(years)),
		}
		if row.Decile != nil {
			r.Decile = *row.Decile
		}
		record := dec.Record()
		for _, i := range dec.Unused() {
			y, ok := yearOf(header[i])
			if !ok {
				continue
			}
			v, err := intValue(record[i])
			if err != nil {
				return nil, nil, eris.Wrapf(err, "stats: row %d year %d", len(records)+1, y)
			}
			r.Counts[y] = v
		}
		records = append(records, r)
	}
	return records, years, nil
}

func sortedYears(cols map[int]int) []int {
	years := make([]int, 0, len(cols))
	for y := range cols {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
