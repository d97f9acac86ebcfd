// Package stopsearch loads the monthly police.uk stop-and-search CSV exports
// for one force and year.
package stopsearch

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/fetcher"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

// Source column names used to build events.
const (
	ColLatitude  = "Latitude"
	ColLongitude = "Longitude"
	ColType      = "Type"
	ColDate      = "Date"
)

// DefaultPattern matches the Metropolitan Police monthly files.
const DefaultPattern = "{year}-*-metropolitan-stop-and-search.csv"

// Table is the concatenation of every monthly file for a year.
type Table struct {
	Header []string
	Rows   [][]string
	Files  []string
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Load concatenates the files in dir matching pattern, with "{year}"
// replaced by year, in lexical order. Columns are aligned by name; a column
// missing from one file is empty for that file's rows. No matching file is
// an error.
func Load(ctx context.Context, dir string, year int, pattern string) (*Table, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	glob := strings.ReplaceAll(pattern, "{year}", strconv.Itoa(year))
	files, err := fetcher.GlobSorted(dir, glob)
	if err != nil {
		return nil, eris.Wrap(err, "stopsearch: list files")
	}
	if len(files) == 0 {
		return nil, eris.Errorf("stopsearch: no files matching %s in %s", glob, dir)
	}

	t := &Table{Files: files}
	index := map[string]int{}
	for _, file := range files {
		header, rows, err := fetcher.ReadCSVFile(ctx, file)
		if err != nil {
			return nil, eris.Wrapf(err, "stopsearch: load %s", file)
		}

		pos := make([]int, len(header))
		for i, h := range header {
			j, ok := index[h]
			if !ok {
				j = len(t.Header)
				index[h] = j
				t.Header = append(t.Header, h)
				for k := range t.Rows {
					t.Rows[k] = append(t.Rows[k], "")
				}
			}
			pos[i] = j
		}

		for _, row := range rows {
			out := make([]string, len(t.Header))
			for i, v := range row {
				if i < len(pos) {
					out[pos[i]] = v
				}
			}
			t.Rows = append(t.Rows, out)
		}
		zap.L().Debug("stopsearch: loaded file", zap.String("file", file), zap.Int("rows", len(rows)))
	}
	return t, nil
}

// ToEvents builds one event per row. Rows with blank or unparsable
// coordinates are kept with HasCoords false; the second return value counts
// them. Every column other than the coordinates is carried as an attribute.
func ToEvents(t *Table, year int) ([]model.Event, int, error) {
	lat, lon := t.Column(ColLatitude), t.Column(ColLongitude)
	if lat < 0 || lon < 0 {
		return nil, 0, eris.Errorf("stopsearch: table has no %s/%s columns", ColLatitude, ColLongitude)
	}
	typ, date := t.Column(ColType), t.Column(ColDate)

	events := make([]model.Event, 0, len(t.Rows))
	missing := 0
	for i, row := range t.Rows {
		e := model.Event{ID: int64(i + 1), Source: model.SourceStopSearch, Year: year}
		if typ >= 0 {
			e.Category = row[typ]
		}
		if date >= 0 {
			e.Date = row[date]
		}
		y, okY := parseCoord(row[lat])
		x, okX := parseCoord(row[lon])
		if okY && okX {
			e.Lat, e.Lon, e.HasCoords = y, x, true
		} else {
			missing++
		}
		for j, h := range t.Header {
			if j == lat || j == lon {
				continue
			}
			e.Attributes = append(e.Attributes, model.Attribute{Name: h, Value: row[j]})
		}
		events = append(events, e)
	}
	return events, missing, nil
}

// AttributeColumns returns the header without the coordinate columns, the
// column set written to the point layer.
func (t *Table) AttributeColumns() []string {
	cols := make([]string, 0, len(t.Header))
	for _, h := range t.Header {
		if h == ColLatitude || h == ColLongitude {
			continue
		}
		cols = append(cols, h)
	}
	return cols
}

// LayerName returns the point layer name for a year.
func LayerName(year int) string {
	return "stop_search_" + strconv.Itoa(year)
}

// parseCoord reads a coordinate cell. NaN and infinities count as missing.
func parseCoord(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
