// Package imd loads the Index of Multiple Deprivation workbook and reads the
// processed deprivation deciles back for the aggregation stage.
package imd

import (
	"context"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/fetcher"
)

// Rename maps a source column header onto the name used downstream.
type Rename struct {
	From string
	To   string
}

// Options configures Load.
type Options struct {
	Rename []Rename
}

// Table is the IMD sheet with its header row split off.
type Table struct {
	Header []string
	Rows   [][]string
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

// Load reads the named sheet of the workbook at path. The first non-blank row
// is the header; fully blank rows are dropped and short rows padded to the
// header width.
func Load(path, sheet string, opts Options) (*Table, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheet, SkipBlank: true})
	if err != nil {
		if names, nerr := fetcher.SheetNames(path); nerr == nil && !slices.Contains(names, sheet) {
			return nil, eris.Errorf("imd: sheet %q not in %s (sheets: %s)", sheet, path, strings.Join(names, ", "))
		}
		return nil, eris.Wrapf(err, "imd: read %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("imd: sheet %q is empty", sheet)
	}

	header := trimTrailingBlank(rows[0])
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t := &Table{Header: header}

	for _, r := range opts.Rename {
		idx := t.Column(r.From)
		if idx < 0 {
			return nil, eris.Errorf("imd: rename source column %q not found in sheet %q", r.From, sheet)
		}
		t.Header[idx] = r.To
	}

	width := len(header)
	for i, row := range rows[1:] {
		if len(row) > width {
			if extra := trimTrailingBlank(row[width:]); len(extra) > 0 {
				return nil, eris.Errorf("imd: row %d has %d cells, header has %d", i+2, len(row), width)
			}
			row = row[:width]
		}
		out := make([]string, width)
		copy(out, row)
		t.Rows = append(t.Rows, out)
	}

	zap.L().Debug("imd: loaded sheet",
		zap.String("sheet", sheet),
		zap.Int("columns", width),
		zap.Int("rows", len(t.Rows)),
	)
	return t, nil
}

// WriteCSV writes the table with its header and no index column.
func WriteCSV(w io.Writer, t *Table) error {
	return fetcher.WriteCSV(w, t.Header, t.Rows)
}

// WriteCSVFile writes the table to path, creating parent directories.
func WriteCSVFile(path string, t *Table) error {
	return fetcher.WriteCSVFile(path, t.Header, t.Rows)
}

// ReadDeciles reads a processed IMD CSV into a map of area code to decile.
// Duplicate codes and deciles outside 1..10 are errors.
func ReadDeciles(ctx context.Context, path, keyCol, decileCol string) (map[string]int, error) {
	header, rows, err := fetcher.ReadCSVFile(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "imd: read deciles")
	}

	t := &Table{Header: header}
	ki, di := t.Column(keyCol), t.Column(decileCol)
	if ki < 0 {
		return nil, eris.Errorf("imd: key column %q not in %s", keyCol, path)
	}
	if di < 0 {
		return nil, eris.Errorf("imd: decile column %q not in %s", decileCol, path)
	}

	deciles := make(map[string]int, len(rows))
	for i, row := range rows {
		if ki >= len(row) || di >= len(row) {
			return nil, eris.Errorf("imd: line %d is short", i+2)
		}
		code := strings.TrimSpace(row[ki])
		if code == "" {
			return nil, eris.Errorf("imd: line %d has an empty %s", i+2, keyCol)
		}
		if _, dup := deciles[code]; dup {
			return nil, eris.Errorf("imd: duplicate area code %s", code)
		}
		d, err := parseDecile(row[di])
		if err != nil {
			return nil, eris.Wrapf(err, "imd: line %d (%s)", i+2, code)
		}
		deciles[code] = d
	}
	return deciles, nil
}

// parseDecile accepts "3" and spreadsheet renderings such as "3.0".
func parseDecile(s string) (int, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("decile %q is not a number", s)
	}
	if f != math.Trunc(f) || f < 1 || f > 10 {
		return 0, eris.Errorf("decile %q outside 1..10", s)
	}
	return int(f), nil
}

func trimTrailingBlank(cells []string) []string {
	n := len(cells)
	for n > 0 && strings.TrimSpace(cells[n-1]) == "" {
		n--
	}
	return append([]string(nil), cells[:n]...)
}
