package pdftable

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/tables"
)

// Options configures table detection on a page.
type Options struct {
	// MinColumns is the number of cells a text line needs to start a new row.
	// Default 3.
	MinColumns int

	// KeyColumns are columns every table row fills, such as a date. A line
	// with text in all of them starts a new row and any other line continues
	// the row above it. When empty, a line starts a row if it fills more
	// than half the columns.
	KeyColumns []int

	// MinConfidence is passed to the geometric detector. Default 0.25.
	MinConfidence float64

	// MaxCellGap is the widest horizontal gap, in points, between two
	// fragments of the same cell. Default 5.
	MaxCellGap float64
}

func (o Options) withDefaults() Options {
	if o.MinColumns <= 0 {
		o.MinColumns = 3
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.25
	}
	if o.MaxCellGap <= 0 {
		o.MaxCellGap = tables.DefaultConfig().MaxCellGap
	}
	return o
}

func (o Options) detector() (tables.Detector, error) {
	cfg := tables.DefaultConfig()
	cfg.MinRows = 1
	cfg.MinCols = o.MinColumns
	cfg.MinConfidence = o.MinConfidence
	cfg.MaxCellGap = o.MaxCellGap
	cfg.DetectMergedCells = false

	d := tables.NewGeometricDetector()
	if err := d.Configure(cfg); err != nil {
		return nil, eris.Wrap(err, "pdftable: configure detector")
	}
	return d, nil
}

// segment is the text of one cell on one printed line.
type segment struct {
	text string
	box  model.BBox
}

// DetectRows finds the tables on a page and returns their rows, top to
// bottom. Column positions come from the line with the most cells. A cell
// that wraps over several printed lines is joined with newlines, so each
// returned row is one logical table row. Returns nil when the page has no
// table.
func DetectRows(page *model.Page, opts Options) ([][]string, error) {
	opts = opts.withDefaults()

	d, err := opts.detector()
	if err != nil {
		return nil, err
	}
	found, err := d.Detect(page)
	if err != nil {
		return nil, eris.Wrap(err, "pdftable: detect tables")
	}

	var rows [][]string
	for _, t := range found {
		rows = append(rows, tableRows(t, opts)...)
	}
	return rows, nil
}

func tableRows(t *model.Table, opts Options) [][]string {
	lines := printedLines(t, opts.MaxCellGap)

	widest := -1
	for i, l := range lines {
		if len(l) >= opts.MinColumns && (widest < 0 || len(l) > len(lines[widest])) {
			widest = i
		}
	}
	if widest < 0 {
		return nil
	}
	anchors := make([]float64, len(lines[widest]))
	for i, s := range lines[widest] {
		anchors[i] = s.box.Left()
	}

	var rows [][]string
	for _, l := range lines {
		cells := make([]string, len(anchors))
		for _, s := range l {
			col := column(anchors, s.box.Left(), opts.MaxCellGap)
			cells[col] = join(cells[col], s.text, " ")
		}

		if len(l) >= opts.MinColumns && startsRow(cells, opts.KeyColumns) {
			rows = append(rows, cells)
			continue
		}
		if len(rows) == 0 {
			continue // text above the first row
		}
		prev := rows[len(rows)-1]
		for i, c := range cells {
			if c != "" {
				prev[i] = join(prev[i], c, "\n")
			}
		}
	}
	return rows
}

// printedLines turns the detector's grid into printed lines of segments,
// left to right. Grid rows whose text overlaps vertically are one line.
func printedLines(t *model.Table, maxGap float64) [][]segment {
	var (
		lines  [][]segment
		bounds []model.BBox
	)
	for _, gridRow := range t.Rows {
		var segs []segment
		var box model.BBox
		for _, c := range gridRow {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			segs = append(segs, segment{text: strings.TrimSpace(c.Text), box: c.BBox})
			if box.IsEmpty() {
				box = c.BBox
			} else {
				box = box.Union(c.BBox)
			}
		}
		if len(segs) == 0 {
			continue
		}

		n := len(lines)
		if n > 0 && box.Top() > bounds[n-1].Bottom() {
			lines[n-1] = append(lines[n-1], segs...)
			bounds[n-1] = bounds[n-1].Union(box)
			continue
		}
		lines = append(lines, segs)
		bounds = append(bounds, box)
	}

	for i, segs := range lines {
		lines[i] = mergeSegments(segs, maxGap)
	}
	return lines
}

// mergeSegments joins neighbouring fragments closer than maxGap, which
// belong to the same cell.
func mergeSegments(segs []segment, maxGap float64) []segment {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].box.Left() < segs[j].box.Left() })

	out := []segment{segs[0]}
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.box.Left()-last.box.Right() <= maxGap {
			last.text = join(last.text, s.text, " ")
			last.box = last.box.Union(s.box)
			continue
		}
		out = append(out, s)
	}
	return out
}

// column returns the last column whose left edge is at or before x.
func column(anchors []float64, x, tolerance float64) int {
	col := 0
	for i, a := range anchors {
		if a <= x+tolerance {
			col = i
		}
	}
	return col
}

func startsRow(cells []string, keys []int) bool {
	if len(keys) == 0 {
		filled := 0
		for _, c := range cells {
			if c != "" {
				filled++
			}
		}
		return filled*2 > len(cells)
	}
	for _, k := range keys {
		if k < 0 || k >= len(cells) || cells[k] == "" {
			return false
		}
	}
	return true
}

func join(existing, text, sep string) string {
	if existing == "" {
		return text
	}
	return existing + sep + text
}
