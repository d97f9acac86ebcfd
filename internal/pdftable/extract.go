// Package pdftable pulls tabular rows out of text-layer PDFs.
package pdftable

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/text"
)

// Page holds the table rows found on one PDF page.
type Page struct {
	Number int        // 1-based page number
	Rows   [][]string // nil when the page has no table
}

// Extractor returns the table rows of each page of a PDF, in page order.
type Extractor interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]Page, error)
}

// Tabula reads the text layer with tabula and finds tables with its
// geometric detector.
type Tabula struct {
	opts Options
}

// NewTabula creates a Tabula extractor.
func NewTabula(opts Options) *Tabula {
	return &Tabula{opts: opts}
}

// ExtractPages returns one Page per page of the PDF.
func (t *Tabula) ExtractPages(ctx context.Context, pdfPath string) ([]Page, error) {
	r, err := reader.Open(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "pdftable: open %s", pdfPath)
	}
	defer r.Close() //nolint:errcheck

	count, err := r.PageCount()
	if err != nil {
		return nil, eris.Wrapf(err, "pdftable: count pages of %s", pdfPath)
	}

	out := make([]Page, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pdftable: extract pages")
		}

		p, err := r.GetPage(i)
		if err != nil {
			return nil, eris.Wrapf(err, "pdftable: read page %d", i+1)
		}
		frags, err := r.ExtractTextFragments(p)
		if err != nil {
			return nil, eris.Wrapf(err, "pdftable: extract text on page %d", i+1)
		}

		width, _ := p.Width()
		height, _ := p.Height()
		page := NewPage(width, height, frags)
		page.Number = i + 1

		rows, err := DetectRows(page, t.opts)
		if err != nil {
			return nil, eris.Wrapf(err, "pdftable: detect table on page %d", i+1)
		}
		out = append(out, Page{Number: i + 1, Rows: rows})
	}
	return out, nil
}

// NewPage converts extracted text fragments to the layout model the table
// detector works on. Whitespace-only fragments are dropped.
func NewPage(width, height float64, frags []text.TextFragment) *model.Page {
	page := model.NewPage(width, height)
	for _, f := range frags {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		page.RawText = append(page.RawText, model.TextFragment{
			Text:     f.Text,
			BBox:     model.NewBBox(f.X, f.Y, f.Width, f.Height),
			FontSize: f.FontSize,
			FontName: f.FontName,
		})
	}
	return page
}
