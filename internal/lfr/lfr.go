// Package lfr extracts Live Facial Recognition deployments from the published
// deployment record PDF and geocodes their locations.
package lfr

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
	"github.com/lfr-analysis/lsoa-pipeline/internal/pdftable"
)

// Column names of the deployment record, in table order.
const (
	ColLocation = "Deployment Location"
	ColDate     = "Date"
	ColUseCase  = "LFR Use Case"
)

// Headers are the sixteen columns of the deployment record table.
var Headers = []string{
	ColLocation,
	ColDate,
	"Duration",
	ColUseCase,
	"Watchlist Size",
	"Min Threshold Setting",
	"Total Alerts",
	"True Alerts Confirmed",
	"True Alerts Unconfirmed",
	"False Alerts Confirmed",
	"False Alerts Unconfirmed",
	"False Alert Rate",
	"Outcome - Arrest",
	"Outcome - Other",
	"No action",
	"Faces seen (estimate)",
}

// Deployment is one row of the cleaned deployment table.
type Deployment struct {
	RowID     int      // 1-based position in the cleaned table
	Fields    []string // aligned with Headers
	Lat       float64
	Lon       float64
	HasCoords bool
	Source    string // geocoder that placed the row, or "override"
}

// Field returns the named column value, or "" for an unknown column.
func (d Deployment) Field(name string) string {
	for i, h := range Headers {
		if h == name {
			return d.Fields[i]
		}
	}
	return ""
}

// Location returns the deployment location text.
func (d Deployment) Location() string { return d.Fields[0] }

// LoadOptions configures Load.
type LoadOptions struct {
	HeaderRows int // rows skipped on the first page only
}

// TableOptions are the detection options for the deployment record. Every
// deployment has a date, so a printed line without one continues the row
// above it.
func TableOptions() pdftable.Options {
	return pdftable.Options{KeyColumns: []int{1}}
}

// Load reads the deployment table from every page of the PDF at path.
// Pages without a table are skipped with a warning. Rows with a missing
// field or the wrong width are dropped, and embedded newlines are collapsed
// to single spaces.
func Load(ctx context.Context, ex pdftable.Extractor, path string, opts LoadOptions) ([]Deployment, error) {
	log := zap.L().With(zap.String("component", "lfr"))

	pages, err := ex.ExtractPages(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "lfr: extract pages")
	}

	var raw [][]string
	for i, page := range pages {
		rows := page.Rows
		if len(rows) == 0 {
			log.Warn("page is empty or has no table, skipping", zap.Int("page", page.Number))
			continue
		}
		if i == 0 {
			if opts.HeaderRows >= len(rows) {
				continue
			}
			rows = rows[opts.HeaderRows:]
		}
		raw = append(raw, rows...)
	}

	var (
		deployments []Deployment
		dropped     int
	)
	for _, row := range raw {
		fields, ok := cleanRow(row)
		if !ok {
			dropped++
			continue
		}
		deployments = append(deployments, Deployment{RowID: len(deployments) + 1, Fields: fields})
	}

	log.Info("extracted deployments",
		zap.Int("pages", len(pages)),
		zap.Int("rows", len(deployments)),
		zap.Int("dropped", dropped),
	)
	return deployments, nil
}

// cleanRow flattens cell text and rejects incomplete rows.
func cleanRow(row []string) ([]string, bool) {
	if len(row) != len(Headers) {
		return nil, false
	}
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.Join(strings.Fields(cell), " ")
		if out[i] == "" {
			return nil, false
		}
	}
	return out, true
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ToEvents converts deployments to point events.
func ToEvents(deployments []Deployment) []model.Event {
	events := make([]model.Event, 0, len(deployments))
	for _, d := range deployments {
		e := model.Event{
			ID:        int64(d.RowID),
			Source:    model.SourceLFR,
			Category:  d.Field(ColUseCase),
			Location:  d.Location(),
			Date:      d.Field(ColDate),
			Lat:       d.Lat,
			Lon:       d.Lon,
			HasCoords: d.HasCoords,
		}
		if y := yearPattern.FindString(e.Date); y != "" {
			e.Year, _ = strconv.Atoi(y)
		}
		for i, h := range Headers {
			if h == ColLocation || h == ColDate || h == ColUseCase {
				continue
			}
			e.Attributes = append(e.Attributes, model.Attribute{Name: h, Value: d.Fields[i]})
		}
		events = append(events, e)
	}
	return events
}
