// Package geo loads LSOA boundary polygons and locates points inside them.
package geo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/fetcher"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

// LoadOptions configures how boundary polygons are read.
type LoadOptions struct {
	CodeField    string // default LSOA11CD
	NameField    string // default LSOA11NM
	BoroughField string // default LAD11NM
	Projection   string // source CRS, default epsg:27700
	TempDir      string // where the zip is extracted; default os.TempDir()
}

func (o *LoadOptions) defaults() {
	if o.CodeField == "" {
		o.CodeField = "LSOA11CD"
	}
	if o.NameField == "" {
		o.NameField = "LSOA11NM"
	}
	if o.BoroughField == "" {
		o.BoroughField = "LAD11NM"
	}
	if o.Projection == "" {
		o.Projection = "epsg:27700"
	}
}

// LoadShapefileZip extracts member (and its sidecar files) from a zipped
// shapefile bundle and loads the polygons as areas in EPSG:4326.
func LoadShapefileZip(zipPath, member string, opts LoadOptions) ([]model.Area, error) {
	tmp, err := os.MkdirTemp(opts.TempDir, "lsoa-*")
	if err != nil {
		return nil, eris.Wrap(err, "geo: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	shpPath, err := fetcher.ExtractZIPSiblings(zipPath, filepath.ToSlash(member), tmp)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: extract %s", member)
	}
	return LoadShapefile(shpPath, opts)
}

// LoadShapefile reads polygon records from a shapefile. Records without a
// polygon shape are skipped and counted in a debug log.
func LoadShapefile(shpPath string, opts LoadOptions) ([]model.Area, error) {
	opts.defaults()
	project, err := ProjectionFor(opts.Projection)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	codeIdx, ok := fieldIdx[strings.ToLower(opts.CodeField)]
	if !ok {
		return nil, eris.Errorf("geo: shapefile %s has no %s field", shpPath, opts.CodeField)
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[strings.ToLower(name)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var areas []model.Area
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly, project)
		if mp == nil {
			skipped++
			continue
		}
		areas = append(areas, model.Area{
			Code:    strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00")),
			Name:    attr(opts.NameField),
			Borough: attr(opts.BoroughField),
			Geom:    mp,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "geo: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return areas, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile outer rings wind clockwise and holes counter-clockwise; each hole
// is attached to the outer ring that contains it.
func polygonToMultiPolygon(p *shp.Polygon, project Projection) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			lon, lat := project(p.Points[j].X, p.Points[j].Y)
			flat = append(flat, lon, lat)
		}
		if signedArea(flat) > 0 {
			holes = append(holes, flat)
		} else {
			outers = append(outers, flat)
		}
	}
	// A single counter-clockwise ring is an outer ring written with the
	// wrong winding, not a hole.
	if len(outers) == 0 {
		outers, holes = holes, nil
	}
	if len(outers) == 0 {
		return nil
	}

	rings := make([][][]float64, len(outers))
	for i, o := range outers {
		rings[i] = [][]float64{o}
	}
	for _, h := range holes {
		pt := geom.Coord{h[0], h[1]}
		for i, o := range outers {
			if xy.IsPointInRing(geom.XY, pt, o) {
				rings[i] = append(rings[i], h)
				break
			}
		}
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, polyRings := range rings {
		poly := geom.NewPolygon(geom.XY)
		for _, r := range polyRings {
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, r)); err != nil {
				zap.L().Debug("geo: skipping malformed polygon ring", zap.Error(err))
			}
		}
		if poly.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace area of a flat XY ring; negative for clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
